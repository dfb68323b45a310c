package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/ikkim/storefront-backend/internal/errors"
	"github.com/ikkim/storefront-backend/internal/middleware"
	"github.com/ikkim/storefront-backend/pkg/logger"
)

// respondServiceError logs err at a level matching its status and writes the
// classified error body.
func respondServiceError(c *gin.Context, log *logger.Logger, msg string, err error, fields map[string]interface{}) {
	status, code := apperrors.StatusFor(err)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["code"] = code
	if status >= http.StatusInternalServerError {
		log.Error(msg, err, fields)
	} else {
		fields["error"] = err.Error()
		log.Warn(msg, fields)
	}
	apperrors.Respond(c, err)
}

func bindJSON(c *gin.Context, log *logger.Logger, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		log.Warn("Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.RespondWithError(c, http.StatusBadRequest, apperrors.ValidationInvalidInput, err.Error())
		return false
	}
	return true
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		middleware.GetLoggerFromContext(c).Warn("Invalid ID parameter", map[string]interface{}{
			"param": name,
			"value": raw,
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func requireUserID(c *gin.Context) (uint, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return 0, false
	}
	return userID, true
}
