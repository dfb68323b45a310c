package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/middleware"
	"github.com/ikkim/storefront-backend/internal/storage"
)

// PhotoPresigner issues upload URLs for return photos.
type PhotoPresigner interface {
	PresignReturnPhoto(ctx context.Context, filename, contentType string, size int64) (*storage.PresignedURLResponse, error)
}

type UploadController struct {
	storage PhotoPresigner
}

func NewUploadController(storage PhotoPresigner) *UploadController {
	return &UploadController{
		storage: storage,
	}
}

type PresignReturnPhotoRequest struct {
	Filename    string `json:"filename" binding:"required,max=200"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

// PresignReturnPhoto returns a presigned PUT URL for one return photo
// POST /api/v1/uploads/return-photos/presign
func (ctrl *UploadController) PresignReturnPhoto(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req PresignReturnPhotoRequest
	if !bindJSON(c, log, &req) {
		return
	}

	resp, err := ctrl.storage.PresignReturnPhoto(c.Request.Context(), req.Filename, req.ContentType, req.Size)
	if err != nil {
		respondServiceError(c, log, "Failed to presign return photo", err, map[string]interface{}{
			"filename":     req.Filename,
			"content_type": req.ContentType,
		})
		return
	}

	log.Info("Presigned URL generated", map[string]interface{}{
		"key": resp.Key,
	})
	c.JSON(http.StatusOK, resp)
}
