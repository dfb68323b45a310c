package controller

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

type ReturnController struct {
	returnService service.ReturnService
}

func NewReturnController(returnService service.ReturnService) *ReturnController {
	return &ReturnController{
		returnService: returnService,
	}
}

type CreateReturnRequest struct {
	OrderNumber    string               `json:"order_number" binding:"required"`
	Reason         string               `json:"reason" binding:"required"`
	Details        string               `json:"details" binding:"max=2000"`
	Photos         []string             `json:"photos"`
	ResolutionType model.ResolutionType `json:"resolution_type" binding:"required"`
	Email          string               `json:"email"` // guest verification
	Phone          string               `json:"phone"`
}

type ReviewReturnRequest struct {
	Note string `json:"note" binding:"max=500"`
}

type RejectReturnRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// CreateReturn files a return for a delivered order
// POST /api/v1/returns
func (ctrl *ReturnController) CreateReturn(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreateReturnRequest
	if !bindJSON(c, log, &req) {
		return
	}

	identity := service.Identity{
		UserID:       middleware.OptionalUserID(c),
		IsAdmin:      middleware.IsAdmin(c),
		ContactEmail: strings.TrimSpace(req.Email),
		ContactPhone: strings.TrimSpace(req.Phone),
	}
	ret, err := ctrl.returnService.CreateReturnRequest(c.Request.Context(), service.CreateReturnInput{
		OrderNumber:    req.OrderNumber,
		Reason:         req.Reason,
		Details:        req.Details,
		Photos:         req.Photos,
		ResolutionType: req.ResolutionType,
		Identity:       identity,
	})
	if err != nil {
		respondServiceError(c, log, "Failed to create return request", err, map[string]interface{}{
			"order_number": req.OrderNumber,
		})
		return
	}

	log.Info("Return request created", map[string]interface{}{
		"return_id": ret.ID,
		"order_id":  ret.OrderID,
	})
	c.JSON(http.StatusCreated, gin.H{"return": ret})
}

// GetMyReturns lists the caller's return requests
// GET /api/v1/returns/mine
func (ctrl *ReturnController) GetMyReturns(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	returns, err := ctrl.returnService.ListUserReturns(userID)
	if err != nil {
		respondServiceError(c, log, "Failed to list returns", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"returns": returns, "count": len(returns)})
}

// ListReturns lists return requests for review
// GET /api/v1/admin/returns
func (ctrl *ReturnController) ListReturns(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	limit, offset := pagination(c)
	returns, total, err := ctrl.returnService.ListReturns(repository.ReturnFilter{
		Status: model.ReturnStatus(strings.ToUpper(c.Query("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(c, log, "Failed to list returns", err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"returns": returns, "total": total})
}

// GetReturn returns one return request with its log
// GET /api/v1/admin/returns/:id
func (ctrl *ReturnController) GetReturn(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ret, err := ctrl.returnService.GetReturn(id)
	if err != nil {
		respondServiceError(c, log, "Return lookup failed", err, map[string]interface{}{
			"return_id": id,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"return": ret})
}

// ApproveReturn approves a pending return and runs its resolution
// POST /api/v1/admin/returns/:id/approve
func (ctrl *ReturnController) ApproveReturn(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ReviewReturnRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, log, &req) {
		return
	}

	ret, err := ctrl.returnService.Approve(c.Request.Context(), id, middleware.OptionalUserID(c), req.Note)
	if err != nil {
		respondServiceError(c, log, "Failed to approve return", err, map[string]interface{}{
			"return_id": id,
		})
		return
	}

	log.Info("Return approved", map[string]interface{}{
		"return_id":  id,
		"resolution": ret.ResolutionType,
	})
	c.JSON(http.StatusOK, gin.H{"return": ret})
}

// RejectReturn rejects a pending return
// POST /api/v1/admin/returns/:id/reject
func (ctrl *ReturnController) RejectReturn(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req RejectReturnRequest
	if !bindJSON(c, log, &req) {
		return
	}

	ret, err := ctrl.returnService.Reject(c.Request.Context(), id, middleware.OptionalUserID(c), req.Reason)
	if err != nil {
		respondServiceError(c, log, "Failed to reject return", err, map[string]interface{}{
			"return_id": id,
		})
		return
	}

	log.Info("Return rejected", map[string]interface{}{
		"return_id": id,
	})
	c.JSON(http.StatusOK, gin.H{"return": ret})
}

// CompleteReturn closes an approved return
// POST /api/v1/admin/returns/:id/complete
func (ctrl *ReturnController) CompleteReturn(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ReviewReturnRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, log, &req) {
		return
	}

	ret, err := ctrl.returnService.Complete(c.Request.Context(), id, middleware.OptionalUserID(c), req.Note)
	if err != nil {
		respondServiceError(c, log, "Failed to complete return", err, map[string]interface{}{
			"return_id": id,
		})
		return
	}

	log.Info("Return completed", map[string]interface{}{
		"return_id": id,
	})
	c.JSON(http.StatusOK, gin.H{"return": ret})
}
