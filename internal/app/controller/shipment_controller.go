package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

type ShipmentController struct {
	shipmentService service.ShipmentService
	batchSize       int
}

func NewShipmentController(shipmentService service.ShipmentService, batchSize int) *ShipmentController {
	return &ShipmentController{
		shipmentService: shipmentService,
		batchSize:       batchSize,
	}
}

// PollTracking runs one tracking pass on demand
// POST /api/v1/admin/shipments/poll
func (ctrl *ShipmentController) PollTracking(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	batch := ctrl.batchSize
	if v, err := strconv.Atoi(c.Query("batch")); err == nil && v > 0 {
		batch = v
	}

	summary, err := ctrl.shipmentService.PollTracking(c.Request.Context(), batch)
	if err != nil {
		respondServiceError(c, log, "Tracking poll failed", err, nil)
		return
	}

	log.Info("Tracking poll finished", map[string]interface{}{
		"checked":  summary.Checked,
		"advanced": summary.Advanced,
	})
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
