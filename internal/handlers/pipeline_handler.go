package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"custodia/internal/services"
)

// pipelineSyncTimeout bounds a pipeline-triggered sync run. Detached from
// the request context so a dropped connection does not abort a half-done
// run.
const pipelineSyncTimeout = 10 * time.Minute

// PipelineHandler exposes internal triggers for the data pipeline. Routes
// using it must sit behind the X-API-Key middleware.
type PipelineHandler struct {
	priceSyncService services.PriceSyncServicer
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(priceSyncService services.PriceSyncServicer) *PipelineHandler {
	return &PipelineHandler{priceSyncService: priceSyncService}
}

// TriggerPriceSync runs the daily price sync on demand
// @Summary     Trigger price sync
// @Description Run the daily price history sync immediately. Intended for the external data pipeline; authenticated with the X-API-Key header.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header string true "Pipeline API key"
// @Success     200 {object} services.SyncReport "Sync report"
// @Failure     401 {object} ErrorResponse "Invalid or missing API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/price-sync [post]
func (h *PipelineHandler) TriggerPriceSync(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), pipelineSyncTimeout)
	defer cancel()

	report, err := h.priceSyncService.SyncDailyHistory(ctx)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}
