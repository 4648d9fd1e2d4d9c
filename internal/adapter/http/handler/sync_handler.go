package handler

import (
	"payment-tracker/internal/adapter/http/dto"
	"payment-tracker/internal/core/ports"
	"payment-tracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// SyncHandler exposes on-demand resync and its status.
type SyncHandler struct {
	syncSvc ports.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncSvc ports.SyncService) *SyncHandler {
	return &SyncHandler{syncSvc: syncSvc}
}

// Resync handles POST /api/v1/sync. A partial pass is still a 200; the
// failed rows are listed in the summary.
func (h *SyncHandler) Resync(c *gin.Context) {
	summary, err := h.syncSvc.Resync(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.SyncResponse{Partial: summary.Partial(), Summary: summary})
}

// Status handles GET /api/v1/sync/status.
func (h *SyncHandler) Status(c *gin.Context) {
	response.OK(c, h.syncSvc.Status())
}
