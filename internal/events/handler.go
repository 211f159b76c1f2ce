// ABOUTME: Refresh command handler invoked from NATS subscriptions
// ABOUTME: Parses the data type, forces a refresh, and shapes the reply

package events

import (
	"context"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// Refresher forces one synchronous catalog refresh and reports how many
// records the new snapshot holds.
type Refresher interface {
	Refresh(ctx context.Context, dataType types.DataType) (int, error)
}

// Handler processes refresh commands against the catalog service.
type Handler struct {
	refresher Refresher
	audit     *observability.AuditLogger
}

// NewHandler creates a new command handler. The audit logger is
// optional.
func NewHandler(refresher Refresher, audit *observability.AuditLogger) *Handler {
	return &Handler{
		refresher: refresher,
		audit:     audit,
	}
}

// ProcessRequest forces one refresh and returns the reply to send.
func (h *Handler) ProcessRequest(ctx context.Context, req RefreshRequest) RefreshResponse {
	resp := RefreshResponse{RequestID: req.RequestID}

	dataType, err := types.ParseDataType(req.DataType)
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		return resp
	}

	if h.audit != nil {
		h.audit.LogRefreshCommand(ctx, string(dataType), "nats")
	}

	count, err := h.refresher.Refresh(ctx, dataType)
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
		return resp
	}

	resp.Status = "ok"
	resp.Count = count
	return resp
}
