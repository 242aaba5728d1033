package handler

import (
	"context"
	"net/http"

	"github.com/apm287/stockledger/internal/domain"
)

// Restarter triggers the supervised crash/replay cycle of the mailbox
// ledger and reports the recovered balance in cents. Only the mailbox
// strategy supports it.
type Restarter interface {
	Restart(ctx context.Context) (int64, error)
}

// AdminHandler exposes the recovery drill endpoint.
type AdminHandler struct {
	restarter Restarter // nil when the active strategy is not durable
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(restarter Restarter) *AdminHandler {
	return &AdminHandler{restarter: restarter}
}

// restartResponse is the JSON response for POST /admin/restart.
type restartResponse struct {
	RecoveredBalance float64 `json:"recoveredBalance"`
}

// Restart handles POST /admin/restart.
func (h *AdminHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if h.restarter == nil {
		WriteError(w, http.StatusConflict, "not_supported",
			"restart drill requires the mailbox strategy")
		return
	}
	balance, err := h.restarter.Restart(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "Restart failed.")
		return
	}
	WriteJSON(w, http.StatusOK, restartResponse{
		RecoveredBalance: domain.CentsToDollars(balance),
	})
}
