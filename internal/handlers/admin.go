package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelsec/authguard/internal/services"
	pkghttp "github.com/kestrelsec/authguard/pkg/http"
)

// AdminHandler exposes the operator surface: hard-block management and
// the posture report.
type AdminHandler struct {
	lockout *services.LockoutService
	posture *services.PostureService
	logger  *slog.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(lockout *services.LockoutService, posture *services.PostureService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		lockout: lockout,
		posture: posture,
		logger:  logger,
	}
}

type blockRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

// BlockIP handles POST /admin/blocks.
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		pkghttp.WriteBadRequest(w, "ip is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "operator block"
	}

	if err := h.lockout.Block(r.Context(), req.IP, req.Reason); err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"ip": req.IP, "status": "blocked"})
}

// UnblockIP handles DELETE /admin/blocks/{ip}.
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "ip is required")
		return
	}

	if err := h.lockout.Unblock(r.Context(), ip); err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Posture handles GET /admin/posture.
func (h *AdminHandler) Posture(w http.ResponseWriter, r *http.Request) {
	report, err := h.posture.Assess(r.Context())
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, report)
}
