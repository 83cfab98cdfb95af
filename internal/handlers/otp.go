package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/services"
	pkghttp "github.com/kestrelsec/authguard/pkg/http"
)

// OTPHandler fronts the one-time-passcode gateway.
type OTPHandler struct {
	otp    *services.OTPService
	ips    *pkghttp.ClientIPResolver
	logger *slog.Logger
}

// NewOTPHandler creates the handler.
func NewOTPHandler(otp *services.OTPService, ips *pkghttp.ClientIPResolver, logger *slog.Logger) *OTPHandler {
	return &OTPHandler{
		otp:    otp,
		ips:    ips,
		logger: logger,
	}
}

type initiateRequest struct {
	PrincipalID string `json:"principal_id"`
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
}

// Initiate handles POST /otp/initiate. The response carries only the
// masked destination.
func (h *OTPHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.PrincipalID == "" || req.Channel == "" || req.Destination == "" {
		pkghttp.WriteBadRequest(w, "principal_id, channel and destination are required")
		return
	}

	receipt, err := h.otp.Initiate(r.Context(), req.PrincipalID, models.Channel(req.Channel), req.Destination)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, receipt)
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// Verify handles POST /otp/verify.
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		pkghttp.WriteBadRequest(w, "challenge_id and code are required")
		return
	}

	originIP := h.ips.ClientIP(r)

	result, err := h.otp.Verify(r.Context(), req.ChallengeID, req.Code, originIP)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	writeAuthResult(w, result)
}
