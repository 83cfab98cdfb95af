package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelsec/authguard/internal/models"
	"github.com/kestrelsec/authguard/internal/services"
	pkghttp "github.com/kestrelsec/authguard/pkg/http"
)

// AuthHandler fronts the credential authentication path and the session
// lifecycle.
type AuthHandler struct {
	credentials *services.CredentialService
	sessions    *services.SessionService
	ips         *pkghttp.ClientIPResolver
	logger      *slog.Logger
}

// NewAuthHandler creates the handler.
func NewAuthHandler(credentials *services.CredentialService, sessions *services.SessionService, ips *pkghttp.ClientIPResolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		sessions:    sessions,
		ips:         ips,
		logger:      logger,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	OTPCode    string `json:"otp_code,omitempty"`
}

type sessionResponse struct {
	ID        string `json:"id"`
	ExpiresAt string `json:"expires_at"`
}

type authResponse struct {
	Outcome           string           `json:"outcome"`
	Session           *sessionResponse `json:"session,omitempty"`
	MFAToken          string           `json:"mfa_token,omitempty"`
	Reason            string           `json:"reason,omitempty"`
	AttemptsRemaining int              `json:"attempts_remaining,omitempty"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		pkghttp.WriteBadRequest(w, "identifier and password are required")
		return
	}

	originIP := h.ips.ClientIP(r)

	result, err := h.credentials.Authenticate(r.Context(), req.Identifier, req.Password, originIP, req.OTPCode)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	writeAuthResult(w, result)
}

type mfaRequest struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

// CompleteMFA handles POST /auth/mfa, the second step of a login that
// came back with outcome "mfa_required".
func (h *AuthHandler) CompleteMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		pkghttp.WriteBadRequest(w, "mfa_token and code are required")
		return
	}

	originIP := h.ips.ClientIP(r)

	result, err := h.credentials.CompleteMFA(r.Context(), req.MFAToken, req.Code, originIP)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	writeAuthResult(w, result)
}

type enrollRequest struct {
	Identifier string `json:"identifier"`
}

// EnrollMFA handles POST /admin/mfa/enrollments. The response carries
// only the QR provisioning payload; the secret stays server-side.
func (h *AuthHandler) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		pkghttp.WriteBadRequest(w, "identifier is required")
		return
	}

	enrollment, err := h.credentials.EnrollTOTP(r.Context(), req.Identifier)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{
		"qr_code": enrollment.QRCodeDataURL,
	})
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// ValidateSession handles POST /session/validate. Validation slides the
// expiry window, so this doubles as the keep-alive call.
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		pkghttp.WriteBadRequest(w, "session_id is required")
		return
	}

	result, err := h.sessions.Validate(r.Context(), req.SessionID)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	if !result.Valid {
		pkghttp.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"valid":  false,
			"reason": result.Reason,
		})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"session": sessionResponse{
			ID:        result.Session.ID,
			ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		pkghttp.WriteBadRequest(w, "session_id is required")
		return
	}

	removed, err := h.sessions.Terminate(r.Context(), req.SessionID)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"terminated": removed})
}

// writeAuthResult maps the shared auth result shape onto HTTP. Lockouts
// surface as 423 so clients can distinguish "back off" from "try again".
func writeAuthResult(w http.ResponseWriter, result *models.AuthResult) {
	resp := authResponse{
		Outcome:           string(result.Outcome),
		MFAToken:          result.MFAToken,
		Reason:            result.Reason,
		AttemptsRemaining: result.AttemptsRemaining,
	}
	if result.Session != nil {
		resp.Session = &sessionResponse{
			ID:        result.Session.ID,
			ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}

	switch result.Outcome {
	case models.AuthSuccess, models.AuthMFARequired:
		pkghttp.WriteJSON(w, http.StatusOK, resp)
	case models.AuthLocked:
		pkghttp.WriteJSON(w, http.StatusLocked, resp)
	default:
		pkghttp.WriteJSON(w, http.StatusUnauthorized, resp)
	}
}
