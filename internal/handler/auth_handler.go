package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-auth-service/internal/command"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/service"
	"otp-auth-service/internal/status"
	"otp-auth-service/internal/util"
)

// AuthHandler exposes the login flow over HTTP. Everything it does is a
// thin translation between JSON/cookies and bus commands.
type AuthHandler struct {
	bus      *command.Bus
	sessions service.SessionStore
	cfg      *config.Config
	logger   *zap.Logger
}

func NewAuthHandler(bus *command.Bus, sessions service.SessionStore, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = util.Get()
	}
	return &AuthHandler{
		bus:      bus,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
}

type loginRequest struct {
	Username string `json:"username"`
	OTP      string `json:"otp,omitempty"`
}

type loginResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// Login handles both phases of the flow: a request without an OTP asks
// for a code, a request with one exchanges it for a session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, status.BadRequest("invalid JSON body"))
		return
	}

	cmd := service.LoginUserCommand{
		Login: util.SanitizeInput(req.Username),
		OTP:   util.SanitizeInput(req.OTP),
	}

	result, err := command.Send[service.LoginResult](r.Context(), h.bus, cmd)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if result.State == service.StateAwaitingOTP {
		h.writeJSON(w, http.StatusOK, loginResponse{
			Status:  "otp_sent",
			Message: result.Message,
		})
		return
	}

	session, err := command.Send[*models.Session](r.Context(), h.bus, service.IssueSessionCommand{
		UserID: result.User.UserID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.Token, session.ExpiresAt))
	h.writeJSON(w, http.StatusOK, loginResponse{
		Status:  "authenticated",
		Message: result.Message,
		UserID:  result.User.UserID,
	})
}

// Logout destroys the caller's session, if any, and clears the cookie
// either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cfg.Session.CookieName)
	if err == nil && cookie.Value != "" {
		if _, err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.writeError(w, status.InternalWrap("failed to destroy session", err))
			return
		}
	}

	http.SetCookie(w, h.sessionCookie("", time.Unix(0, 0)))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Me reports the session behind the caller's cookie.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.cfg.Session.CookieName)
	if err != nil || cookie.Value == "" {
		h.writeError(w, status.AuthError("not authenticated"))
		return
	}

	session, err := h.sessions.Load(r.Context(), cookie.Value)
	if err != nil {
		h.writeError(w, status.InternalWrap("failed to load session", err))
		return
	}
	if session == nil {
		h.writeError(w, status.AuthError("not authenticated"))
		return
	}

	h.writeJSON(w, http.StatusOK, meResponse{
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AuthHandler) sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.Server.EnableTLS,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps a status kind to an HTTP code. Internal details are
// logged here and never echoed to the client.
func (h *AuthHandler) writeError(w http.ResponseWriter, err error) {
	kind := status.KindOf(err)
	if kind == status.KindInternal {
		h.logger.Error("Request failed", zap.Error(err))
	}

	h.writeJSON(w, httpStatusFor(kind), map[string]string{
		"error": status.MessageOf(err),
	})
}

func httpStatusFor(kind status.Kind) int {
	switch kind {
	case status.KindBadRequest:
		return http.StatusBadRequest
	case status.KindAuthError:
		return http.StatusUnauthorized
	case status.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
