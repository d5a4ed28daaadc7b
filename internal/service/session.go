package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/identifier"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/status"
	"otp-auth-service/internal/util"
)

// IssueSessionCommand mints a session for an already-authenticated
// user. It never re-checks credentials; callers must only dispatch it
// after a StateAuthenticated login result.
type IssueSessionCommand struct {
	UserID string
}

func (IssueSessionCommand) Response() *models.Session { return nil }

type SessionHandler struct {
	sessions SessionStore
	ids      identifier.Provider
	cfg      config.SessionConfig
	logger   *zap.Logger
}

func NewSessionHandler(sessions SessionStore, ids identifier.Provider, cfg config.SessionConfig, logger *zap.Logger) (*SessionHandler, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("identifier provider is required")
	}
	if logger == nil {
		logger = util.Get()
	}
	return &SessionHandler{
		sessions: sessions,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (h *SessionHandler) Handle(ctx context.Context, cmd IssueSessionCommand) (*models.Session, error) {
	if cmd.UserID == "" {
		return nil, status.BadRequest("user id is required")
	}

	token, err := h.ids.Generate(identifier.TokenAlphabet, h.cfg.TokenLength)
	if err != nil {
		return nil, status.InternalWrap("failed to generate session token", err)
	}

	session := models.NewSession(token, cmd.UserID, h.cfg.TTL)
	if _, err := h.sessions.Save(ctx, session); err != nil {
		return nil, status.InternalWrap("failed to save session", err)
	}

	h.logger.Info("session issued",
		zap.String("user_id", cmd.UserID),
		zap.Time("expires_at", session.ExpiresAt))

	return session, nil
}
