package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/identifier"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/status"
	"otp-auth-service/internal/util"
)

// LoginUserCommand drives the two-phase login flow. An empty OTP means
// "send me a code"; a non-empty OTP completes the flow.
type LoginUserCommand struct {
	Login string
	OTP   string
}

func (LoginUserCommand) Response() LoginResult { return LoginResult{} }

type LoginState int

const (
	// StateAwaitingOTP means a code was issued and delivered; the caller
	// must repeat the command with the code to finish.
	StateAwaitingOTP LoginState = iota
	// StateAuthenticated means the OTP checked out and User is set.
	StateAuthenticated
)

// LoginResult is the tagged outcome of a login dispatch. Failures
// travel on the error channel as status values; "OTP sent" is not a
// failure and lives here.
type LoginResult struct {
	State   LoginState
	User    *models.User
	Message string
}

// LoginHandler implements the login state machine. It holds no mutable
// state of its own; all stores are internally synchronized, so the bus
// may run any number of dispatches concurrently.
type LoginHandler struct {
	users    UserStore
	otps     OTPStore
	ids      identifier.Provider
	notifier Notifier
	cfg      config.OTPConfig
	logger   *zap.Logger
}

func NewLoginHandler(users UserStore, otps OTPStore, ids identifier.Provider, notifier Notifier, cfg config.OTPConfig, logger *zap.Logger) (*LoginHandler, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if otps == nil {
		return nil, fmt.Errorf("otp store is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("identifier provider is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if logger == nil {
		logger = util.Get()
	}
	return &LoginHandler{
		users:    users,
		otps:     otps,
		ids:      ids,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (h *LoginHandler) Handle(ctx context.Context, cmd LoginUserCommand) (LoginResult, error) {
	if cmd.Login == "" {
		return LoginResult{}, status.BadRequest("username is required")
	}

	user, err := h.users.FindByLogin(ctx, cmd.Login)
	if err != nil {
		return LoginResult{}, status.InternalWrap("failed to look up user", err)
	}

	if user == nil {
		if !h.cfg.AllowImplicitRegistration {
			h.logger.Info("login rejected for unknown username",
				zap.String("login_hint", util.SanitizeInput(cmd.Login)))
			return LoginResult{}, status.AuthError("unknown username")
		}
		user, err = h.users.Save(ctx, models.NewUser(cmd.Login))
		if err != nil {
			return LoginResult{}, status.InternalWrap("failed to register user", err)
		}
		h.logger.Info("user registered implicitly on first login",
			zap.String("user_id", user.UserID))
	}

	if cmd.OTP == "" {
		return h.issueOTP(ctx, user)
	}
	return h.validateOTP(ctx, user, cmd.OTP)
}

func (h *LoginHandler) issueOTP(ctx context.Context, user *models.User) (LoginResult, error) {
	code, err := h.ids.Generate(identifier.NumericAlphabet, h.cfg.Length)
	if err != nil {
		return LoginResult{}, status.InternalWrap("failed to generate OTP", err)
	}

	// Deliberately does not invalidate earlier codes for this user:
	// every unexpired code stays valid until consumed. See DESIGN.md.
	otp := models.NewOTP(code, user.UserID, h.cfg.TTL)
	if err := h.otps.Save(ctx, otp); err != nil {
		return LoginResult{}, status.InternalWrap("failed to save OTP", err)
	}

	if err := h.notifier.SendOTP(ctx, user.Username, code); err != nil {
		return LoginResult{}, status.InternalWrap("failed to send OTP", err)
	}

	user.LoginAttempts++
	if err := h.users.Update(ctx, user); err != nil {
		// Attempt counting is bookkeeping; the code is already on its way.
		h.logger.Warn("failed to record login attempt",
			zap.String("user_id", user.UserID), zap.Error(err))
	}

	h.logger.Info("OTP issued",
		zap.String("user_id", user.UserID),
		zap.Time("expires_at", otp.ExpiresAt))

	return LoginResult{State: StateAwaitingOTP, Message: "OTP sent to email"}, nil
}

func (h *LoginHandler) validateOTP(ctx context.Context, user *models.User, code string) (LoginResult, error) {
	if len(code) != h.cfg.Length {
		return LoginResult{}, status.BadRequest(fmt.Sprintf("OTP must be %d digits", h.cfg.Length))
	}

	otp, err := h.otps.FindByCode(ctx, code)
	if err != nil {
		return LoginResult{}, status.InternalWrap("failed to look up OTP", err)
	}
	if otp == nil || otp.UserID != user.UserID {
		h.logger.Info("OTP validation failed", zap.String("user_id", user.UserID))
		return LoginResult{}, status.AuthError("invalid OTP")
	}

	if err := h.otps.Delete(ctx, code); err != nil {
		// The code validated; failing the login here would let a caller
		// replay it, so log loudly and continue.
		h.logger.Error("failed to consume OTP",
			zap.String("user_id", user.UserID), zap.Error(err))
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	user.RegistrationComplete = true
	user.LoginAttempts = 0
	if err := h.users.Update(ctx, user); err != nil {
		h.logger.Warn("failed to record successful login",
			zap.String("user_id", user.UserID), zap.Error(err))
	}

	h.logger.Info("user authenticated", zap.String("user_id", user.UserID))

	return LoginResult{State: StateAuthenticated, User: user, Message: "login successful"}, nil
}
