package service

import (
	"context"

	"otp-auth-service/internal/models"
)

// UserStore persists accounts keyed by username.
type UserStore interface {
	// FindByLogin returns nil, nil when no account exists for login.
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	// Save persists a new user and assigns its id and timestamps.
	Save(ctx context.Context, user *models.User) (*models.User, error)
	// Update rewrites the mutable fields of an existing user.
	Update(ctx context.Context, user *models.User) error
}

// OTPStore persists one-time passcodes keyed by code.
type OTPStore interface {
	Save(ctx context.Context, otp *models.OTP) error
	// FindByCode returns nil, nil when the code is unknown or expired.
	FindByCode(ctx context.Context, code string) (*models.OTP, error)
	Delete(ctx context.Context, code string) error
}

// SessionStore persists sessions keyed by token.
type SessionStore interface {
	Save(ctx context.Context, session *models.Session) (string, error)
	// Load returns nil, nil when the token is unknown or expired.
	Load(ctx context.Context, token string) (*models.Session, error)
	// Destroy reports whether a session was actually removed.
	Destroy(ctx context.Context, token string) (bool, error)
	// Cleanup purges expired sessions; no timing guarantee.
	Cleanup(ctx context.Context) error
}

// Notifier delivers an OTP code to a user's contact address.
type Notifier interface {
	SendOTP(ctx context.Context, address, code string) error
}
