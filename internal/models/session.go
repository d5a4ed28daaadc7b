package models

import "time"

// Session is an opaque credential minted after successful OTP
// validation. The token is unrelated to any OTP code and the record is
// never mutated after creation.
type Session struct {
	Token     string    `db:"session_token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

func NewSession(token, userID string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired uses the same strict boundary as OTP expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
