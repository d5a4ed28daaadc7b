package models

import "time"

// OTPLength is the canonical numeric code length.
const OTPLength = 8

// OTP is a one-time passcode bound to a user. Records are immutable:
// an OTP is deleted after successful validation or left to lapse.
type OTP struct {
	Code      string    `db:"-" json:"-"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// NewOTP stamps a code with its validity window. ExpiresAt is always
// strictly after CreatedAt for any positive ttl.
func NewOTP(code, userID string, ttl time.Duration) *OTP {
	now := time.Now().UTC()
	return &OTP{
		Code:      code,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the OTP is no longer valid at now. The
// boundary is strict: a code whose ExpiresAt equals now is expired.
func (o *OTP) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
