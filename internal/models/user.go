package models

import "time"

// User is an account created on first login. Username is the natural
// unique key and doubles as the OTP delivery address; at rest it is
// stored as a lookup hash plus an encrypted blob, never in clear.
type User struct {
	UserBucket           int        `db:"user_bucket"`
	UserID               string     `db:"user_id"`
	Username             string     `db:"-"`
	UsernameHash         string     `db:"username_hash"`
	UsernameEncrypted    []byte     `db:"username_encrypted"`
	UsernameKeyID        string     `db:"username_key_id"`
	LoginAttempts        int        `db:"login_attempts"`
	RegistrationComplete bool       `db:"registration_complete"`
	CreatedAt            time.Time  `db:"created_at"`
	LastLogin            *time.Time `db:"last_login"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// NewUser returns an unsaved user; the store assigns UserID, bucket and
// timestamps on first save.
func NewUser(username string) *User {
	return &User{Username: username}
}
