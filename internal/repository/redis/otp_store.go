package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

const (
	otpPrefix      = "otp:"
	userOTPsPrefix = "user_otps:"
)

// otpRecord is the JSON payload stored per code. The plaintext code is
// never persisted: the key is its SHA-256 digest and the value carries
// an argon2 hash for verification.
type otpRecord struct {
	CodeHash  *hashing.HashResult `json:"code_hash"`
	UserID    string              `json:"user_id"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// OTPStore keeps OTPs in Redis with a TTL mirroring each record's
// expiry, so consumed-or-lapsed codes vanish on their own.
type OTPStore struct {
	client *client.RedisClient
	hasher *hashing.Hasher
}

func NewOTPStore(client *client.RedisClient, hasher *hashing.Hasher) *OTPStore {
	return &OTPStore{client: client, hasher: hasher}
}

func (s *OTPStore) Save(ctx context.Context, otp *models.OTP) error {
	ttl := time.Until(otp.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refusing to save already-expired OTP for user %s", otp.UserID)
	}

	codeHash, err := s.hasher.HashOTP(otp.Code)
	if err != nil {
		return fmt.Errorf("failed to hash OTP: %w", err)
	}

	record := otpRecord{
		CodeHash:  codeHash,
		UserID:    otp.UserID,
		CreatedAt: otp.CreatedAt,
		ExpiresAt: otp.ExpiresAt,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP record: %w", err)
	}

	key := otpPrefix + hashing.LookupHash(otp.Code)
	if err := s.client.Set(ctx, key, payload, ttl); err != nil {
		util.Error("Failed to save OTP",
			zap.String("user_id", otp.UserID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save OTP: %w", err)
	}

	// Track the user's outstanding codes for operator invalidation.
	userKey := userOTPsPrefix + otp.UserID
	if err := s.client.SAdd(ctx, userKey, key); err == nil {
		_ = s.client.Expire(ctx, userKey, ttl)
	}

	util.Debug("OTP saved",
		zap.String("user_id", otp.UserID),
		zap.Duration("ttl", ttl))
	return nil
}

// FindByCode returns nil, nil when the code is unknown or expired. The
// expiry check is strict: a record whose expires_at equals now is gone
// even if Redis has not evicted it yet.
func (s *OTPStore) FindByCode(ctx context.Context, code string) (*models.OTP, error) {
	key := otpPrefix + hashing.LookupHash(code)

	payload, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, nil
		}
		util.Error("Failed to get OTP", zap.Error(err))
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var record otpRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP record: %w", err)
	}

	if !time.Now().UTC().Before(record.ExpiresAt) {
		return nil, nil
	}

	ok, err := s.hasher.VerifyOTP(code, record.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify OTP hash: %w", err)
	}
	if !ok {
		// Key collision without hash match means tampered data.
		util.Warn("OTP record failed hash verification",
			zap.String("user_id", record.UserID))
		return nil, nil
	}

	return &models.OTP{
		Code:      code,
		UserID:    record.UserID,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *OTPStore) Delete(ctx context.Context, code string) error {
	key := otpPrefix + hashing.LookupHash(code)

	if _, err := s.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete OTP", zap.Error(err))
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	util.Debug("OTP deleted")
	return nil
}

// InvalidateUserOTPs removes every outstanding code for a user. The
// login flow never calls this; it exists for operators.
func (s *OTPStore) InvalidateUserOTPs(ctx context.Context, userID string) (int, error) {
	userKey := userOTPsPrefix + userID

	keys, err := s.client.SMembers(ctx, userKey)
	if err != nil {
		return 0, fmt.Errorf("failed to list user OTPs: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := s.client.Del(ctx, append(keys, userKey)...)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate user OTPs: %w", err)
	}

	util.Info("User OTPs invalidated",
		zap.String("user_id", userID),
		zap.Int("count", len(keys)))
	return int(removed), nil
}
