package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/encryption"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/util"
)

// UserStore persists users in two tables: `users`, partitioned by
// murmur3 bucket, and `login_to_user`, a lookup table keyed by the
// SHA-256 username hash. The username itself is stored only inside the
// encrypted blob.
type UserStore struct {
	client        *ScyllaClient
	encryptionMgr *encryption.EncryptionManager
	bucketingMgr  *bucketing.BucketingManager
}

func NewUserStore(client *ScyllaClient, encryptionMgr *encryption.EncryptionManager, bucketingMgr *bucketing.BucketingManager, logger *zap.Logger) *UserStore {
	return &UserStore{
		client:        client,
		encryptionMgr: encryptionMgr,
		bucketingMgr:  bucketingMgr,
	}
}

// FindByLogin resolves a username through the lookup table, then reads
// and decrypts the full row. Returns nil, nil when no account exists.
func (s *UserStore) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	usernameHash := hashing.LookupHash(login)

	var userBucket int
	var userID string
	query := s.client.Prepared.GetUserByLogin.WithContext(ctx).Bind(usernameHash)
	if err := s.client.ScanWithRetry(query, &userBucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to resolve login", zap.Error(err))
		return nil, fmt.Errorf("failed to resolve login: %w", err)
	}

	user, err := s.getByBucketAndID(ctx, userBucket, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Lookup row without a user row; treat as absent but log it,
		// since the batch insert should make this impossible.
		util.Warn("Dangling login_to_user row",
			zap.String("user_id", userID))
		return nil, nil
	}

	user.Username = login
	return user, nil
}

func (s *UserStore) getByBucketAndID(ctx context.Context, userBucket int, userID string) (*models.User, error) {
	user := &models.User{}

	query := s.client.Prepared.GetUserByID.WithContext(ctx).Bind(userBucket, userID)
	err := s.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.UsernameHash,
		&user.UsernameEncrypted, &user.UsernameKeyID, &user.LoginAttempts,
		&user.RegistrationComplete, &user.CreatedAt, &user.LastLogin,
		&user.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetByID loads and decrypts a user row by id.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	userBucket := s.bucketingMgr.GetUserBucket(userID)

	user, err := s.getByBucketAndID(ctx, userBucket, userID)
	if err != nil || user == nil {
		return user, err
	}

	var blob encryption.EncryptedData
	if err := json.Unmarshal(user.UsernameEncrypted, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode username blob: %w", err)
	}
	plaintext, err := s.encryptionMgr.Decrypt(ctx, &blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt username: %w", err)
	}
	user.Username = string(plaintext)

	return user, nil
}

// Save persists a new user, assigning id, bucket and timestamps. Both
// tables are written in one logged batch so the lookup row can never
// exist without the user row.
func (s *UserStore) Save(ctx context.Context, user *models.User) (*models.User, error) {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = s.bucketingMgr.GetUserBucket(user.UserID)
	user.UsernameHash = hashing.LookupHash(user.Username)

	encrypted, err := s.encryptionMgr.Encrypt(ctx, []byte(user.Username))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt username: %w", err)
	}
	blob, err := json.Marshal(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to encode username blob: %w", err)
	}
	user.UsernameEncrypted = blob
	user.UsernameKeyID = encrypted.KeyID

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(s.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.UsernameHash,
		user.UsernameEncrypted, user.UsernameKeyID, user.LoginAttempts,
		user.RegistrationComplete, user.CreatedAt, user.LastLogin,
		user.UpdatedAt)
	batch.Query(s.client.Prepared.CreateLoginRow.Statement(),
		user.UsernameHash, user.UserBucket, user.UserID, user.CreatedAt)

	if err := s.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))

	return user, nil
}

// Update rewrites the mutable fields of an existing user.
func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	query := s.client.Prepared.UpdateUserState.WithContext(ctx).Bind(
		user.LoginAttempts, user.RegistrationComplete, user.LastLogin,
		user.UpdatedAt, user.UserBucket, user.UserID)

	if err := s.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}

	util.Debug("User updated", zap.String("user_id", user.UserID))
	return nil
}

// HealthCheck verifies the session can reach the cluster.
func (s *UserStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
