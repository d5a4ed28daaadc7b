package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *client.RedisClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Redis: config.RedisConfig{
			URL:      "redis://" + mr.Addr(),
			PoolSize: 10,
		},
	}
	rc, err := client.NewRedisClient(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return mr, rc
}

func newTestHasher() *hashing.Hasher {
	// Low argon2 cost keeps the suite fast; security margins are not
	// under test here.
	return hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestOTPStoreSaveAndFind(t *testing.T) {
	mr, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())
	ctx := context.Background()

	otp := models.NewOTP("12345678", "user-1", 5*time.Minute)
	require.NoError(t, store.Save(ctx, otp))

	found, err := store.FindByCode(ctx, "12345678")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "user-1", found.UserID)
	assert.Equal(t, "12345678", found.Code)

	// Neither keys nor values carry the plaintext code.
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "12345678")
		if value, err := mr.Get(key); err == nil {
			assert.NotContains(t, value, "12345678")
		}
	}
}

func TestOTPStoreUnknownCode(t *testing.T) {
	_, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())

	found, err := store.FindByCode(context.Background(), "00000000")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestOTPStoreExpiredCode(t *testing.T) {
	mr, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())
	ctx := context.Background()

	otp := models.NewOTP("12345678", "user-1", 5*time.Minute)
	require.NoError(t, store.Save(ctx, otp))

	mr.FastForward(5*time.Minute + time.Second)

	found, err := store.FindByCode(ctx, "12345678")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestOTPStoreRejectsExpiredSave(t *testing.T) {
	_, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())

	otp := models.NewOTP("12345678", "user-1", -time.Second)
	err := store.Save(context.Background(), otp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already-expired")
}

func TestOTPStoreDelete(t *testing.T) {
	_, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())
	ctx := context.Background()

	otp := models.NewOTP("12345678", "user-1", 5*time.Minute)
	require.NoError(t, store.Save(ctx, otp))
	require.NoError(t, store.Delete(ctx, "12345678"))

	found, err := store.FindByCode(ctx, "12345678")
	require.NoError(t, err)
	assert.Nil(t, found)

	// Deleting an absent code is not an error.
	assert.NoError(t, store.Delete(ctx, "12345678"))
}

func TestOTPStoreMultipleOutstandingCodes(t *testing.T) {
	_, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.NewOTP("11111111", "user-1", 5*time.Minute)))
	require.NoError(t, store.Save(ctx, models.NewOTP("22222222", "user-1", 5*time.Minute)))

	first, err := store.FindByCode(ctx, "11111111")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.FindByCode(ctx, "22222222")
	require.NoError(t, err)
	require.NotNil(t, second)
}

func TestOTPStoreInvalidateUserOTPs(t *testing.T) {
	_, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.NewOTP("11111111", "user-1", 5*time.Minute)))
	require.NoError(t, store.Save(ctx, models.NewOTP("22222222", "user-1", 5*time.Minute)))
	require.NoError(t, store.Save(ctx, models.NewOTP("33333333", "user-2", 5*time.Minute)))

	removed, err := store.InvalidateUserOTPs(ctx, "user-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 2)

	for _, code := range []string{"11111111", "22222222"} {
		found, err := store.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Nil(t, found, "code %s should be invalidated", code)
	}

	// Other users' codes are untouched.
	found, err := store.FindByCode(ctx, "33333333")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "user-2", found.UserID)
}

func TestOTPStoreKeyUsesLookupHash(t *testing.T) {
	mr, rc := newTestRedis(t)
	store := NewOTPStore(rc, newTestHasher())

	require.NoError(t, store.Save(context.Background(), models.NewOTP("12345678", "user-1", time.Minute)))

	want := otpPrefix + hashing.LookupHash("12345678")
	var foundKey bool
	for _, key := range mr.Keys() {
		if key == want {
			foundKey = true
		}
		if strings.HasPrefix(key, otpPrefix) {
			assert.Equal(t, want, key)
		}
	}
	assert.True(t, foundKey)
}
