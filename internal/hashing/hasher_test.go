package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otp-auth-service/internal/config"
)

func newTestHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := newTestHasher()

	result, err := h.HashOTP("12345678")
	require.NoError(t, err)
	assert.Equal(t, "argon2id", result.Algorithm)
	assert.NotEmpty(t, result.Hash)
	assert.NotEmpty(t, result.Salt)
	assert.NotContains(t, result.Hash, "12345678")

	ok, err := h.VerifyOTP("12345678", result)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyOTP("87654321", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashOTPSaltsDiffer(t *testing.T) {
	h := newTestHasher()

	first, err := h.HashOTP("12345678")
	require.NoError(t, err)
	second, err := h.HashOTP("12345678")
	require.NoError(t, err)

	assert.NotEqual(t, first.Salt, second.Salt)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestVerifyOTPUnknownPepperVersion(t *testing.T) {
	h := newTestHasher()

	result, err := h.HashOTP("12345678")
	require.NoError(t, err)
	result.PepperVersion = 99

	_, err = h.VerifyOTP("12345678", result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPepperVersion)
}

func TestVerifyOTPAcrossRotation(t *testing.T) {
	h := newTestHasher()

	result, err := h.HashOTP("12345678")
	require.NoError(t, err)

	h.rotatePepper()

	ok, err := h.VerifyOTP("12345678", result)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLookupHash(t *testing.T) {
	first := LookupHash("alice@example.com")
	second := LookupHash("alice@example.com")
	other := LookupHash("bob@example.com")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 64)
	assert.NotContains(t, first, "@")
}
