package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

var ErrUnknownPepperVersion = errors.New("unknown pepper version")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value     string
	CreatedAt time.Time
	Version   int
}

// Hasher hashes OTP codes for storage at rest with argon2id plus a
// rotating in-memory pepper. It also provides the deterministic lookup
// hash used as the store key for usernames and codes.
type Hasher struct {
	params        Argon2Params
	currentPepper *Pepper
	oldPeppers    []*Pepper
	config        *config.Config
	mu            sync.RWMutex
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	params := Argon2Params{
		Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
		SaltLength:  32,
		KeyLength:   32,
	}

	h := &Hasher{
		params: params,
		config: cfg,
	}

	h.rotatePepper()

	return h
}

func (h *Hasher) rotatePepper() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentPepper != nil {
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
	}

	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		util.Fatal("Failed to generate pepper", zap.Error(err))
	}

	h.currentPepper = &Pepper{
		Value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		CreatedAt: time.Now(),
		Version:   len(h.oldPeppers) + 1,
	}

	util.Info("Pepper rotated",
		zap.Int("version", h.currentPepper.Version),
		zap.Time("created_at", h.currentPepper.CreatedAt),
	)
}

// StartPepperRotation starts background pepper rotation. Old peppers
// stay resolvable for two rotations so in-flight OTPs keep verifying;
// that window far exceeds any OTP TTL.
func (h *Hasher) StartPepperRotation() {
	ticker := time.NewTicker(time.Duration(h.config.Hashing.PepperRotationDays) * 24 * time.Hour)

	go func() {
		for range ticker.C {
			h.rotatePepper()

			h.mu.Lock()
			if len(h.oldPeppers) > 2 {
				h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-2:]
			}
			h.mu.Unlock()
		}
	}()
}

// HashOTP hashes an OTP code with the current pepper for storage.
func (h *Hasher) HashOTP(code string) (*HashResult, error) {
	h.mu.RLock()
	pepper := h.currentPepper
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := argon2.IDKey(
		[]byte(code+pepper.Value),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &HashResult{
		Hash:          base64.RawStdEncoding.EncodeToString(key),
		Salt:          base64.RawStdEncoding.EncodeToString(salt),
		PepperVersion: pepper.Version,
		Algorithm:     "argon2id",
	}, nil
}

// VerifyOTP checks a submitted code against a stored hash in constant
// time.
func (h *Hasher) VerifyOTP(code string, stored *HashResult) (bool, error) {
	pepper, err := h.pepperForVersion(stored.PepperVersion)
	if err != nil {
		return false, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false, err
	}
	want, err := base64.RawStdEncoding.DecodeString(stored.Hash)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey(
		[]byte(code+pepper.Value),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(want)),
	)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func (h *Hasher) pepperForVersion(version int) (*Pepper, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.currentPepper != nil && h.currentPepper.Version == version {
		return h.currentPepper, nil
	}
	for _, p := range h.oldPeppers {
		if p.Version == version {
			return p, nil
		}
	}
	return nil, ErrUnknownPepperVersion
}

// LookupHash is the deterministic SHA-256 hex digest used to key store
// rows by username or OTP code without persisting the plaintext.
func LookupHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
