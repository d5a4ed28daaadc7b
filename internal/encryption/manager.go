package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedData is the serialized form stored in the username_encrypted
// column: AES-GCM ciphertext plus the envelope-encrypted DEK.
type EncryptedData struct {
	EncryptedValue string    `json:"encrypted_value"`
	EncryptedDEK   string    `json:"encrypted_dek"`
	KeyID          string    `json:"key_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

// EncryptionManager envelope-encrypts PII (the username/email address)
// before it reaches the user store. With KMS disabled it falls back to
// a locally generated DEK, which is fine for development only.
type EncryptionManager struct {
	kmsClient *kms.Client
	config    *config.Config
	keyCache  sync.Map // encrypted DEK -> plaintext DEK
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

func NewEncryptionManager(cfg *config.Config, kmsClient *kms.Client) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// GenerateDataKey generates a new data encryption key using KMS, or a
// local key when KMS is disabled.
func (em *EncryptionManager) GenerateDataKey(ctx context.Context) (*DataKey, error) {
	if !em.config.KMS.Enabled || em.kmsClient == nil {
		return em.generateLocalKey(), nil
	}

	input := &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	}

	result, err := em.kmsClient.GenerateDataKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &DataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      em.config.KMS.KeyID,
	}, nil
}

func (em *EncryptionManager) generateLocalKey() *DataKey {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		util.Fatal("Failed to generate local encryption key", zap.Error(err))
	}

	// In development the "encrypted" DEK is just the base64 of the key.
	ciphertext := []byte(base64.StdEncoding.EncodeToString(key))

	return &DataKey{
		Plaintext:  key,
		Ciphertext: ciphertext,
		KeyID:      uuid.New().String(),
	}
}

// Encrypt seals plaintext under a fresh DEK.
func (em *EncryptionManager) Encrypt(ctx context.Context, plaintext []byte) (*EncryptedData, error) {
	dataKey, err := em.GenerateDataKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(dataKey.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)

	encDEK := base64.StdEncoding.EncodeToString(dataKey.Ciphertext)
	em.keyCache.Store(encDEK, dataKey.Plaintext)

	return &EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK:   encDEK,
		KeyID:          dataKey.KeyID,
		Version:        "v1",
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Decrypt opens data sealed by Encrypt. The DEK is resolved from the
// cache, KMS, or (in development) the DEK blob itself.
func (em *EncryptionManager) Decrypt(ctx context.Context, data *EncryptedData) ([]byte, error) {
	key, err := em.resolveDataKey(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	sealed, err := base64.StdEncoding.DecodeString(data.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (em *EncryptionManager) resolveDataKey(ctx context.Context, data *EncryptedData) ([]byte, error) {
	if cached, ok := em.keyCache.Load(data.EncryptedDEK); ok {
		return cached.([]byte), nil
	}

	dekBlob, err := base64.StdEncoding.DecodeString(data.EncryptedDEK)
	if err != nil {
		return nil, err
	}

	if !em.config.KMS.Enabled || em.kmsClient == nil {
		// Development path mirrors generateLocalKey.
		key, err := base64.StdEncoding.DecodeString(string(dekBlob))
		if err != nil {
			return nil, err
		}
		em.keyCache.Store(data.EncryptedDEK, key)
		return key, nil
	}

	result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: dekBlob,
		KeyId:          aws.String(data.KeyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}

	em.keyCache.Store(data.EncryptedDEK, result.Plaintext)
	return result.Plaintext, nil
}

// ClearCache drops all cached plaintext DEKs.
func (em *EncryptionManager) ClearCache() {
	em.keyCache.Range(func(key, _ any) bool {
		em.keyCache.Delete(key)
		return true
	})
}
