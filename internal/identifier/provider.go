// Package identifier generates random codes: numeric OTPs and opaque
// session tokens. All randomness comes from crypto/rand.
package identifier

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// NumericAlphabet is used for OTP codes.
	NumericAlphabet = "0123456789"
	// TokenAlphabet is used for session tokens. Deliberately disjoint in
	// shape from the numeric alphabet so a token can never be mistaken
	// for a code.
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~!*"
)

// Provider produces random identifiers of a given length from a given
// alphabet. Implementations must be adequate for credential
// unpredictability.
type Provider interface {
	Generate(alphabet string, length int) (string, error)
}

// CryptoProvider draws each character uniformly from the alphabet using
// crypto/rand.
type CryptoProvider struct{}

func NewCryptoProvider() *CryptoProvider {
	return &CryptoProvider{}
}

func (p *CryptoProvider) Generate(alphabet string, length int) (string, error) {
	if len(alphabet) == 0 {
		return "", fmt.Errorf("alphabet must not be empty")
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}

	return string(out), nil
}
