// Package tls serves certificates for the HTTPS listener: configured
// key pairs when present, a locally generated development certificate
// otherwise.
package tls

import (
	"crypto/tls"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"otp-auth-service/internal/util"
)

type TLSConfig struct {
	CertFile    string
	KeyFile     string
	CertDir     string
	Environment string
}

type TLSManager struct {
	config *TLSConfig

	mu      sync.Mutex
	devCert *tls.Certificate
}

func NewTLSManager(config *TLSConfig) *TLSManager {
	return &TLSManager{config: config}
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.config.CertFile != "" && m.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err == nil {
			return &cert, nil
		}
		util.Warn("Failed to load configured certificate, falling back to self-signed",
			zap.String("cert_file", m.config.CertFile),
			zap.Error(err))
	}

	if m.config.Environment == "production" {
		return nil, fmt.Errorf("no usable certificate configured")
	}

	return m.selfSignedCert()
}

func (m *TLSManager) selfSignedCert() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.devCert != nil {
		return m.devCert, nil
	}

	generator := NewDevCertGenerator(m.config.CertDir)
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	cert, err := generator.GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}

	util.Info("Using self-signed development certificate", zap.Strings("hosts", hosts))
	m.devCert = &cert
	return m.devCert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}
