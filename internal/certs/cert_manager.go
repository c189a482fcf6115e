package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// CertManager checks the TLS certificate the form server is started with.
type CertManager struct {
	certFile string
	keyFile  string
}

// NewCertManager creates a new CertManager for the given certificate and key files.
func NewCertManager(certFile, keyFile string) *CertManager {
	return &CertManager{certFile: certFile, keyFile: keyFile}
}

// LoadCertificate loads the leaf certificate from the cert file.
func (cm *CertManager) LoadCertificate() (*x509.Certificate, error) {
	data, err := os.ReadFile(cm.certFile)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to parse certificate PEM")
	}

	return x509.ParseCertificate(block.Bytes)
}

// IsExpired checks if a certificate is expired.
func (cm *CertManager) IsExpired(cert *x509.Certificate, now time.Time) bool {
	return cert.NotAfter.Before(now)
}

// ExpiresWithin reports whether the certificate expires before now+window.
func (cm *CertManager) ExpiresWithin(cert *x509.Certificate, now time.Time, window time.Duration) bool {
	return cert.NotAfter.Before(now.Add(window))
}

// TLSConfig loads the key pair, refusing an expired certificate.
func (cm *CertManager) TLSConfig(now time.Time) (*tls.Config, error) {
	cert, err := cm.LoadCertificate()
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	if cm.IsExpired(cert, now) {
		return nil, fmt.Errorf("certificate %s expired at %s", cm.certFile, cert.NotAfter.Format(time.RFC3339))
	}
	pair, err := tls.LoadX509KeyPair(cm.certFile, cm.keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{pair},
	}, nil
}
