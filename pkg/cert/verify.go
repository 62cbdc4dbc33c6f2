package cert

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Verification errors.
var (
	ErrCertExpired     = errors.New("certificate has expired")
	ErrCertNotYetValid = errors.New("certificate is not yet valid")
	ErrInvalidChain    = errors.New("invalid certificate chain")
	ErrKeyMismatch     = errors.New("private key does not match certificate")
)

// VerifyAgentCert checks that cert is currently valid, chains to one of the
// given CA certificates and is usable for both client and server
// authentication.
func VerifyAgentCert(cert *x509.Certificate, caCerts []*x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("%w: agent certificate required", ErrInvalidChain)
	}
	if len(caCerts) == 0 {
		return fmt.Errorf("%w: CA certificate required", ErrInvalidChain)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrCertExpired
	}

	roots := x509.NewCertPool()
	for _, ca := range caCerts {
		roots.AddCert(ca)
	}

	opts := x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}

	return nil
}

// CertPool builds a pool from the given CA certificates.
func CertPool(caCerts []*x509.Certificate) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range caCerts {
		pool.AddCert(c)
	}
	return pool
}
