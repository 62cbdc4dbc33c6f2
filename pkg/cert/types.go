package cert

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"time"
)

// Certificate validity periods.
const (
	// CAValidity is the validity period of the self-signed network CA.
	CAValidity = 10 * 365 * 24 * time.Hour // 10 years

	// AgentCertValidity is the validity period of an agent certificate.
	AgentCertValidity = 365 * 24 * time.Hour // 1 year

	// clockSkew backdates NotBefore so freshly generated certificates are
	// accepted by peers whose clocks run slightly behind.
	clockSkew = 5 * time.Minute
)

// Subject fields shared by every certificate in the network.
const (
	// Organization is the subject organization of the CA and agent certificates.
	Organization = "CSF Agent Network"

	// Country is the subject country of the CA certificate.
	Country = "US"

	// CACommonNamePrefix prefixes the random suffix in the CA common name.
	CACommonNamePrefix = "CSF-Agent-CA-"
)

// Default file names inside the certificate directory.
const (
	CACertFile    = "ca.crt"
	CAKeyFile     = "ca.key"
	AgentCertFile = "agent.crt"
	AgentKeyFile  = "agent.key"
)

// DefaultSANs are the subject alternative names every agent certificate carries.
var DefaultSANs = []string{"localhost", "127.0.0.1", "::1"}

// Paths locates the four PEM files that make up an agent's certificate material.
type Paths struct {
	CACert    string
	CAKey     string
	AgentCert string
	AgentKey  string
}

// PathsInDir returns the default file layout under dir.
func PathsInDir(dir string) Paths {
	return Paths{
		CACert:    filepath.Join(dir, CACertFile),
		CAKey:     filepath.Join(dir, CAKeyFile),
		AgentCert: filepath.Join(dir, AgentCertFile),
		AgentKey:  filepath.Join(dir, AgentKeyFile),
	}
}

// Dir returns the directory holding the agent certificate.
func (p Paths) Dir() string {
	return filepath.Dir(p.AgentCert)
}

// CA is a certificate authority able to sign agent certificates.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
}

// AgentCert is an agent's leaf certificate and its private key.
type AgentCert struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
}

// TLSCertificate returns the certificate in the form crypto/tls expects.
func (a *AgentCert) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{a.Certificate.Raw},
		PrivateKey:  a.PrivateKey,
		Leaf:        a.Certificate,
	}
}

// Material is the certificate material loaded from disk.
// The CA private key is not part of it: running agents only need the CA
// certificates to verify peers.
type Material struct {
	// CACerts are the trusted CA certificates (a bundle may hold several).
	CACerts []*x509.Certificate

	// Agent is the local agent's certificate and key.
	Agent *AgentCert
}

// CertificateInfo summarizes a certificate for display.
type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	IsCA         bool
	DNSNames     []string
	IPAddresses  []string
}

// Info extracts display information from a certificate.
func Info(c *x509.Certificate) CertificateInfo {
	info := CertificateInfo{
		Subject:      c.Subject.String(),
		Issuer:       c.Issuer.String(),
		SerialNumber: c.SerialNumber.Text(16),
		NotBefore:    c.NotBefore,
		NotAfter:     c.NotAfter,
		IsCA:         c.IsCA,
		DNSNames:     c.DNSNames,
	}
	for _, ip := range c.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	return info
}

// ExpiresIn returns the time remaining until the certificate expires.
func (i CertificateInfo) ExpiresIn() time.Duration {
	return time.Until(i.NotAfter)
}
