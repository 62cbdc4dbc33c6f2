package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/google/uuid"
)

// GenerateKey creates a fresh ECDSA P-256 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// generateSerial returns a random 128-bit certificate serial number.
func generateSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// GenerateCA creates a self-signed network CA.
//
// The common name carries a random UUID so CAs generated on different hosts
// never collide.
func GenerateCA() (*CA, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}

	serial, err := generateSerial()
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   CACommonNamePrefix + uuid.New().String(),
			Organization: []string{Organization},
			Country:      []string{Country},
		},
		NotBefore:             now.Add(-clockSkew),
		NotAfter:              now.Add(CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}

	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}

	return &CA{Certificate: c, PrivateKey: key}, nil
}

// GenerateAgentCert issues a leaf certificate for agentName signed by ca.
//
// The certificate is valid for both server and client authentication and
// carries DefaultSANs plus any extraSANs. Entries that parse as IP
// addresses become IP SANs, everything else a DNS SAN.
func GenerateAgentCert(agentName string, ca *CA, extraSANs ...string) (*AgentCert, error) {
	if ca == nil || ca.Certificate == nil || ca.PrivateKey == nil {
		return nil, fmt.Errorf("%w: CA certificate and key required", ErrInvalidChain)
	}
	if agentName == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate agent key: %w", err)
	}

	serial, err := generateSerial()
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	dnsNames, ips := splitSANs(append(append([]string{}, DefaultSANs...), extraSANs...))

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   agentName,
			Organization: []string{Organization},
		},
		NotBefore:             now.Add(-clockSkew),
		NotAfter:              now.Add(AgentCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create agent certificate: %w", err)
	}

	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse agent certificate: %w", err)
	}

	return &AgentCert{Certificate: c, PrivateKey: key}, nil
}

// splitSANs sorts names into DNS names and IP addresses, dropping duplicates.
func splitSANs(names []string) ([]string, []net.IP) {
	seen := make(map[string]struct{}, len(names))
	var dnsNames []string
	var ips []net.IP
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if ip := net.ParseIP(name); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, name)
		}
	}
	return dnsNames, ips
}
