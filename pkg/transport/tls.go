package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/csf-agent/peerlink/pkg/cert"
)

// TLS constants for the peerlink protocol.
const (
	// ALPNProtocol is offered by both sides. Peers that do not offer ALPN
	// are still accepted.
	ALPNProtocol = "peerlink/1"

	// DefaultPort is the default listen port.
	DefaultPort = 9443
)

// Trust configuration errors.
var (
	ErrNoCACerts    = errors.New("no CA certificates configured")
	ErrNoAgentCert  = errors.New("agent certificate is required")
	ErrNoClientCert = errors.New("client certificate required but not provided")
)

// TrustConfig holds the two immutable TLS configurations an agent uses:
// Accept for inbound sessions and Dial for outbound ones.
//
// Both are built once and shared by pointer with every session. Neither
// may be modified after construction.
type TrustConfig struct {
	// Accept requires and verifies a client certificate signed by the CA.
	Accept *tls.Config

	// Dial verifies the server certificate against the CA and presents
	// the agent certificate.
	Dial *tls.Config
}

// NewTrustConfig builds the accept and dial configurations from the agent's
// certificate and the trusted CA certificates.
func NewTrustConfig(agent tls.Certificate, caCerts []*x509.Certificate) (*TrustConfig, error) {
	if len(caCerts) == 0 {
		return nil, ErrNoCACerts
	}
	if len(agent.Certificate) == 0 || agent.PrivateKey == nil {
		return nil, ErrNoAgentCert
	}

	pool := cert.CertPool(caCerts)

	accept := &tls.Config{
		MinVersion: tls.VersionTLS12,

		// Mutual TLS: every inbound peer presents a CA-signed certificate.
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  pool,

		Certificates: []tls.Certificate{agent},
		NextProtos:   []string{ALPNProtocol},

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}

	dial := &tls.Config{
		MinVersion: tls.VersionTLS12,

		RootCAs:      pool,
		Certificates: []tls.Certificate{agent},
		NextProtos:   []string{ALPNProtocol},

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}

	return &TrustConfig{Accept: accept, Dial: dial}, nil
}

// NewTrustConfigFromMaterial builds a TrustConfig from loaded certificate material.
func NewTrustConfigFromMaterial(m *cert.Material) (*TrustConfig, error) {
	if m == nil || m.Agent == nil {
		return nil, ErrNoAgentCert
	}
	return NewTrustConfig(m.Agent.TLSCertificate(), m.CACerts)
}

// LoadTrustConfig reads the certificate material at paths and builds a
// TrustConfig from it.
func LoadTrustConfig(paths cert.Paths) (*TrustConfig, error) {
	m, err := cert.LoadMaterial(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificates: %w", err)
	}
	return NewTrustConfigFromMaterial(m)
}

// VerifyPeerCertificate checks that a completed TLS connection carries a
// peer certificate. The chain itself is verified by crypto/tls.
func VerifyPeerCertificate(state tls.ConnectionState) error {
	if len(state.PeerCertificates) == 0 {
		return ErrNoClientCert
	}
	return nil
}
