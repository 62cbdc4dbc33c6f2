package cert

import (
	"crypto"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Store errors.
var (
	ErrCertificatesNotFound = errors.New("certificates not found and auto-generation is disabled")
)

// EnsureOption configures EnsureCertificates.
type EnsureOption func(*ensureOptions)

type ensureOptions struct {
	extraSANs []string
	logger    *slog.Logger
}

// WithExtraSANs adds host names or IP addresses to a newly issued agent
// certificate. Existing certificates are never reissued to add them.
func WithExtraSANs(sans ...string) EnsureOption {
	return func(o *ensureOptions) {
		o.extraSANs = append(o.extraSANs, sans...)
	}
}

// WithLogger sets the logger used to report generated files.
func WithLogger(logger *slog.Logger) EnsureOption {
	return func(o *ensureOptions) {
		o.logger = logger
	}
}

// EnsureCertificates makes sure the CA pair and the agent pair described by
// paths exist on disk.
//
// A pair counts as present only when both its certificate and key files
// exist. When both pairs are present the call does nothing. Otherwise, with
// autoGenerate disabled, it fails with ErrCertificatesNotFound. With
// autoGenerate enabled the missing CA is created first, then a missing agent
// certificate is issued by that CA. A regenerated CA always reissues the
// agent certificate, since the old one would no longer chain.
func EnsureCertificates(agentName string, paths Paths, autoGenerate bool, opts ...EnsureOption) error {
	o := ensureOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	caExists := pairExists(paths.CACert, paths.CAKey)
	agentExists := pairExists(paths.AgentCert, paths.AgentKey)

	if caExists && agentExists {
		o.logger.Debug("certificates already exist, skipping generation", "dir", paths.Dir())
		return nil
	}

	if !autoGenerate {
		return fmt.Errorf("%w: provide certificates at %s", ErrCertificatesNotFound, paths.Dir())
	}

	var ca *CA
	if caExists {
		var err error
		ca, err = LoadCA(paths)
		if err != nil {
			return err
		}
	} else {
		var err error
		ca, err = GenerateCA()
		if err != nil {
			return err
		}
		if err := saveCA(paths, ca); err != nil {
			return err
		}
		o.logger.Info("generated CA certificate", "path", paths.CACert, "subject", ca.Certificate.Subject.CommonName)
		agentExists = false
	}

	if !agentExists {
		agent, err := GenerateAgentCert(agentName, ca, o.extraSANs...)
		if err != nil {
			return err
		}
		if err := saveAgent(paths, agent); err != nil {
			return err
		}
		o.logger.Info("generated agent certificate", "path", paths.AgentCert, "agent", agentName)
	}

	return nil
}

// LoadCA reads the CA certificate and its private key.
func LoadCA(paths Paths) (*CA, error) {
	c, err := ReadCertFile(paths.CACert)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}
	key, err := ReadKeyFile(paths.CAKey)
	if err != nil {
		return nil, fmt.Errorf("load CA key: %w", err)
	}
	if err := matchKey(c.PublicKey, key); err != nil {
		return nil, fmt.Errorf("%s: %w", paths.CAKey, err)
	}
	return &CA{Certificate: c, PrivateKey: key}, nil
}

// LoadMaterial reads the CA certificates and the agent pair and checks that
// the agent certificate chains to the CA.
func LoadMaterial(paths Paths) (*Material, error) {
	caCerts, err := ReadCertsFile(paths.CACert)
	if err != nil {
		return nil, fmt.Errorf("load CA certificates: %w", err)
	}

	agentCert, err := ReadCertFile(paths.AgentCert)
	if err != nil {
		return nil, fmt.Errorf("load agent certificate: %w", err)
	}

	agentKey, err := ReadKeyFile(paths.AgentKey)
	if err != nil {
		return nil, fmt.Errorf("load agent key: %w", err)
	}

	if err := matchKey(agentCert.PublicKey, agentKey); err != nil {
		return nil, fmt.Errorf("%s: %w", paths.AgentKey, err)
	}

	if err := VerifyAgentCert(agentCert, caCerts); err != nil {
		return nil, err
	}

	return &Material{
		CACerts: caCerts,
		Agent:   &AgentCert{Certificate: agentCert, PrivateKey: agentKey},
	}, nil
}

func saveCA(paths Paths, ca *CA) error {
	if err := ensureParent(paths.CACert, paths.CAKey); err != nil {
		return err
	}
	if err := WriteCertFile(paths.CACert, ca.Certificate); err != nil {
		return fmt.Errorf("write CA certificate: %w", err)
	}
	if err := WriteKeyFile(paths.CAKey, ca.PrivateKey); err != nil {
		return fmt.Errorf("write CA key: %w", err)
	}
	return nil
}

func saveAgent(paths Paths, agent *AgentCert) error {
	if err := ensureParent(paths.AgentCert, paths.AgentKey); err != nil {
		return err
	}
	if err := WriteCertFile(paths.AgentCert, agent.Certificate); err != nil {
		return fmt.Errorf("write agent certificate: %w", err)
	}
	if err := WriteKeyFile(paths.AgentKey, agent.PrivateKey); err != nil {
		return fmt.Errorf("write agent key: %w", err)
	}
	return nil
}

func ensureParent(files ...string) error {
	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f), 0755); err != nil {
			return fmt.Errorf("create certificate directory: %w", err)
		}
	}
	return nil
}

func pairExists(certPath, keyPath string) bool {
	return fileExists(certPath) && fileExists(keyPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func matchKey(pub crypto.PublicKey, key crypto.Signer) error {
	k, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !k.Equal(pub) {
		return ErrKeyMismatch
	}
	return nil
}
