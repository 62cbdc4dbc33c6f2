package commands

import (
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/csf-agent/peerlink/pkg/cert"
	"github.com/csf-agent/peerlink/pkg/config"
)

// RunCertsEnsure creates whatever certificate material is missing, honoring
// certs.auto_generate unless force is set.
func RunCertsEnsure(cfg config.Config, force bool, logger *slog.Logger, w io.Writer) error {
	paths := cfg.CertPaths()
	err := cert.EnsureCertificates(cfg.Agent.Name, paths, cfg.Certs.AutoGenerate || force,
		cert.WithExtraSANs(cfg.Certs.ExtraSANs...),
		cert.WithLogger(logger))
	if err != nil {
		return err
	}

	if _, err := cert.LoadMaterial(paths); err != nil {
		return fmt.Errorf("verify material: %w", err)
	}
	fmt.Fprintf(w, "Certificates ready in %s\n", paths.Dir())
	return nil
}

// RunCertsShow prints the CA and agent certificates and whether the agent
// certificate chains to the CA.
func RunCertsShow(paths cert.Paths, w io.Writer) error {
	caCerts, err := cert.ReadCertsFile(paths.CACert)
	if err != nil {
		return err
	}
	agent, err := cert.ReadCertFile(paths.AgentCert)
	if err != nil {
		return err
	}

	for i, ca := range caCerts {
		printCertificate(w, fmt.Sprintf("CA certificate #%d (%s)", i+1, paths.CACert), ca)
	}
	printCertificate(w, fmt.Sprintf("Agent certificate (%s)", paths.AgentCert), agent)

	if err := cert.VerifyAgentCert(agent, caCerts); err != nil {
		fmt.Fprintf(w, "Chain:   INVALID (%v)\n", err)
		return err
	}
	fmt.Fprintln(w, "Chain:   OK")
	return nil
}

func printCertificate(w io.Writer, title string, c *x509.Certificate) {
	info := cert.Info(c)
	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "  Subject:    %s\n", info.Subject)
	fmt.Fprintf(w, "  Issuer:     %s\n", info.Issuer)
	fmt.Fprintf(w, "  Serial:     %s\n", info.SerialNumber)
	fmt.Fprintf(w, "  Valid:      %s to %s\n", info.NotBefore.Format(time.RFC3339), info.NotAfter.Format(time.RFC3339))
	if expires := info.ExpiresIn(); expires > 0 {
		fmt.Fprintf(w, "  Expires in: %s\n", (expires / time.Hour * time.Hour).String())
	} else {
		fmt.Fprintln(w, "  Expires in: EXPIRED")
	}
	if info.IsCA {
		fmt.Fprintln(w, "  CA:         true")
	}
	if len(info.DNSNames) > 0 {
		fmt.Fprintf(w, "  DNS SANs:   %s\n", strings.Join(info.DNSNames, ", "))
	}
	if len(info.IPAddresses) > 0 {
		fmt.Fprintf(w, "  IP SANs:    %s\n", strings.Join(info.IPAddresses, ", "))
	}
	fmt.Fprintln(w)
}
