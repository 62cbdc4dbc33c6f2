// Package cert manages the certificate material of a peerlink agent.
//
// Every agent in a network trusts a single CA. The CA certificate and key
// and the agent's own leaf certificate and key live as four PEM files in a
// certificate directory:
//
//	ca.crt     network CA certificate (may be a bundle)
//	ca.key     CA private key, mode 0600
//	agent.crt  agent certificate, signed by the CA
//	agent.key  agent private key, mode 0600
//
// EnsureCertificates bootstraps missing files on first run. LoadMaterial
// reads them back for building TLS configurations.
//
// # Certificate Profile
//
// The CA is self-signed, valid for 10 years, with CN "CSF-Agent-CA-<uuid>".
// Agent certificates are valid for one year, carry the agent name as CN and
// are usable for both server and client authentication. Their SANs cover
// localhost, 127.0.0.1 and ::1 plus any configured extra names.
//
// New keys are ECDSA P-256 encoded as PKCS#8. Loading also accepts PKCS#1
// RSA and SEC 1 EC keys.
package cert
