// Package mtls loads and validates TLS material for the TLS-mutual
// authentication method of the session handshake (spec.md §4.2) and for
// plain server/client TLS on the framed transport.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/meridian-rdp/core/internal/logging"
)

var log = logging.L("mtls")

// LoadClientCert parses a PEM-encoded certificate and private key pair.
func LoadClientCert(certPEM, keyPEM string) (*tls.Certificate, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("mtls: parse key pair: %w", err)
	}
	return &cert, nil
}

// BuildClientTLSConfig returns a client-side TLS config presenting
// certPEM/keyPEM, trusting caPEM (or the system pool when caPEM is empty).
// Returns nil if certPEM or keyPEM is empty (plaintext transport).
func BuildClientTLSConfig(certPEM, keyPEM, caPEM, serverName string) (*tls.Config, error) {
	if certPEM == "" || keyPEM == "" {
		return nil, nil
	}
	cert, err := LoadClientCert(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ServerName:   serverName,
	}
	if caPEM != "" {
		pool, err := poolFromPEM(caPEM)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// AllowlistRule restricts which peer identities a mutual-TLS server
// accepts, per spec.md §4.2's "peer cert presence/CN allowlist".
type AllowlistRule struct {
	CommonNames []string
	DNSNames    []string
}

func (r AllowlistRule) empty() bool {
	return len(r.CommonNames) == 0 && len(r.DNSNames) == 0
}

func (r AllowlistRule) allows(cert *x509.Certificate) bool {
	if r.empty() {
		return true
	}
	for _, cn := range r.CommonNames {
		if cert.Subject.CommonName == cn {
			return true
		}
	}
	for _, want := range r.DNSNames {
		for _, got := range cert.DNSNames {
			if got == want {
				return true
			}
		}
	}
	return false
}

// BuildServerTLSConfig returns a server-side TLS config. When caPEM is
// set it requires and verifies a client certificate against that pool;
// when caPEM is empty no client certificate is requested. Peers whose
// CN/SAN don't match allow are rejected (an empty AllowlistRule accepts
// any certificate signed by the CA pool).
func BuildServerTLSConfig(certPEM, keyPEM, caPEM string, allow AllowlistRule) (*tls.Config, error) {
	if certPEM == "" || keyPEM == "" {
		return nil, nil
	}
	cert, err := LoadClientCert(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
	}

	if caPEM != "" {
		pool, err := poolFromPEM(caPEM)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	if !allow.empty() {
		cfg.VerifyPeerCertificate = func(_ [][]byte, chains [][]*x509.Certificate) error {
			for _, chain := range chains {
				if len(chain) == 0 {
					continue
				}
				if allow.allows(chain[0]) {
					return nil
				}
			}
			return fmt.Errorf("mtls: peer certificate not in allowlist")
		}
	}

	return cfg, nil
}

func poolFromPEM(caPEM string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(caPEM)) {
		return nil, fmt.Errorf("mtls: no valid certificates in CA PEM")
	}
	return pool, nil
}

// parseExpiryTime parses an expiry timestamp in RFC 3339 or a bare
// ISO-8601-without-offset format.
func parseExpiryTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
	}
	return t, err
}

// IsExpired reports whether the cert has passed its expiry time. Returns
// false for an empty string (no cert configured). Fails closed: an
// unparseable date is treated as expired.
func IsExpired(expiresStr string) bool {
	if expiresStr == "" {
		return false
	}
	t, err := parseExpiryTime(expiresStr)
	if err != nil {
		log.Warn("unable to parse TLS cert expiry, treating as expired", "expires", expiresStr, "error", err)
		return true
	}
	return time.Now().After(t)
}

// NeedsRenewal reports whether the cert has passed 2/3 of its lifetime.
// Returns false if either timestamp is empty or unparseable.
func NeedsRenewal(issuedStr, expiresStr string) bool {
	if issuedStr == "" || expiresStr == "" {
		return false
	}
	issued, err := parseExpiryTime(issuedStr)
	if err != nil {
		return false
	}
	expires, err := parseExpiryTime(expiresStr)
	if err != nil {
		return false
	}
	lifetime := expires.Sub(issued)
	threshold := issued.Add(lifetime * 2 / 3)
	return time.Now().After(threshold)
}
