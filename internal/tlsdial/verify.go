package tlsdial

import (
	"crypto/x509"
	"fmt"
)

// partialChainVerifier returns a crypto/tls VerifyPeerCertificate
// callback that accepts a chain terminating at any certificate in the
// trust pool (ssl.cert, or the system roots), whether or not that
// certificate is a self-signed root — the Go equivalent of OpenSSL's
// X509_V_FLAG_PARTIAL_CHAIN, which
// original_source/src/tls/openssl/connector.rs sets unconditionally.
// crypto/x509 treats every certificate in Roots as a trust anchor, so a
// leaf or intermediate pinned via ssl.cert is enough, with no path to a
// public CA. Certificates the peer sends are used only as intermediates.
func (d *Dialer) partialChainVerifier(serverName string) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("tlsdial: no certificate presented")
		}

		certs := make([]*x509.Certificate, len(rawCerts))
		for i, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return fmt.Errorf("tlsdial: parse certificate %d: %w", i, err)
			}
			certs[i] = cert
		}

		roots := d.rootCAs
		if roots == nil {
			sysRoots, err := x509.SystemCertPool()
			if err != nil || sysRoots == nil {
				sysRoots = x509.NewCertPool()
			}
			roots = sysRoots
		}
		roots = roots.Clone()

		intermediates := x509.NewCertPool()
		for _, c := range certs[1:] {
			intermediates.AddCert(c)
		}

		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		}
		if _, err := certs[0].Verify(opts); err != nil {
			return fmt.Errorf("tlsdial: certificate verification failed: %w", err)
		}

		if d.verifyHostname && serverName != "" {
			if err := certs[0].VerifyHostname(serverName); err != nil {
				return fmt.Errorf("tlsdial: hostname verification failed: %w", err)
			}
		}
		return nil
	}
}
