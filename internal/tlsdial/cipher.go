package tlsdial

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// cipherNameIDs maps the OpenSSL-style names a Trojan config's
// ssl.cipher / ssl.cipher_tls13 fields carry to Go's tls package cipher
// suite IDs. Only suites crypto/tls actually implements are listed;
// anything else is a config error, surfaced at startup.
var cipherNameIDs = map[string]uint16{
	"ECDHE-RSA-AES128-GCM-SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-RSA-AES256-GCM-SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-ECDSA-AES128-GCM-SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"ECDHE-ECDSA-AES256-GCM-SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"ECDHE-RSA-CHACHA20-POLY1305":   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	"ECDHE-ECDSA-CHACHA20-POLY1305": tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	"TLS_AES_128_GCM_SHA256":        tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":        tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256":  tls.TLS_CHACHA20_POLY1305_SHA256,
}

// cipherSuiteIDs parses a colon-separated cipher list (cipher, the
// <=TLS1.2 list) together with cipher_tls13 (a separate colon-separated
// TLS 1.3 suite list) into the single ID slice crypto/tls.Config.
// CipherSuites expects. crypto/tls ignores CipherSuites for TLS 1.3 and
// always uses its own TLS 1.3 suites, so the cipher_tls13 names are
// validated and merged but do not change TLS 1.3 negotiation.
func cipherSuiteIDs(cipher, cipherTLS13 string) ([]uint16, error) {
	var names []string
	if cipher != "" {
		names = append(names, strings.Split(cipher, ":")...)
	}
	if cipherTLS13 != "" {
		names = append(names, strings.Split(cipherTLS13, ":")...)
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := cipherNameIDs[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
