// Package crypto computes the Trojan password hash: SHA-224 of the
// shared secret, rendered as 56 lower-case hex octets and cached after
// the first call, the Go shape of original_source/src/trojan/client.rs's
// trojan_request (a static mut hash guarded by a std::sync::Once).
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

var (
	hashOnce sync.Once
	hashHex  string
)

// PasswordHash returns the 56-character lower-case hex SHA-224 digest of
// password. The digest is computed once per process regardless of how
// many times PasswordHash is called or with what argument — every
// Trojan connection in a process authenticates with the same
// configured password, so the first call's argument wins and the
// result is reused; this matches the one-shot process-wide
// initialisation spec.md §3/§5 requires for the hashed password.
func PasswordHash(password string) string {
	hashOnce.Do(func() {
		sum := sha256.Sum224([]byte(password))
		hashHex = hex.EncodeToString(sum[:])
	})
	return hashHex
}
