package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is the scheme marker GitHub puts in X-Hub-Signature-256.
const Prefix = "sha256="

// SumSHA256 returns the hex HMAC-SHA256 of data keyed by secret, with the
// "sha256=" prefix.
func SumSHA256(secret, data []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify compares a provided signature header against the expected one in
// constant time.
func Verify(secret, data []byte, provided string) bool {
	provided = strings.TrimSpace(provided)
	if !strings.HasPrefix(provided, Prefix) {
		return false
	}
	return hmac.Equal([]byte(provided), []byte(SumSHA256(secret, data)))
}
