// Package auth holds the credential primitives shared by the API surfaces:
// webhook HMAC signatures, opaque bearer tokens, and password hashing.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the optional scheme prefix accepted on x-signature
// headers, e.g. "sha256=<hex>".
const SignaturePrefix = "sha256="

// ComputeSignature returns the lowercase hex HMAC-SHA256 of body under the
// shared secret, without the scheme prefix.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a presented x-signature header value against the
// expected HMAC of body. The "sha256=" prefix is optional and the compare is
// constant-time.
func VerifySignature(secret string, body []byte, presented string) bool {
	presented = strings.TrimSpace(presented)
	presented = strings.TrimPrefix(presented, SignaturePrefix)
	if presented == "" {
		return false
	}
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(strings.ToLower(presented)), []byte(expected))
}
