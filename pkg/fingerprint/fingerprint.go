package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"
)

// Digest computes the SHA-256 content fingerprint, hex encoded.
// Empty content is rejected: a fingerprint of nothing is never meaningful
// for chain-of-custody purposes.
func Digest(content []byte) (string, error) {
	if len(content) == 0 {
		return "", errs.Input("content is empty")
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func DigestString(s string) (string, error) { return Digest([]byte(s)) }

// DigestCanonical hashes the canonical JSON encoding of v. json.Marshal
// sorts map keys, so logically equal payloads fingerprint identically.
func DigestCanonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errs.Input("payload not encodable: %v", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
