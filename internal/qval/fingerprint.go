package qval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for query identity fingerprints. The version suffix leaves
// room for an algorithm migration without colliding with old rows.
const domainQuery = "queryden/query/v1"

// Fingerprint computes the content-addressed identity of a query: the
// SHA-256 of the entity type, flavor and canonical parameter bytes under a
// domain prefix. The store's uniqueness constraint indexes this instead of
// the full canonical text.
//
// Format: SHA256(domain + 0x00 + model + 0x00 + flavor + 0x00 + params).
// The null separators prevent boundary ambiguity between fields.
func Fingerprint(model, flavor string, params Object) (string, error) {
	canonical, err := MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(domainQuery))
	h.Write([]byte{0x00})
	h.Write([]byte(model))
	h.Write([]byte{0x00})
	h.Write([]byte(flavor))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustFingerprint is like Fingerprint but panics on error. Use only in
// tests or when inputs are known to be valid.
func MustFingerprint(model, flavor string, params Object) string {
	fp, err := Fingerprint(model, flavor, params)
	if err != nil {
		panic(err)
	}
	return fp
}
