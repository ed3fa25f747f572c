// Package proofs is the document proof registry. It records content-addressed
// hashes of milestone evidence; the documents themselves live elsewhere.
package proofs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HashPrefix marks the digest algorithm of every registered hash.
const HashPrefix = "sha256:"

// ErrEmptyDocument is returned when Store receives no content.
var ErrEmptyDocument = errors.New("document is empty")

// Hash returns the registry hash of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// IsWellFormed reports whether h looks like a registry hash.
func IsWellFormed(h string) bool {
	if !strings.HasPrefix(h, HashPrefix) {
		return false
	}
	raw := strings.TrimPrefix(h, HashPrefix)
	if len(raw) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}
