package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// Identify computes the stable content hash of a document from its raw file
// bytes. Hashing raw bytes (not extracted text) keeps two different files that
// extract to the same text distinguishable, while byte-identical re-uploads
// always map to the same identity.
func Identify(raw []byte) string {
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}
