package hasher

import "crypto/sha256"

type Hasher interface {
	Hash(data []byte) []byte
}

type SHA256Hasher struct{}

func (h *SHA256Hasher) Hash(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// Combine hashes the concatenation of parts, e.g. a node's own bytes
// followed by its children's hashes.
func Combine(h Hasher, parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return h.Hash(buf)
}
