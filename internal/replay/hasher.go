package replay

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Hasher turns a provider identifier or a raw body into a fixed-size event id.
type Hasher struct {
	algorithm string
}

// NewHasher accepts "sha256" (default), "sha1" or "md5".
func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// EventID is scoped by route so two providers reusing an identifier never collide.
// The provider identifier wins over the body when present.
func (h *Hasher) EventID(route, providerID string, body []byte) string {
	d := h.newHash()
	d.Write([]byte(route))
	d.Write([]byte{0})
	if providerID != "" {
		d.Write([]byte("id:"))
		d.Write([]byte(providerID))
	} else {
		d.Write([]byte("body:"))
		d.Write(body)
	}
	return hex.EncodeToString(d.Sum(nil))
}

func (h *Hasher) newHash() hash.Hash {
	switch h.algorithm {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	default:
		return sha256.New()
	}
}
