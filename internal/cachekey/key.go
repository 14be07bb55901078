// Package cachekey derives content-addressed cache keys for translation
// results.
//
// A key is the SHA-256 digest of (source language, sorted target set,
// canonical content). Collisions are accepted as impossible in practice: the
// 256-bit digest space dwarfs any realistic request volume, and a collision
// would only ever serve a wrong cached translation, never corrupt the store.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

// version is mixed into every digest; bump it when the canonical content
// encoding changes so stale entries stop matching.
const version = "v1"

// Size is the length of a key in hex characters.
const Size = sha256.Size * 2

// Key returns the cache key for translating content from source into targets.
func Key(content metadata.Content, source string, targets langset.Set) (string, error) {
	encoded, err := content.Canonical()
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return digest(encoded, source, targets), nil
}

// Keyer computes keys for one content snapshot against many target sets,
// encoding the content once.
type Keyer struct {
	encoded []byte
	source  string
}

func NewKeyer(content metadata.Content, source string) (*Keyer, error) {
	encoded, err := content.Canonical()
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return &Keyer{encoded: encoded, source: source}, nil
}

func (k *Keyer) Key(targets langset.Set) string {
	return digest(k.encoded, k.source, targets)
}

func digest(encoded []byte, source string, targets langset.Set) string {
	h := sha256.New()
	// NUL separators keep ("ab","c") and ("a","bc") apart
	for _, part := range [][]byte{[]byte(version), []byte(source), []byte(targets.String()), encoded} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
