package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

const fingerprintPrefix = "forecast"

// keyReplacer strips separators and glob metacharacters from key parts.
var keyReplacer = strings.NewReplacer(":", "_", "*", "_", "?", "_", "[", "_", "]", "_", "\\", "_", " ", "_")

// Fingerprint identifies a forecast computation. Two requests with equal
// fingerprints must produce equal results.
type Fingerprint struct {
	Selector     Selector    `json:"selector"`
	Horizon      int         `json:"horizon"`
	Granularity  Granularity `json:"granularity"`
	AsOf         time.Time   `json:"as_of"`
	DataVersion  string      `json:"data_version"`
	Tier         string      `json:"tier"`
	ConfigDigest string      `json:"config_digest"`
}

// Digest is the hex sha256 of the canonical fingerprint encoding.
func (f Fingerprint) Digest() string {
	f.AsOf = f.AsOf.UTC()
	b, _ := json.Marshal(f)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// Key is the cache key: selector prefix followed by the digest, so every
// entry of a selector can be dropped with SelectorPattern.
func (f Fingerprint) Key() string {
	return SelectorPrefix(f.Selector) + f.Digest()
}

// SelectorPrefix is the key prefix shared by all entries of a selector.
func SelectorPrefix(s Selector) string {
	parts := []string{fingerprintPrefix, keyPart(s.Store), keyPart(s.Category)}
	if s.Product != "" {
		parts = append(parts, keyPart(s.Product))
	} else {
		parts = append(parts, "_")
	}
	return strings.Join(parts, ":") + ":"
}

// SelectorPattern matches every cache key of the selector. An empty product
// matches every product of the category.
func SelectorPattern(s Selector) string {
	if s.Product == "" {
		return strings.Join([]string{fingerprintPrefix, keyPart(s.Store), keyPart(s.Category)}, ":") + ":*"
	}
	return SelectorPrefix(s) + "*"
}

func keyPart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return keyReplacer.Replace(s)
}
