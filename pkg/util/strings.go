package util

import (
	"strconv"
	"strings"
)

// IntOr parses a base-10 integer from an environment-style value. Surrounding
// whitespace is ignored; empty or malformed input yields def.
func IntOr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
