// Package util provides small helpers shared across the sync core.
package util

import "strings"

// Joaat returns the case-insensitive one-at-a-time hash the engine uses to
// identify events and commands by name.
func Joaat(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		h += uint32(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// MatchName reports whether name matches pattern exactly, or by prefix when
// prefix is set.
func MatchName(name, pattern string, prefix bool) bool {
	if prefix {
		return strings.HasPrefix(name, pattern)
	}
	return name == pattern
}
