package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoidLength = 21

// NewID returns a 21 character url-safe id. It falls back to a fixed
// alphabet generator only if the system random source fails.
func NewID() string {
	id, err := gonanoid.New()
	if err != nil {
		return gonanoid.MustGenerate("0123456789abcdefghijklmnopqrstuvwxyz", nanoidLength)
	}
	return id
}

// IsNanoid reports whether s has the shape of an id returned by NewID.
func IsNanoid(s string) bool {
	if len(s) != nanoidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
