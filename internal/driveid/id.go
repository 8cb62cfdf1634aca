// Package driveid provides the normalized drive identifier used to address
// Graph API drive resources. The zero ID means "the signed-in user's default
// drive" and is addressed through /me/drive instead of /drives/{id}.
package driveid

import (
	"encoding"
	"fmt"
	"strings"
)

// idMinLength is the minimum length for a normalized drive ID. Personal
// accounts sometimes return 15-character IDs; short IDs are zero-padded so
// the same drive always yields the same cache keys.
const idMinLength = 16

// ID is a normalized OneDrive drive identifier (lowercase, zero-padded).
// The zero value selects the default drive.
type ID struct {
	value string
}

// New creates a normalized ID from a raw API drive identifier. Empty input
// returns the zero ID.
func New(raw string) ID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ID{}
	}

	lower := strings.ToLower(raw)
	if len(lower) >= idMinLength {
		return ID{value: lower}
	}

	return ID{value: strings.Repeat("0", idMinLength-len(lower)) + lower}
}

// String returns the normalized drive ID string.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value ID (empty or all zeros).
func (id ID) IsZero() bool {
	return id.value == "" || id.value == strings.Repeat("0", idMinLength)
}

// APIPrefix returns the Graph API path prefix for this drive: "/me/drive"
// for the zero ID, "/drives/{id}" otherwise.
func (id ID) APIPrefix() string {
	if id.IsZero() {
		return "/me/drive"
	}

	return "/drives/" + id.value
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so IDs can be decoded
// straight from TOML. The input is normalized like New().
func (id *ID) UnmarshalText(text []byte) error {
	*id = New(string(text))
	return nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = ID{}
	_ encoding.TextUnmarshaler = (*ID)(nil)
	_ fmt.Stringer             = ID{}
)
