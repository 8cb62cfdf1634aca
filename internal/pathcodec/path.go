// Package pathcodec converts between logical index paths and the escaped
// path form the Graph API accepts in root-relative addressing
// ("/drives/{id}/root:/a/b:"). Everything here is pure: no I/O, no state.
package pathcodec

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPath is returned for malformed logical or remote paths.
// Use errors.Is(err, pathcodec.ErrInvalidPath) to check.
var ErrInvalidPath = errors.New("pathcodec: invalid path")

const separator = "/"

// Path is a normalized, root-relative logical path. The zero value is the
// root. Segments are never empty, ".", "..", and never contain a separator.
type Path struct {
	segs []string
}

// Root returns the empty path.
func Root() Path {
	return Path{}
}

// Parse normalizes raw into a Path. Leading, trailing and duplicate
// separators are dropped and every segment is NFC-normalized, so "/a//b/"
// and "a/b" parse to the same Path.
func Parse(raw string) (Path, error) {
	if !utf8.ValidString(raw) {
		return Path{}, fmt.Errorf("%w: not valid UTF-8", ErrInvalidPath)
	}

	parts := strings.Split(raw, separator)
	segs := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		seg, err := cleanSegment(part)
		if err != nil {
			return Path{}, err
		}

		segs = append(segs, seg)
	}

	return fromSegments(segs), nil
}

// fromSegments keeps the root canonical as the zero Path.
func fromSegments(segs []string) Path {
	if len(segs) == 0 {
		return Path{}
	}

	return Path{segs: segs}
}

// cleanSegment validates a single name and returns its NFC form.
func cleanSegment(seg string) (string, error) {
	if seg == "" {
		return "", fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}

	if strings.Contains(seg, separator) {
		return "", fmt.Errorf("%w: segment %q contains a separator", ErrInvalidPath, seg)
	}

	if seg == "." || seg == ".." {
		return "", fmt.Errorf("%w: relative segment %q", ErrInvalidPath, seg)
	}

	for _, r := range seg {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character in %q", ErrInvalidPath, seg)
		}
	}

	return norm.NFC.String(seg), nil
}

// String returns the normalized form without leading or trailing
// separators. The root renders as "".
func (p Path) String() string {
	return strings.Join(p.segs, separator)
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segs))
	copy(out, p.segs)

	return out
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p.segs)
}

// IsRoot reports whether p has no segments.
func (p Path) IsRoot() bool {
	return len(p.segs) == 0
}

// Join returns p extended by a single name. The name is validated like a
// parsed segment, so "a/b" or ".." are rejected rather than split.
func (p Path) Join(name string) (Path, error) {
	seg, err := cleanSegment(name)
	if err != nil {
		return Path{}, err
	}

	segs := make([]string, 0, len(p.segs)+1)
	segs = append(segs, p.segs...)
	segs = append(segs, seg)

	return Path{segs: segs}, nil
}

// Append returns p followed by every segment of q.
func (p Path) Append(q Path) Path {
	if q.IsRoot() {
		return p
	}

	segs := make([]string, 0, len(p.segs)+len(q.segs))
	segs = append(segs, p.segs...)
	segs = append(segs, q.segs...)

	return Path{segs: segs}
}

// Parent returns p without its last segment. The parent of root is root.
func (p Path) Parent() Path {
	if len(p.segs) <= 1 {
		return Path{}
	}

	return Path{segs: p.segs[:len(p.segs)-1]}
}

// Base returns the last segment, or "" for root.
func (p Path) Base() string {
	if len(p.segs) == 0 {
		return ""
	}

	return p.segs[len(p.segs)-1]
}

// Equal reports whether p and q have identical segments.
func (p Path) Equal(q Path) bool {
	if len(p.segs) != len(q.segs) {
		return false
	}

	for i := range p.segs {
		if p.segs[i] != q.segs[i] {
			return false
		}
	}

	return true
}

// HasPrefix reports whether every segment of prefix leads p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segs) > len(p.segs) {
		return false
	}

	for i := range prefix.segs {
		if p.segs[i] != prefix.segs[i] {
			return false
		}
	}

	return true
}

// Escaped returns p as a percent-escaped URL path with a leading separator,
// suitable for appending to a base URL. The root renders as "/".
func (p Path) Escaped() string {
	if p.IsRoot() {
		return separator
	}

	var b strings.Builder

	for _, seg := range p.segs {
		b.WriteString(separator)
		b.WriteString(escapeSegment(seg))
	}

	return b.String()
}
