package pathcodec

import (
	"fmt"
	"net/url"
	"strings"
)

// Codec maps logical paths onto remote paths below a configured drive
// folder. A zero Codec exposes the whole drive.
type Codec struct {
	root Path
}

// NewCodec returns a Codec whose logical root is the given drive folder.
func NewCodec(root Path) Codec {
	return Codec{root: root}
}

// Root returns the drive folder the logical root maps to.
func (c Codec) Root() Path {
	return c.root
}

// ToRemote returns the escaped, root-prefixed remote path for p, e.g.
// "/Public/a%20b/c.txt". The drive root is "". Every segment is escaped
// on its own, so the mapping is injective on normalized paths.
func (c Codec) ToRemote(p Path) string {
	full := c.root.Append(p)
	if full.IsRoot() {
		return ""
	}

	var b strings.Builder

	for _, seg := range full.segs {
		b.WriteString(separator)
		b.WriteString(escapeSegment(seg))
	}

	return b.String()
}

// FromRemote is the inverse of ToRemote. It fails with ErrInvalidPath when
// a decoded segment is "." or "..", contains a separator, or when the
// remote path does not lie under the codec's root.
func (c Codec) FromRemote(remote string) (Path, error) {
	trimmed := strings.TrimPrefix(remote, separator)

	var segs []string

	if trimmed != "" {
		for _, raw := range strings.Split(trimmed, separator) {
			decoded, err := url.PathUnescape(raw)
			if err != nil {
				return Path{}, fmt.Errorf("%w: bad escape in %q", ErrInvalidPath, raw)
			}

			seg, err := cleanSegment(decoded)
			if err != nil {
				return Path{}, err
			}

			segs = append(segs, seg)
		}
	}

	full := Path{segs: segs}
	if !full.HasPrefix(c.root) {
		return Path{}, fmt.Errorf("%w: %q is outside root %q", ErrInvalidPath, remote, c.root.String())
	}

	return fromSegments(full.segs[len(c.root.segs):]), nil
}

// escapeSegment percent-encodes one name. url.PathEscape leaves ':' alone,
// but Graph uses ':' to delimit path addressing, so it is escaped too.
func escapeSegment(seg string) string {
	return strings.ReplaceAll(url.PathEscape(seg), ":", "%3A")
}
