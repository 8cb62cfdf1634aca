package pathcodec

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) Path {
	t.Helper()

	p, err := Parse(raw)
	require.NoError(t, err)

	return p
}

func TestToRemote(t *testing.T) {
	c := NewCodec(Root())

	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"a", "/a"},
		{"a b/c.txt", "/a%20b/c.txt"},
		{"100%/x", "/100%25/x"},
		{"what?/#1", "/what%3F/%231"},
		{"a:b", "/a%3Ab"},
		{"日本/ファイル.md", "/%E6%97%A5%E6%9C%AC/%E3%83%95%E3%82%A1%E3%82%A4%E3%83%AB.md"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ToRemote(mustParse(t, tt.raw)))
		})
	}
}

func TestToRemote_WithRoot(t *testing.T) {
	c := NewCodec(mustParse(t, "/Public/Share"))

	assert.Equal(t, "/Public/Share", c.ToRemote(Root()))
	assert.Equal(t, "/Public/Share/img/cat.png", c.ToRemote(mustParse(t, "img/cat.png")))
}

func TestFromRemote_Inverse(t *testing.T) {
	for _, root := range []string{"", "Public", "a b/c"} {
		c := NewCodec(mustParse(t, root))

		for _, raw := range []string{"", "a", "a b/c d", "100%/#/?", "x:y/z", "café", ".password", "a+b=c&d"} {
			p := mustParse(t, raw)

			back, err := c.FromRemote(c.ToRemote(p))
			require.NoError(t, err, "root=%q path=%q", root, raw)
			assert.True(t, back.Equal(p), "root=%q path=%q got %q", root, raw, back.String())
		}
	}
}

func TestFromRemote_Rejects(t *testing.T) {
	c := NewCodec(mustParse(t, "Public"))

	for _, remote := range []string{
		"/Public/%2E%2E",    // ".." after decoding
		"/Public/a%2Fb",     // separator after decoding
		"/Public/%zz",       // bad escape
		"/Private/a",        // outside root
		"/Public//a",        // empty segment
		"/Public/%2E",       // "." after decoding
	} {
		t.Run(remote, func(t *testing.T) {
			_, err := c.FromRemote(remote)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestRoundTrip_RandomPaths(t *testing.T) {
	// Alphabet deliberately includes characters Graph treats specially.
	alphabet := []rune("abcXYZ019 .-_%#?:&+=~!'()é日")
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test data
	c := NewCodec(mustParse(t, "root dir"))
	seen := make(map[string]string)

	for range 2000 {
		var b strings.Builder

		depth := 1 + rng.IntN(4)
		for d := range depth {
			if d > 0 {
				b.WriteByte('/')
			}

			n := 1 + rng.IntN(6)
			for range n {
				b.WriteRune(alphabet[rng.IntN(len(alphabet))])
			}
		}

		p, err := Parse(b.String())
		if err != nil {
			// Random segments may be "." or "..", which Parse rejects.
			continue
		}

		remote := c.ToRemote(p)

		back, err := c.FromRemote(remote)
		require.NoError(t, err, "path %q remote %q", p.String(), remote)
		require.True(t, back.Equal(p), "path %q remote %q back %q", p.String(), remote, back.String())

		// Injectivity: one remote string per logical path.
		if prev, ok := seen[remote]; ok {
			require.Equal(t, prev, p.String(), "collision on %q", remote)
		}

		seen[remote] = p.String()
	}
}
