package captoken

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()

	c, err := New(testSecret, opts...)
	require.NoError(t, err)

	return c
}

// counterReader yields an endless, deterministic byte stream.
type counterReader struct{ next byte }

func (r *counterReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}

	return len(p), nil
}

func TestNew_RejectsShortSecret(t *testing.T) {
	_, err := New([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestDeleteToken_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		id  string
		tag string
	}{
		{"01BYE5RZ6QN3ZWBTUFOFD3GSPGOHDJD36K", `"{3A2B1C}-2"`},
		{"abc!123", "aQ==.with.dots"},
		{"x", ""},
	}

	for _, tt := range tests {
		tok, err := c.EncodeDeleteToken(tt.id, tt.tag)
		require.NoError(t, err)
		assert.NotContains(t, tok, "/")
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "=")

		id, tag, err := c.DecodeDeleteToken(tok)
		require.NoError(t, err)
		assert.Equal(t, tt.id, id)
		assert.Equal(t, tt.tag, tag)
	}
}

func TestEncodeDeleteToken_RejectsSeparatorInID(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.EncodeDeleteToken("a.b", "tag")
	require.Error(t, err)

	_, err = c.EncodeDeleteToken("", "tag")
	require.Error(t, err)
}

func TestDeleteToken_NonDeterministic(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.EncodeDeleteToken("item", "tag")
	require.NoError(t, err)

	b, err := c.EncodeDeleteToken("item", "tag")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeleteToken_DeterministicNonce(t *testing.T) {
	a := newTestCodec(t, WithNonceSource(&counterReader{}))
	b := newTestCodec(t, WithNonceSource(&counterReader{}))

	ta, err := a.EncodeDeleteToken("item", "tag")
	require.NoError(t, err)

	tb, err := b.EncodeDeleteToken("item", "tag")
	require.NoError(t, err)

	assert.Equal(t, ta, tb)
}

func TestDeleteToken_WrongKey(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.EncodeDeleteToken("item", "tag")
	require.NoError(t, err)

	other, err := New(bytes.Repeat([]byte("z"), 32))
	require.NoError(t, err)

	_, _, err = other.DecodeDeleteToken(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDeleteToken_Malformed(t *testing.T) {
	c := newTestCodec(t)

	for _, tok := range []string{"", "!!!", "AAAA", "not-a-token-at-all"} {
		_, _, err := c.DecodeDeleteToken(tok)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", tok)
	}

	// A valid seal whose payload lacks the separator.
	sealed, err := c.seal([]byte("noseparator"))
	require.NoError(t, err)

	_, _, err = c.DecodeDeleteToken(sealed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Separator present but inner half is not a token.
	sealed, err = c.seal([]byte("item.garbage"))
	require.NoError(t, err)

	_, _, err = c.DecodeDeleteToken(sealed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestDeleteToken_BitFlipsRejected(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.EncodeDeleteToken("01BYE5RZ6QN3ZWBTUFOFD3GSPGOHDJD36K", `"{3A2B1C}-2"`)
	require.NoError(t, err)

	raw, err := encoding.DecodeString(tok)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11)) //nolint:gosec // deterministic test data

	const trials = 1000

	rejected := 0

	for range trials {
		mutated := bytes.Clone(raw)
		bit := rng.IntN(len(mutated) * 8)
		mutated[bit/8] ^= 1 << (bit % 8)

		if _, _, err := c.DecodeDeleteToken(encoding.EncodeToString(mutated)); err != nil {
			require.ErrorIs(t, err, ErrTokenInvalid)

			rejected++
		}
	}

	assert.GreaterOrEqual(t, rejected, trials*99/100)
}

func TestPathToken_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	for _, raw := range []string{"", "docs", "a b/c%d/日本"} {
		p, err := pathcodec.Parse(raw)
		require.NoError(t, err)

		tok, err := c.EncodePath(p)
		require.NoError(t, err)

		got, err := c.DecodePath(tok)
		require.NoError(t, err)
		assert.True(t, got.Equal(p), "path %q", raw)
	}
}

func TestDecodePath_RejectsBadPayload(t *testing.T) {
	c := newTestCodec(t)

	sealed, err := c.seal([]byte("a/../b"))
	require.NoError(t, err)

	_, err = c.DecodePath(sealed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = c.DecodePath("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
