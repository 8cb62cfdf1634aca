package driveid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty string produces zero ID", "", ""},
		{"whitespace only produces zero ID", "  ", ""},
		{"15-char personal ID gets zero-padded", "abc123def456789", "0abc123def456789"},
		{"16-char ID unchanged", "abc123def4567890", "abc123def4567890"},
		{"uppercase lowercased", "ABC123DEF4567890", "abc123def4567890"},
		{"business ID lowercased, no padding", "b!SomeLongBase64", "b!somelongbase64"},
		{"idempotent", "0abc123def456789", "0abc123def456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.raw).String())
		})
	}
}

func TestIsZero(t *testing.T) {
	assert.True(t, ID{}.IsZero())
	assert.True(t, New("").IsZero())
	assert.True(t, New("0").IsZero())
	assert.False(t, New("abc").IsZero())
}

func TestAPIPrefix(t *testing.T) {
	assert.Equal(t, "/me/drive", ID{}.APIPrefix())
	assert.Equal(t, "/drives/b!abcdefghijklmnop", New("b!ABCDEFGHIJKLMNOP").APIPrefix())
}

func TestUnmarshalText_Normalizes(t *testing.T) {
	var id ID
	require.NoError(t, id.UnmarshalText([]byte("ABC")))
	assert.Equal(t, "0000000000000abc", id.String())

	out, err := id.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0000000000000abc", string(out))
}
