// Package captoken issues and verifies opaque capability tokens: delete
// tokens handed out with anonymous image uploads, and navigation tokens that
// carry a folder path through forms. Tokens are sealed with
// XChaCha20-Poly1305 under a key derived from the process secret.
package captoken

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
)

// ErrTokenInvalid is returned for any token that cannot be opened: wrong
// key, tampered bytes, truncated input, or a malformed payload.
var ErrTokenInvalid = errors.New("captoken: invalid token")

// ErrWeakSecret is returned by New when the secret is too short to derive
// a key from.
var ErrWeakSecret = errors.New("captoken: secret must be at least 16 bytes")

const (
	minSecretLen = 16
	hkdfInfo     = "onedrive-index capability token v1"

	// idSeparator joins the item ID and the inner cipher in the outer
	// plaintext of a delete token. base64url never produces it and item IDs
	// containing it are refused, so the payload splits into exactly two parts.
	idSeparator = "."
)

var encoding = base64.RawURLEncoding

// Codec seals and opens tokens. It is safe for concurrent use.
type Codec struct {
	aead  cipher.AEAD
	nonce io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithNonceSource replaces crypto/rand as the nonce source. Tests use it to
// get reproducible tokens; production code should never set it.
func WithNonceSource(r io.Reader) Option {
	return func(c *Codec) {
		c.nonce = r
	}
}

// New derives the token key from secret and returns a ready Codec.
func New(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)

	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("captoken: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("captoken: creating cipher: %w", err)
	}

	c := &Codec{aead: aead, nonce: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// EncodeDeleteToken binds an item ID to one version of that item. The tag
// is sealed on its own, then sealed again together with the ID, so the
// token authorizes deleting exactly that item at exactly that version.
func (c *Codec) EncodeDeleteToken(itemID, tag string) (string, error) {
	if itemID == "" || strings.Contains(itemID, idSeparator) {
		return "", fmt.Errorf("captoken: item id %q cannot be encoded", itemID)
	}

	inner, err := c.seal([]byte(tag))
	if err != nil {
		return "", err
	}

	return c.seal([]byte(itemID + idSeparator + inner))
}

// DecodeDeleteToken reverses EncodeDeleteToken. Every failure wraps
// ErrTokenInvalid.
func (c *Codec) DecodeDeleteToken(token string) (itemID, tag string, err error) {
	outer, err := c.open(token)
	if err != nil {
		return "", "", err
	}

	parts := strings.Split(string(outer), idSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed payload", ErrTokenInvalid)
	}

	itemID = parts[0]

	inner, err := c.open(parts[1])
	if err != nil {
		return "", "", err
	}

	return itemID, string(inner), nil
}

// EncodePath seals a logical path into a navigation token.
func (c *Codec) EncodePath(p pathcodec.Path) (string, error) {
	return c.seal([]byte(p.String()))
}

// DecodePath opens a navigation token. The decrypted text is re-parsed, so
// the result is always a normalized path.
func (c *Codec) DecodePath(token string) (pathcodec.Path, error) {
	plain, err := c.open(token)
	if err != nil {
		return pathcodec.Path{}, err
	}

	p, err := pathcodec.Parse(string(plain))
	if err != nil {
		return pathcodec.Path{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	return p, nil
}

func (c *Codec) seal(plain []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := io.ReadFull(c.nonce, nonce); err != nil {
		return "", fmt.Errorf("captoken: reading nonce: %w", err)
	}

	return encoding.EncodeToString(c.aead.Seal(nonce, nonce, plain, nil)), nil
}

func (c *Codec) open(token string) ([]byte, error) {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding", ErrTokenInvalid)
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrTokenInvalid)
	}

	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrTokenInvalid)
	}

	return plain, nil
}
