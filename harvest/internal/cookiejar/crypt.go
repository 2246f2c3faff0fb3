package cookiejar

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// box encrypts cookie values at rest. The key is derived from the configured
// secret; an empty secret disables encryption and values are stored as-is.
type box struct {
	key []byte
}

func newBox(secret string) *box {
	if secret == "" {
		return &box{}
	}
	sum := sha256.Sum256([]byte(secret))
	return &box{key: sum[:]}
}

func (b *box) enabled() bool { return len(b.key) > 0 }

func (b *box) seal(plaintext string) (string, error) {
	if !b.enabled() {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("cookie seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cookie seal: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (b *box) open(stored string) (string, error) {
	if !b.enabled() {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("cookie open: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("cookie open: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("cookie open: ciphertext too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cookie open: %w", err)
	}
	return string(plain), nil
}
