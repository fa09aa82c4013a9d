package history

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Transcripts are stored encrypted at rest. The key is derived from a
// random machine secret kept next to the database with owner-only
// permissions; losing the secret file makes the history unreadable, which
// is the intended failure mode.

const secretSize = 32

var hkdfInfo = []byte("voxd transcript history v1")

// loadOrCreateSecret reads the machine secret, generating one on first use.
func loadOrCreateSecret(path string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if err == nil {
		if len(secret) != secretSize {
			return nil, fmt.Errorf("machine secret %s: bad length %d", path, len(secret))
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read machine secret: %w", err)
	}

	secret = make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate machine secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create secret directory: %w", err)
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, fmt.Errorf("write machine secret: %w", err)
	}
	return secret, nil
}

// cipherFromSecret derives the store key via HKDF-SHA256 and builds the
// AEAD.
func cipherFromSecret(secret []byte) (*boxCipher, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, secret, nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &boxCipher{aead: aead}, nil
}

type boxCipher struct {
	aead cipher.AEAD
}

// seal encrypts plaintext with a fresh random nonce prepended to the box.
func (c *boxCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a box produced by seal.
func (c *boxCipher) open(box []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(box) < ns {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	plaintext, err := c.aead.Open(nil, box[:ns], box[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt transcript: %w", err)
	}
	return plaintext, nil
}
