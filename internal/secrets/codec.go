// Package secrets seals and opens integration credential blobs.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
)

// Codec encrypts credential maps with AES-256-GCM. The key is derived from
// the configured secret; blobs are base64(nonce || ciphertext).
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives a codec from the configured secret string.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("credential secret not configured")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Seal encrypts a credential map into an opaque blob.
func (c *Codec) Seal(creds map[string]string) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a blob produced by Seal.
func (c *Codec) Open(blob string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return nil, errors.New("credential blob too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, err
	}
	var creds map[string]string
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// First returns the first non-empty value among the named keys. Credential
// blobs accumulated more than one spelling per logical field over time;
// adapters resolve them explicitly instead of guessing.
func First(creds map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := creds[k]; v != "" {
			return v
		}
	}
	return ""
}
