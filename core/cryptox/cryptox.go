// Package cryptox seals sensitive record fields at rest.
//
// An envelope is three colon separated hex segments: the 12 byte IV, the 16 byte GCM tag and the ciphertext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	KeySize = 32
	ivSize  = 12
	tagSize = 16
	sep     = ":"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrAuthFailed        = errors.New("message authentication failed")
	ErrInvalidKey        = errors.Errorf("key must be %d bytes (%d hex characters)", KeySize, KeySize*2)

	RandReader io.Reader = rand.Reader // mockable
)

// Cipher encrypts and decrypts field envelopes with a single static key.
type Cipher struct {
	aead cipher.AEAD
	salt []byte
}

func New(key []byte, hashSalt string) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(hashSalt) > blake2b.Size {
		return nil, errors.Errorf("hash salt must not exceed %d bytes", blake2b.Size)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating block cipher")
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCM")
	}
	return &Cipher{aead: aead, salt: []byte(hashSalt)}, nil
}

// Encrypt seals plaintext into an envelope. Empty input yields empty output.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(RandReader, iv); err != nil {
		return "", errors.Wrap(err, "generating iv")
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return hex.EncodeToString(iv) + sep + hex.EncodeToString(tag) + sep + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope and returns the input unchanged when it cannot:
// legacy plain values and corrupted envelopes must not break read paths.
func (c *Cipher) Decrypt(envelope string) string {
	plaintext, err := c.Open(envelope)
	if err != nil {
		return envelope
	}
	return plaintext
}

// Open is the strict counterpart of Decrypt.
func (c *Cipher) Open(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	parts := strings.Split(envelope, sep)
	if len(parts) != 3 {
		return "", ErrMalformedEnvelope
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformedEnvelope
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedEnvelope
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedEnvelope
	}
	plaintext, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthFailed
	}
	return string(plaintext), nil
}

// IsEnvelope reports whether s has the shape of an envelope. It does not authenticate it.
func IsEnvelope(s string) bool {
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return false
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return false
		}
		if (i == 0 && len(b) != ivSize) || (i == 1 && len(b) != tagSize) {
			return false
		}
	}
	return true
}

// HashIdentifier returns a salted one-way hash used for equality lookups only.
// Input is trimmed and lowered first. Empty input yields empty output.
func (c *Cipher) HashIdentifier(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	h, _ := blake2b.New256(c.salt) // keys longer than 64 bytes are rejected, see New
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
