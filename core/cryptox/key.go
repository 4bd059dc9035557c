package cryptox

import (
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoKey is returned at startup when no persistent key is configured and ephemeral mode is off.
var ErrNoKey = errors.New("no encryption key configured; set a key, a key file or enable ephemeral mode")

// GenerateKey returns a new random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(RandReader, key); err != nil {
		return nil, errors.Wrap(err, "reading random key")
	}
	return key, nil
}

// ParseKey decodes a hex encoded key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// LoadKeyFile reads a hex encoded key from path.
func LoadKeyFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading key file")
	}
	return ParseKey(string(b))
}

// KeyOptions tells ResolveKey where the key comes from.
type KeyOptions struct {
	Key       string // hex
	KeyFile   string
	Ephemeral bool
}

// ResolveKey returns the configured key. With no key and no key file, it generates one only in ephemeral mode;
// the returned flag is then true and data sealed with that key is unreadable after a restart.
func ResolveKey(opts KeyOptions) (key []byte, ephemeral bool, err error) {
	switch {
	case opts.Key != "":
		key, err = ParseKey(opts.Key)
	case opts.KeyFile != "":
		key, err = LoadKeyFile(opts.KeyFile)
	case opts.Ephemeral:
		key, err = GenerateKey()
		ephemeral = err == nil
	default:
		err = ErrNoKey
	}
	return key, ephemeral, err
}
