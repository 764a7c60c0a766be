package cryptox

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSecret is returned when neither an inline secret nor a secret file is
// configured. Unlike a pepper, a signing secret is never generated on the fly:
// every restart would silently invalidate all issued tokens.
var ErrNoSecret = errors.New("cryptox: no secret configured")

// MinSecretLength is the shortest secret LoadSecret accepts.
const MinSecretLength = 16

// LoadSecret resolves a secret from an inline value or, when that is empty,
// from a file. Surrounding whitespace in the file is ignored so secrets
// written with a trailing newline still work.
func LoadSecret(value, file string) ([]byte, error) {
	if value != "" {
		return checkSecret([]byte(value))
	}
	if file == "" {
		return nil, ErrNoSecret
	}

	raw, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return nil, fmt.Errorf("cryptox: read secret file: %w", err)
	}
	return checkSecret(bytes.TrimSpace(raw))
}

func checkSecret(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrNoSecret
	}
	if len(b) < MinSecretLength {
		return nil, fmt.Errorf("cryptox: secret must be at least %d bytes, got %d", MinSecretLength, len(b))
	}
	return b, nil
}
