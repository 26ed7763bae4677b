// Package encryption seals batch payloads at rest with age X25519 keys.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"filippo.io/age"
)

// AgeEncryption encrypts to its own recipient and decrypts with the matching identity
type AgeEncryption struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeEncryption parses an AGE-SECRET-KEY-1... identity
func NewAgeEncryption(identity string) (*AgeEncryption, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return &AgeEncryption{
		identity:  id,
		recipient: id.Recipient(),
	}, nil
}

// LoadOrCreateIdentityFile reads the identity stored at path, generating and
// persisting a new one (mode 0600) when the file does not exist
func LoadOrCreateIdentityFile(path string) (*AgeEncryption, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return NewAgeEncryption(firstKeyLine(string(data)))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	return &AgeEncryption{identity: id, recipient: id.Recipient()}, nil
}

// firstKeyLine skips the comment lines age-keygen writes
func firstKeyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

// Recipient returns the public key in age1... format
func (e *AgeEncryption) Recipient() string {
	return e.recipient.String()
}

// Encrypt implements batchfile.Encryption
func (e *AgeEncryption) Encrypt(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt implements batchfile.Encryption
func (e *AgeEncryption) Decrypt(data []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(data), e.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plain, nil
}
