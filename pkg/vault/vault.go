// Package vault encrypts the FlexiBee account secret at rest.
//
// It wraps filippo.io/age: a single X25519 identity is generated on first
// use and persisted in a key file outside the configuration document, so
// the ciphertext stored in the config JSON is useless without the local
// key. Losing the key file makes all stored secrets permanently
// unrecoverable; that trade-off is accepted rather than deriving the key
// from anything guessable.
//
// Ciphertext is base64-encoded for storage in JSON fields. Decrypt fails
// softly: malformed ciphertext, a foreign key, or a missing key file all
// yield an empty secret instead of an error, so a corrupt config surfaces
// as an authentication failure at request time rather than a crash at
// load time.
package vault

import (
	"bytes"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/logger"
	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// Vault encrypts and decrypts secrets with a locally persisted age identity.
type Vault struct {
	identity *age.X25519Identity
	logger   *zap.Logger
}

// Open loads the identity from keyFile, generating and persisting a new one
// if the file does not exist yet. The key file is created with mode 0600.
func Open(keyFile string) (*Vault, error) {
	log := logger.Get().With(zap.String("component", "vault"))

	data, err := os.ReadFile(keyFile)
	if err == nil {
		identity, parseErr := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if parseErr != nil {
			return nil, syncerrors.Wrap(parseErr, syncerrors.ErrorTypeConfig, "key file is not a valid age identity").
				WithDetail("key_file", keyFile)
		}
		return &Vault{identity: identity, logger: log}, nil
	}
	if !os.IsNotExist(err) {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to read key file").
			WithDetail("key_file", keyFile)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to generate encryption key")
	}

	if dir := filepath.Dir(keyFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to create key directory").
				WithDetail("dir", dir)
		}
	}
	if err := os.WriteFile(keyFile, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to persist encryption key").
			WithDetail("key_file", keyFile)
	}

	log.Info("generated new encryption key", zap.String("key_file", keyFile))
	return &Vault{identity: identity, logger: log}, nil
}

// Encrypt encrypts the secret and returns base64 ciphertext suitable for
// embedding in a JSON document. An empty secret encrypts to an empty string.
func (v *Vault) Encrypt(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, v.identity.Recipient())
	if err != nil {
		return "", syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to start encryption")
	}
	if _, err := io.WriteString(w, secret); err != nil {
		return "", syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to encrypt secret")
	}
	if err := w.Close(); err != nil {
		return "", syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to finalize encryption")
	}

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt decrypts base64 ciphertext produced by Encrypt. Malformed or
// foreign-key ciphertext returns an empty secret, never an error; callers
// must treat an empty result as "authentication will fail downstream".
func (v *Vault) Decrypt(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}

	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		v.logger.Warn("stored secret is not valid base64", zap.Error(err))
		return ""
	}

	r, err := age.Decrypt(bytes.NewReader(raw), v.identity)
	if err != nil {
		v.logger.Warn("failed to decrypt stored secret", zap.Error(err))
		return ""
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		v.logger.Warn("failed to read decrypted secret", zap.Error(err))
		return ""
	}

	return string(plain)
}
