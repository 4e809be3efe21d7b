// Package file persists the single long-lived refresh token in one file,
// encrypted at rest with a key derived from a configured passphrase.
package file

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
	"github.com/patricknitsch/grohe-smarthome/internal/ports"
)

const (
	storeDirMode   = 0o700
	secretFileMode = 0o600

	// encMarker prefixes encrypted values. A stored value without it is a
	// legacy plaintext token and gets migrated on first load.
	encMarker = "enc:"

	saltLen = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

var ErrBadPassphrase = errors.New("credential file cannot be decrypted with the configured passphrase")

type Store struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore(path, passphrase string) *Store {
	return &Store{path: filepath.Clean(path), passphrase: passphrase}
}

// Load returns the stored refresh token. A legacy plaintext file (no
// encryption marker) is re-saved encrypted before the token is returned.
func (s *Store) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.ErrNoCredential
		}
		return "", fmt.Errorf("read credential file: %w", err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", domain.ErrNoCredential
	}

	if !strings.HasPrefix(value, encMarker) {
		// One-time migration of a legacy unencrypted token.
		if err := s.writeLocked(value); err != nil {
			return "", fmt.Errorf("migrate legacy credential: %w", err)
		}
		return value, nil
	}

	token, err := s.decrypt(strings.TrimPrefix(value, encMarker))
	if err != nil {
		return "", err
	}

	return token, nil
}

func (s *Store) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("refusing to save an empty credential")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(token)
}

func (s *Store) writeLocked(token string) error {
	encrypted, err := s.encrypt(token)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(encMarker+encrypted+"\n"), secretFileMode); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}

	return nil
}

func (s *Store) encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

func (s *Store) decrypt(encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential payload: %w", err)
	}
	if len(payload) < saltLen {
		return "", ErrBadPassphrase
	}

	salt := payload[:saltLen]
	gcm, err := s.aead(salt)
	if err != nil {
		return "", err
	}

	rest := payload[saltLen:]
	if len(rest) < gcm.NonceSize() {
		return "", ErrBadPassphrase
	}

	nonce := rest[:gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, rest[gcm.NonceSize():], nil)
	if err != nil {
		return "", ErrBadPassphrase
	}

	return string(plaintext), nil
}

func (s *Store) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(s.passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return gcm, nil
}
