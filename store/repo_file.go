package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	filePerm  = 0600
)

// ErrDecrypt is returned when an encrypted store file cannot be opened with the configured key.
var ErrDecrypt = errors.New("store file decryption failed")

var _ Repo = (*FileRepo)(nil)

// FileRepo keeps all values in a single JSON file.
// Every write is atomic (write-tmp, fsync, rename) and the file is created with 0600 permissions.
// When an encryption key is configured the file content is sealed with NaCl secretbox.
type FileRepo struct {
	path   string
	key    *[keySize]byte
	mu     sync.Mutex
	logger zerolog.Logger
}

// FileRepoOption defines a function type to modify the FileRepo instance.
type FileRepoOption func(*FileRepo)

// WithEncryptionKey seals the store file with the given secretbox key
func WithEncryptionKey(key *[keySize]byte) FileRepoOption {
	return func(r *FileRepo) {
		r.key = key
	}
}

// WithFileLogger sets the logger used for non-fatal warnings
func WithFileLogger(logger zerolog.Logger) FileRepoOption {
	return func(r *FileRepo) {
		r.logger = logger
	}
}

// ParseKey decodes a hex encoded 32 byte encryption key
func ParseKey(hexKey string) (*[keySize]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("[ParseKey] invalid hex: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("[ParseKey] key must be %d bytes, got %d", keySize, len(raw))
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// NewFileRepo creates a file backed repository. The parent folder is created if needed.
func NewFileRepo(path string, options ...FileRepoOption) (*FileRepo, error) {
	if path == "" {
		return nil, errors.New("[NewFileRepo] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("[NewFileRepo] create folder: %w", err)
	}

	r := &FileRepo{
		path:   path,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *FileRepo) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return "", err
	}
	value, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (r *FileRepo) Set(_ context.Context, key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return err
	}
	values[key] = value
	return r.save(values)
}

func (r *FileRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return r.save(values)
}

func (r *FileRepo) load() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(r.path); statErr == nil && info.Mode().Perm()&0077 != 0 {
			r.logger.Warn().Str("path", r.path).Str("mode", fmt.Sprintf("%04o", info.Mode().Perm())).
				Msg("store file has too-open permissions, should be 0600")
		}
	}

	if r.key != nil {
		if data, err = r.open(data); err != nil {
			return nil, err
		}
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}
	return values, nil
}

func (r *FileRepo) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if r.key != nil {
		if data, err = r.seal(data); err != nil {
			return err
		}
	}
	return r.writeAtomic(data)
}

func (r *FileRepo) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, r.key), nil
}

func (r *FileRepo) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, r.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (r *FileRepo) writeAtomic(data []byte) error {
	tmpPath := r.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("open temp store file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("rename store file: %w", err)
	}
	return nil
}
