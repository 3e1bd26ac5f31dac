package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	// ErrKeystoreExists is returned when saving over an existing file without WithOverwrite.
	ErrKeystoreExists = errors.New("crypto: keystore file already exists")
	// ErrKeystoreMismatch is returned when a decrypted key does not match the
	// address recorded in its keystore file.
	ErrKeystoreMismatch = errors.New("crypto: keystore address mismatch")
)

type keystoreOptions struct {
	scryptN   int
	scryptP   int
	overwrite bool
}

// KeystoreOption tunes SaveToKeystore.
type KeystoreOption func(*keystoreOptions)

// WithScrypt sets the scrypt cost. The default is the light profile, which
// suits wallets unlocked interactively on every command.
func WithScrypt(n, p int) KeystoreOption {
	return func(o *keystoreOptions) {
		o.scryptN = n
		o.scryptP = p
	}
}

// WithStandardScrypt selects the costlier geth standard profile.
func WithStandardScrypt() KeystoreOption {
	return WithScrypt(keystore.StandardScryptN, keystore.StandardScryptP)
}

// WithOverwrite allows replacing an existing keystore file.
func WithOverwrite(overwrite bool) KeystoreOption {
	return func(o *keystoreOptions) {
		o.overwrite = overwrite
	}
}

// SaveToKeystore encrypts key into a v3 keystore file at path. The file is
// written to a temporary name in the same directory and moved into place, so
// a crash never leaves a truncated keystore behind.
func SaveToKeystore(path string, key *PrivateKey, passphrase string, opts ...KeystoreOption) error {
	if key == nil || key.PrivateKey == nil {
		return ErrNoPrivateKey
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	cfg := keystoreOptions{scryptN: keystore.LightScryptN, scryptP: keystore.LightScryptP}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("crypto: keystore id: %w", err)
	}
	encrypted, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    key.Address(),
		PrivateKey: key.PrivateKey,
	}, passphrase, cfg.scryptN, cfg.scryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt keystore: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(encrypted); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if cfg.overwrite {
		return os.Rename(tmpPath, path)
	}
	// os.Link refuses to replace an existing path.
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrKeystoreExists, path)
		}
		return err
	}
	return nil
}

// LoadFromKeystore decrypts the v3 keystore file at path and checks the key
// against the address recorded in the file.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(keyJSON, &header); err != nil {
		return nil, fmt.Errorf("crypto: parse keystore: %w", err)
	}
	if header.Address != "" {
		if !common.IsHexAddress(header.Address) {
			return nil, fmt.Errorf("%w: malformed address %q", ErrKeystoreMismatch, header.Address)
		}
		if recorded := common.HexToAddress(header.Address); recorded != decrypted.Address {
			return nil, fmt.Errorf("%w: file records %s, key is %s", ErrKeystoreMismatch, recorded.Hex(), decrypted.Address.Hex())
		}
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
