package state

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringOptions selects and configures the secret backend.
type KeyringOptions struct {
	Service string
	// Backend restricts the keyring to a single backend when set.
	Backend string
	// FileDir is used by the encrypted file backend.
	FileDir string
	// FilePassword unlocks the file backend. Defaults to a fixed key derived
	// from the service name.
	FilePassword string
}

var backendsByName = map[string]keyring.BackendType{
	"keychain":       keyring.KeychainBackend,
	"secret-service": keyring.SecretServiceBackend,
	"wincred":        keyring.WinCredBackend,
	"pass":           keyring.PassBackend,
	"file":           keyring.FileBackend,
}

// OpenKeyring returns a configured keyring for the host's secrets.
func OpenKeyring(opts KeyringOptions) (keyring.Keyring, error) {
	if opts.Service == "" {
		return nil, errors.New("keyring service name is required")
	}

	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if opts.Backend != "" {
		b, ok := backendsByName[opts.Backend]
		if !ok {
			return nil, fmt.Errorf("unknown keyring backend %q", opts.Backend)
		}
		backends = []keyring.BackendType{b}
	}

	fileDir := opts.FileDir
	if fileDir == "" {
		fileDir = "~/." + opts.Service + "/credentials"
	}
	password := opts.FilePassword
	if password == "" {
		password = opts.Service + "-file-key"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              opts.Service,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}
