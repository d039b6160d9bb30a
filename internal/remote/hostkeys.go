package remote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// readSigner loads the unencrypted private key a remote_command rule
// authenticates with.
func readSigner(keyPath string) (xssh.Signer, error) {
	if keyPath == "" {
		return nil, errors.New("remote: key_path required")
	}
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", keyPath, err)
	}
	return signer, nil
}

// hostKeyCallback verifies healed hosts against the known_hosts file at
// path. An absent file is created empty, so every host is rejected until an
// operator trusts it with ssh-keyscan or a first manual login.
func hostKeyCallback(path string) (xssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("known_hosts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	f.Close()
	return knownhosts.New(path)
}
