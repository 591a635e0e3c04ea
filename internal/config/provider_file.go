package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSecretProvider resolves secret references as paths relative to a
// directory of mounted secret files (Kubernetes secrets, Docker secrets).
type FileSecretProvider struct {
	root string
}

// NewFileSecretProvider creates a provider rooted at dir.
func NewFileSecretProvider(dir string) *FileSecretProvider {
	return &FileSecretProvider{root: filepath.Clean(dir)}
}

// GetParametersBatch reads each referenced file. Trailing newlines are trimmed.
// Missing files are omitted; unreadable files and invalid keys fail the batch.
func (p *FileSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, err := p.pathForKey(key)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read secret file %q: %w", key, err)
		}
		result[key] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}

func (p *FileSecretProvider) pathForKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("secret key is empty")
	}

	cleaned := filepath.Clean(trimmed)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") || cleaned == "." {
		return "", fmt.Errorf("invalid secret key %q", key)
	}

	return filepath.Join(p.root, cleaned), nil
}

// SecretsDirEnv names the directory of mounted secret files.
const SecretsDirEnv = "SECRETS_DIR"

// ProviderFromEnv returns a FileSecretProvider rooted at $SECRETS_DIR, or an
// EnvVarProvider when the variable is unset.
func ProviderFromEnv() SecretProvider {
	if dir := os.Getenv(SecretsDirEnv); dir != "" {
		return NewFileSecretProvider(dir)
	}
	return NewEnvVarProvider()
}
