package config

import "context"

// SecretProvider resolves secret references to plaintext values.
type SecretProvider interface {
	// GetParametersBatch resolves every key it can. Keys that do not exist are
	// omitted from the result rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
