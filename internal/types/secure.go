package types

import "log/slog"

const redacted = "[redacted]"

// SecretString holds a credential loaded from configuration: a database URL,
// a Stripe key, a webhook signing secret. Every rendering path (fmt, JSON,
// slog) prints a placeholder; only Unmask returns the value.
type SecretString string

func (s SecretString) String() string { return redacted }

func (s SecretString) GoString() string { return redacted }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue keeps secrets out of structured logs even when a whole config
// struct is logged as an attribute.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// IsSet reports whether a value was configured.
func (s SecretString) IsSet() bool { return s != "" }

// Unmask returns the plaintext. Call it only where the value is handed to a
// client or driver.
func (s SecretString) Unmask() string { return string(s) }
