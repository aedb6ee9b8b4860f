package agent

import (
	"fmt"
)

// ConfigurationError reports an unusable agent configuration, such as an
// unknown model provider or a missing API key. It is fatal to creating that
// agent and is never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "agent configuration error: " + e.Reason
}

// ProviderError wraps a transient failure from an underlying model backend.
// Callers retry these with bounded backoff before degrading.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
