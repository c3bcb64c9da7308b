package auth

import (
	"errors"
	"fmt"
)

// ErrInvalidSignature rejects a webhook delivery whose HMAC does not match.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrInvalidCredentials is the single user-facing message for both unknown
// accounts and wrong passwords, so error text cannot be used to enumerate
// accounts.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UnknownProviderError is returned whenever a provider id has no entry in
// the definition table. There is no silent default provider.
type UnknownProviderError struct {
	ID string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown auth provider %q", e.ID)
}

// CapabilityError signals a programmer error: an operation was requested
// from a provider that does not support it.
type CapabilityError struct {
	Provider  string
	Operation string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("provider %q does not support %s", e.Provider, e.Operation)
}

// ConfigError is an operator-facing configuration problem surfaced at
// initialization, never to end users.
type ConfigError struct {
	Provider string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("provider %q: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("provider %q: field %s: %s", e.Provider, e.Field, e.Reason)
}

// UpstreamError wraps a non-2xx or unreachable identity provider. Callers
// surface it as a login failure; it is not retried beyond the transport
// timeout.
type UpstreamError struct {
	Provider string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %q upstream error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("provider %q upstream returned status %d", e.Provider, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
