package provider

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingCredential is returned at construction time when no credential is configured.
var ErrMissingCredential = errors.New("missing credential")

// Credentials supplies the bearer credential for one request.
// Fetch is called once per request; implementations wanting caching or
// refresh-ahead wrap another Credentials.
type Credentials interface {
	Fetch(ctx context.Context) (string, error)
}

// StaticKey is a fixed credential.
type StaticKey string

// Fetch implements Credentials.
func (k StaticKey) Fetch(context.Context) (string, error) {
	if strings.TrimSpace(string(k)) == "" {
		return "", ErrMissingCredential
	}
	return string(k), nil
}

// CredentialFunc adapts a function to Credentials.
type CredentialFunc func(ctx context.Context) (string, error)

// Fetch implements Credentials.
func (f CredentialFunc) Fetch(ctx context.Context) (string, error) {
	return f(ctx)
}

func fetchCredential(ctx context.Context, backend string, creds Credentials) (string, error) {
	if creds == nil {
		return "", &AuthError{Backend: backend, Err: ErrMissingCredential}
	}
	key, err := creds.Fetch(ctx)
	if err != nil {
		return "", &AuthError{Backend: backend, Err: err}
	}
	if strings.TrimSpace(key) == "" {
		return "", &AuthError{Backend: backend, Err: ErrMissingCredential}
	}
	return key, nil
}
