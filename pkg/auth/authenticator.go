package auth

import (
	"context"
	"errors"
)

var (
	// ErrNoCredentials means the request carried no token.
	ErrNoCredentials = errors.New("no credentials")

	// ErrInvalidCredentials means a token was present but not accepted.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Authenticator resolves the token stored with WithToken into a User.
type Authenticator interface {
	Authenticate(ctx context.Context) (*User, error)
}

// Chain tries multiple authenticators in order.
type Chain struct {
	authenticators []Authenticator
}

// NewChain creates a chain of authenticators.
func NewChain(authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators}
}

// Authenticate returns the first user any authenticator accepts. When all
// fail it returns the last error.
func (c *Chain) Authenticate(ctx context.Context) (*User, error) {
	if GetToken(ctx) == "" {
		return nil, ErrNoCredentials
	}

	lastErr := ErrInvalidCredentials
	for _, a := range c.authenticators {
		user, err := a.Authenticate(ctx)
		if err == nil && user != nil {
			return user, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return nil, lastErr
}

// Verify interface compliance.
var _ Authenticator = (*Chain)(nil)
