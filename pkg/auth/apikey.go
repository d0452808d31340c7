package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// APIKey is a configured API key. Only the bcrypt hash of the key is held.
type APIKey struct {
	Name   string
	Hash   string
	UserID string
	Email  string
	Role   string
}

// APIKeyAuthenticator authenticates bcrypt-hashed API keys.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator validates keys and returns an authenticator.
func NewAPIKeyAuthenticator(keys []APIKey) (*APIKeyAuthenticator, error) {
	for i, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("api key %d: name is required", i)
		}
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, fmt.Errorf("api key %q: hash is not a bcrypt hash: %w", k.Name, err)
		}
		if !ValidRole(k.Role) {
			return nil, fmt.Errorf("api key %q: unknown role %q", k.Name, k.Role)
		}
	}
	return &APIKeyAuthenticator{keys: append([]APIKey(nil), keys...)}, nil
}

// Authenticate compares the context token against every configured hash.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context) (*User, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, ErrNoCredentials
	}

	for i := range a.keys {
		k := &a.keys[i]
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) != nil {
			continue
		}
		userID := k.UserID
		if userID == "" {
			userID = "apikey:" + k.Name
		}
		return &User{
			ID:       userID,
			Email:    k.Email,
			Name:     k.Name,
			Role:     k.Role,
			AuthType: AuthTypeAPIKey,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown api key", ErrInvalidCredentials)
}

// HashAPIKey returns the bcrypt hash to put in configuration for key.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("api key must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hash), nil
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
