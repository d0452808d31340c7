package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// MinSigningKeyLength is the shortest accepted HMAC key, in bytes.
const MinSigningKeyLength = 32

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Issuer is the expected iss claim.
	Issuer string

	// SigningKey is the HMAC key used to verify signatures.
	SigningKey []byte

	// Claims maps claims to user fields. Defaults to DefaultClaimsExtractor.
	Claims *ClaimsExtractor
}

// JWTAuthenticator validates HMAC-signed bearer tokens.
type JWTAuthenticator struct {
	issuer    string
	key       []byte
	extractor *ClaimsExtractor
	parser    *jwt.Parser
}

// NewJWTAuthenticator creates a JWT authenticator.
func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("jwt issuer is required")
	}
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("jwt signing key must be at least %d bytes", MinSigningKeyLength)
	}
	extractor := cfg.Claims
	if extractor == nil {
		extractor = DefaultClaimsExtractor()
	}
	return &JWTAuthenticator{
		issuer:    cfg.Issuer,
		key:       cfg.SigningKey,
		extractor: extractor,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Authenticate validates the context token and returns the user it names.
func (a *JWTAuthenticator) Authenticate(ctx context.Context) (*User, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, ErrNoCredentials
	}

	claims := jwt.MapClaims{}
	parsed, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalidCredentials)
	}

	user := a.extractor.Extract(claims)
	if user.ID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredentials)
	}
	if user.Role == "" {
		return nil, fmt.Errorf("%w: no portal role in token", ErrInvalidCredentials)
	}
	return user, nil
}

// Verify interface compliance.
var _ Authenticator = (*JWTAuthenticator)(nil)
