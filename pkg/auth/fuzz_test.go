package auth

import (
	"context"
	"encoding/base64"
	"testing"
)

// FuzzJWTAuthenticate feeds arbitrary tokens through validation.
func FuzzJWTAuthenticate(f *testing.F) {
	f.Add("")
	f.Add(".")
	f.Add("..")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.signature")
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user","exp":9999999999,"role":"admin"}`))
	f.Add("eyJhbGciOiJub25lIn0." + payload + ".")

	a, err := NewJWTAuthenticator(JWTConfig{Issuer: testIssuer, SigningKey: testSigningKey})
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, token string) {
		u, err := a.Authenticate(WithToken(context.Background(), token))
		if err == nil && u == nil {
			t.Fatal("nil user without error")
		}
	})
}
