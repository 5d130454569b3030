package courier

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "courier"

// CallbackVerifier validates that a callback invocation genuinely
// originates from the courier. The courier signs each invocation with an
// HS256 JWT over a key shared with this service.
type CallbackVerifier struct {
	key []byte
}

// NewCallbackVerifier returns a verifier for the given shared signing key.
func NewCallbackVerifier(key string) (*CallbackVerifier, error) {
	if key == "" {
		return nil, fmt.Errorf("courier: empty callback signing key")
	}
	return &CallbackVerifier{key: []byte(key)}, nil
}

// Verify parses and validates tokenString. It rejects non-HMAC signing
// methods, bad signatures, expired tokens, and wrong issuers.
func (v *CallbackVerifier) Verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("courier: invalid callback token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("courier: invalid callback token")
	}
	return nil
}

// SignCallbackToken mints a token the courier attaches to a callback
// invocation. The bundled dev courier uses this; the production courier
// implements the same contract on its side.
func SignCallbackToken(key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", fmt.Errorf("courier: empty callback signing key")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(key))
}
