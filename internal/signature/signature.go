package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSecret is returned when signing is requested with an empty
// secret. No hashing is ever performed with an empty key.
var ErrInvalidSecret = errors.New("signature: empty secret")

// Signer computes HMAC-SHA256 signatures over canonical JSON bodies, keyed
// by a per-destination secret. The zero value is ready to use; it is kept
// as an injected dependency so tests can substitute their own.
type Signer struct{}

// Sign serializes body with encoding/json (struct field order is the
// canonical order) and returns the lowercase hex HMAC-SHA256 digest keyed
// by secret.
func (Signer) Sign(secret string, body any) (string, error) {
	if secret == "" {
		return "", ErrInvalidSecret
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("signature: marshal body: %w", err)
	}
	return digest(secret, payload), nil
}

// SignBytes signs an already-serialized payload. The dispatcher uses this
// so the bytes it signs are byte-for-byte the bytes it ships.
func (Signer) SignBytes(secret string, payload []byte) (string, error) {
	if secret == "" {
		return "", ErrInvalidSecret
	}
	return digest(secret, payload), nil
}

func digest(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for payload and compares it against got
// in constant time. Receivers (and the bundled fake receiver) use this.
func (s Signer) Verify(secret string, payload []byte, got string) (bool, error) {
	want, err := s.SignBytes(secret, payload)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(want), []byte(got)), nil
}
