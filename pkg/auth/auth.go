// Package auth decrypts the venue access credential. Tokens are provisioned
// out-of-band, fernet-encrypted with a key the operator owns; this package
// only ever sees the ciphertext and the key.
package auth

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

var ErrInvalidToken = errors.New("auth: token did not verify against the fernet key")

// DecryptToken verifies and decrypts a fernet-encrypted access token.
// A TTL of zero is used: provisioned tokens do not expire client-side.
func DecryptToken(key, token string) (string, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return "", fmt.Errorf("auth: decode fernet key: %w", err)
	}

	plain := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{k})
	if plain == nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}
