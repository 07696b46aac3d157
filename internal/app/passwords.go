/**
 * @description
 * Temporary credential generation for accounts created from a purchase. The
 * plaintext is emailed exactly once through the welcome event; only the
 * bcrypt hash is stored.
 *
 * @dependencies
 * - crypto/rand: Cryptographic randomness for password generation.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 */

package app

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const tempPasswordLength = 12

// tempPasswordCharset omits visually ambiguous characters (0/O, 1/l/I) since
// the password is read out of an email and typed by hand.
const tempPasswordCharset = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateTempPassword produces a random password of the given length from
// the unambiguous charset.
func GenerateTempPassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid password length %d", length)
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(tempPasswordCharset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read randomness: %w", err)
		}
		out[i] = tempPasswordCharset[idx.Int64()]
	}
	return string(out), nil
}

// HashPassword hashes a plaintext password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
