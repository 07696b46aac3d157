/**
 * @description
 * License key generation and normalization. Keys are derived from the buyer
 * email, external transaction id, product code and purchase timestamp via
 * HMAC-SHA256 with a server-side secret, so the same inputs are traceable to
 * the same key while the key itself stays unguessable without the secret.
 */
package store

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const licenseKeyHexChars = 16

// GenerateLicenseKey produces a key in the form XXXX-XXXX-XXXX-XXXX (uppercase
// hex) for the given purchase identity.
func GenerateLicenseKey(secret, email, transactionID, productCode string, purchasedAt time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	payload := fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(strings.TrimSpace(email)),
		transactionID,
		productCode,
		purchasedAt.Unix(),
	)
	mac.Write([]byte(payload))

	digest := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))[:licenseKeyHexChars]

	groups := make([]string, 0, licenseKeyHexChars/4)
	for i := 0; i < len(digest); i += 4 {
		groups = append(groups, digest[i:i+4])
	}
	return strings.Join(groups, "-")
}

// NormalizeLicenseKey canonicalizes user-supplied keys: uppercase, whitespace
// and separators stripped, then regrouped into dashed blocks of four.
func NormalizeLicenseKey(key string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(key))
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if len(cleaned) != licenseKeyHexChars {
		return cleaned
	}
	groups := make([]string, 0, licenseKeyHexChars/4)
	for i := 0; i < len(cleaned); i += 4 {
		groups = append(groups, cleaned[i:i+4])
	}
	return strings.Join(groups, "-")
}
