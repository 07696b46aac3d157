/**
 * @description
 * JVZoo IPN signature verification. The scheme is fixed by the payment
 * processor and must be preserved bit-for-bit: remove the signature field,
 * sort the remaining field names lexicographically, join their values with
 * "|", append "|" plus the shared secret, SHA-1 the UTF-8 bytes, uppercase
 * the hex digest and keep only the first 8 characters.
 *
 * Verification is a boolean check, never an error: a malformed or forged
 * notification is untrusted input, not a fault.
 */
package ipn

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

const digestLength = 8

// Digest computes the expected truncated signature for a field map, ignoring
// the named signature field.
func Digest(fields map[string]string, signatureField, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == signatureField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, fields[k])
	}

	payload := strings.Join(values, "|") + "|" + secret
	sum := sha1.Sum([]byte(payload))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	return digest[:digestLength]
}

// Verify checks the truncated SHA-1 signature carried in signatureField
// against the digest computed over the remaining fields. The comparison is
// case-insensitive. Returns false for any mismatch, including a missing or
// blank signature.
func Verify(fields map[string]string, signatureField, secret string) bool {
	provided := strings.TrimSpace(fields[signatureField])
	if provided == "" {
		return false
	}
	return strings.EqualFold(Digest(fields, signatureField, secret), provided)
}
