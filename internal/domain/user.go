package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account in the user directory. The licensing core owns
// the two credit-tracking fields; the rest of the record belongs to the wider
// platform.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      *string   `json:"full_name,omitempty"`
	PasswordHash  *string   `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	Preferences   []byte    `json:"-"`
	// CreditsUsedPeriod is the counter consumed against the aggregated
	// entitlement limit; it resets to zero at each monthly boundary.
	CreditsUsedPeriod int        `json:"credits_used_period"`
	NextCreditReset   *time.Time `json:"next_credit_reset,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasPassword reports whether the user has ever been issued credentials.
// Upsell purchases by existing customers must not regenerate passwords.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// DefaultPreferences is the preference blob stored for accounts created by
// the IPN sale path.
const DefaultPreferences = `{"email_notifications":true,"default_ad_format":"square"}`
