/**
 * @description
 * Domain model for licenses. A license is one granted entitlement unit,
 * traceable to exactly one external (JVZoo) transaction. The external
 * transaction id carries a unique index and is the idempotency key for
 * the whole IPN pipeline.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LicenseStatus is the lifecycle state of a license.
type LicenseStatus string

const (
	LicenseActive     LicenseStatus = "active"
	LicenseRefunded   LicenseStatus = "refunded"
	LicenseChargeback LicenseStatus = "chargeback"
	LicenseCancelled  LicenseStatus = "cancelled"
)

// UnlimitedCredits is the sentinel credit allocation meaning "no cap".
const UnlimitedCredits = -1

// License represents one purchased entitlement unit.
type License struct {
	ID              uuid.UUID     `json:"id"`
	LicenseKey      string        `json:"license_key"`
	UserID          uuid.UUID     `json:"user_id"`
	ProductID       string        `json:"product_id"`
	ProductCode     string        `json:"product_code"`
	Status          LicenseStatus `json:"status"`
	TransactionID   string        `json:"transaction_id"`
	ReceiptID       *string       `json:"receipt_id,omitempty"`
	TransactionType string        `json:"transaction_type"`
	PurchasedAt     time.Time     `json:"purchased_at"`
	AmountCents     int64         `json:"amount_cents"`
	Recurring       bool          `json:"recurring"`
	// ExpiresAt is nil for lifetime licenses. For recurring licenses it
	// already includes the billing grace window.
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Activations      int        `json:"activations"`
	MaxActivations   int        `json:"max_activations"`
	CreditsAllocated int        `json:"credits_allocated"`
	LastValidatedAt  *time.Time `json:"last_validated_at,omitempty"`
	RefundedAt       *time.Time `json:"refunded_at,omitempty"`
	ChargebackAt     *time.Time `json:"chargeback_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	NextBillingAt    *time.Time `json:"next_billing_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsExpired reports whether the license has passed its expiry (grace included).
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
