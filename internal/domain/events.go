/**
 * @description
 * Event payloads published to RabbitMQ after IPN processing. The webhook
 * handler publishes these based on the processor's result; the notification
 * service consumes them and sends the actual emails. The processor itself
 * never talks to the broker.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// WelcomeEmailEvent is published when a sale created fresh credentials,
// either for a brand-new account or for an existing account that never had a
// password set. TempPassword is plaintext and must only ever transit the
// internal broker.
type WelcomeEmailEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	FullName     *string   `json:"full_name,omitempty"`
	TempPassword string    `json:"temp_password"`
	LicenseKey   string    `json:"license_key"`
	ProductName  string    `json:"product_name"`
	Timestamp    time.Time `json:"timestamp"`
}

// UpgradeEmailEvent is published when an existing customer bought an add-on
// or upgrade; credentials are left untouched.
type UpgradeEmailEvent struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	LicenseKey  string    `json:"license_key"`
	ProductName string    `json:"product_name"`
	Tier        string    `json:"tier"`
	Timestamp   time.Time `json:"timestamp"`
}

// LicenseReversedEvent is published after a refund or chargeback transition
// so the customer gets a confirmation of the reversal.
type LicenseReversedEvent struct {
	UserID        uuid.UUID `json:"user_id"`
	LicenseKey    string    `json:"license_key"`
	TransactionID string    `json:"transaction_id"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// LicenseLapsedEvent is published by the scheduler for recurring licenses
// whose rebill is overdue past the grace window.
type LicenseLapsedEvent struct {
	UserID        uuid.UUID `json:"user_id"`
	LicenseKey    string    `json:"license_key"`
	NextBillingAt time.Time `json:"next_billing_at"`
	Timestamp     time.Time `json:"timestamp"`
}
