/**
 * @description
 * Domain model for the append-only IPN transaction audit log. One record is
 * written per inbound notification and is the durable proof that a given
 * external transaction id was seen, independent of whether license processing
 * succeeded. Records are never mutated after creation.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// IPNTransaction is the audit record for one inbound payment notification.
type IPNTransaction struct {
	ID              uuid.UUID  `json:"id"`
	TransactionID   string     `json:"transaction_id"`
	TransactionType string     `json:"transaction_type"`
	ProductCode     string     `json:"product_code"`
	CustomerEmail   string     `json:"customer_email"`
	CustomerName    *string    `json:"customer_name,omitempty"`
	CustomerCountry *string    `json:"customer_country,omitempty"`
	CustomerState   *string    `json:"customer_state,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	AffiliateCents  int64      `json:"affiliate_cents"`
	VendorCents     int64      `json:"vendor_cents"`
	AffiliateID     *string    `json:"affiliate_id,omitempty"`
	VerifyHash      string     `json:"verify_hash"`
	Verified        bool       `json:"verified"`
	Processed       bool       `json:"processed"`
	ProcessingError *string    `json:"processing_error,omitempty"`
	RawPayload      []byte     `json:"-"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
