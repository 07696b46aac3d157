/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the licensing service. Defining
 * an interface decouples the business logic from the PostgreSQL
 * implementation and lets tests substitute in-memory fakes.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrLicenseNotFound     = errors.New("license not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicateTransaction signals that a license already exists for the
	// given external transaction id. Callers use it to implement idempotency.
	ErrDuplicateTransaction = errors.New("duplicate external transaction")
	// ErrActivationLimitExceeded is an expected outcome, surfaced to API
	// callers as a structured failure rather than an error response.
	ErrActivationLimitExceeded = errors.New("activation limit exceeded")
	// ErrLicenseNotReactivatable signals a recurring payment arriving for a
	// license in a money-returned terminal state (refunded or chargeback).
	ErrLicenseNotReactivatable = errors.New("license is not reactivatable")
)

// CreateLicenseParams carries the verified purchase facts needed to mint a
// license. Credits, activation cap and expiry are defaulted from the product
// catalog by the implementation.
type CreateLicenseParams struct {
	UserID          uuid.UUID
	Email           string
	TransactionID   string
	ReceiptID       *string
	ProductCode     string
	TransactionType string
	AmountCents     int64
	Recurring       bool
	PurchasedAt     time.Time
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User directory
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	SetUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error

	// Credit tracking. ResetCreditPeriodIfDue zeroes the period counter and
	// advances the boundary only when the stored boundary is unset or past;
	// ConsumeCredits increments the counter only when the result stays within
	// the limit, returning the counter value either way.
	ResetCreditPeriodIfDue(ctx context.Context, userID uuid.UUID, nextReset, now time.Time) error
	ConsumeCredits(ctx context.Context, userID uuid.UUID, amount, limit int) (used int, ok bool, err error)
	SweepCreditResets(ctx context.Context, now time.Time) (int64, error)

	// Licenses
	CreateLicense(ctx context.Context, params CreateLicenseParams) (*domain.License, error)
	FindLicenseByKey(ctx context.Context, licenseKey string) (*domain.License, error)
	FindLicenseByTransactionID(ctx context.Context, transactionID string) (*domain.License, error)
	FindLicensesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.License, error)
	FindActiveLicensesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.License, error)
	MarkLicenseRefunded(ctx context.Context, transactionID string, at time.Time) (*domain.License, error)
	MarkLicenseChargeback(ctx context.Context, transactionID string, at time.Time) (*domain.License, error)
	MarkLicenseCancelled(ctx context.Context, transactionID string, at time.Time) (*domain.License, error)
	RecordRecurringPayment(ctx context.Context, transactionID string, nextBillingAt, expiresAt time.Time) (*domain.License, error)
	ActivateLicense(ctx context.Context, licenseKey string, now time.Time) (*domain.License, error)
	TouchLicenseValidation(ctx context.Context, licenseKey string, now time.Time) error
	FindLapsedRecurringLicenses(ctx context.Context, cutoff time.Time, limit int) ([]domain.License, error)

	// IPN audit log
	FindIPNTransactionByTransactionIDAndType(ctx context.Context, transactionID, transactionType string) (*domain.IPNTransaction, error)
	CreateIPNTransaction(ctx context.Context, tx *domain.IPNTransaction) (*domain.IPNTransaction, error)
}
