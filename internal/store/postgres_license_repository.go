/**
 * @description
 * PostgreSQL queries for license records. The `transaction_id` column carries
 * a unique index; CreateLicense maps its violation to ErrDuplicateTransaction,
 * which is the storage-level idempotency guard for the whole IPN pipeline.
 *
 * Lifecycle transitions are forward-only: refund/chargeback/cancel each match
 * only licenses that have not already reached a terminal state, and a
 * recurring payment may reactivate a cancelled license but never a refunded
 * or chargeback'd one.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adforge/licensing-service/internal/catalog"
	"github.com/adforge/licensing-service/internal/domain"
)

// RecurringGraceDays is the billing grace window added to recurring license
// expiry so a slow rebill does not lock paying customers out.
const RecurringGraceDays = 7

const licenseColumns = `id, license_key, user_id, product_id, product_code, status, transaction_id, receipt_id,
       transaction_type, purchased_at, amount_cents, recurring, expires_at, activations, max_activations,
       credits_allocated, last_validated_at, refunded_at, chargeback_at, cancelled_at, next_billing_at,
       created_at, updated_at`

func scanLicense(row pgx.Row) (*domain.License, error) {
	var lic domain.License
	err := row.Scan(
		&lic.ID,
		&lic.LicenseKey,
		&lic.UserID,
		&lic.ProductID,
		&lic.ProductCode,
		&lic.Status,
		&lic.TransactionID,
		&lic.ReceiptID,
		&lic.TransactionType,
		&lic.PurchasedAt,
		&lic.AmountCents,
		&lic.Recurring,
		&lic.ExpiresAt,
		&lic.Activations,
		&lic.MaxActivations,
		&lic.CreditsAllocated,
		&lic.LastValidatedAt,
		&lic.RefundedAt,
		&lic.ChargebackAt,
		&lic.CancelledAt,
		&lic.NextBillingAt,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLicenseNotFound
		}
		return nil, err
	}
	return &lic, nil
}

// CreateLicense mints and persists a new active license. Credits, activation
// cap and expiry are defaulted from the product catalog: non-recurring
// purchases are lifetime (NULL expiry); recurring purchases expire one month
// out plus the grace window.
func (r *PostgresRepository) CreateLicense(ctx context.Context, params CreateLicenseParams) (*domain.License, error) {
	desc := catalog.Describe(params.ProductCode)

	var expiresAt *time.Time
	if params.Recurring {
		expiry := params.PurchasedAt.AddDate(0, 1, RecurringGraceDays)
		expiresAt = &expiry
	}

	key := GenerateLicenseKey(r.licenseSecret, params.Email, params.TransactionID, params.ProductCode, params.PurchasedAt)

	query := fmt.Sprintf(`
        INSERT INTO licenses (id, license_key, user_id, product_id, product_code, status, transaction_id, receipt_id,
                              transaction_type, purchased_at, amount_cents, recurring, expires_at, activations,
                              max_activations, credits_allocated)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, $14, $15)
        RETURNING %s
    `, licenseColumns)

	lic, err := scanLicense(r.db.QueryRow(ctx, query,
		uuid.New(),
		key,
		params.UserID,
		desc.InternalID,
		params.ProductCode,
		domain.LicenseActive,
		params.TransactionID,
		params.ReceiptID,
		params.TransactionType,
		params.PurchasedAt,
		params.AmountCents,
		params.Recurring,
		expiresAt,
		catalog.MaxActivations(desc.Tier),
		desc.CreditGrant,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}
	return lic, nil
}

// FindLicenseByKey retrieves a license by its canonical key.
func (r *PostgresRepository) FindLicenseByKey(ctx context.Context, licenseKey string) (*domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE license_key = $1`, licenseColumns)
	return scanLicense(r.db.QueryRow(ctx, query, NormalizeLicenseKey(licenseKey)))
}

// FindLicenseByTransactionID retrieves a license by the external transaction id.
func (r *PostgresRepository) FindLicenseByTransactionID(ctx context.Context, transactionID string) (*domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE transaction_id = $1`, licenseColumns)
	return scanLicense(r.db.QueryRow(ctx, query, transactionID))
}

func (r *PostgresRepository) queryLicenses(ctx context.Context, query string, args ...interface{}) ([]domain.License, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []domain.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, *lic)
	}
	return licenses, rows.Err()
}

// FindLicensesByUserID retrieves all licenses held by a user, newest first.
func (r *PostgresRepository) FindLicensesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE user_id = $1 ORDER BY purchased_at DESC`, licenseColumns)
	return r.queryLicenses(ctx, query, userID)
}

// FindActiveLicensesByUserID retrieves only the user's active licenses, which
// is the set the entitlement aggregation folds over.
func (r *PostgresRepository) FindActiveLicensesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE user_id = $1 AND status = $2 ORDER BY purchased_at ASC`, licenseColumns)
	return r.queryLicenses(ctx, query, userID, domain.LicenseActive)
}

func (r *PostgresRepository) markTerminal(ctx context.Context, transactionID string, status domain.LicenseStatus, tsColumn string, at time.Time) (*domain.License, error) {
	query := fmt.Sprintf(`
        UPDATE licenses
        SET status = $2, %s = $3, updated_at = NOW()
        WHERE transaction_id = $1 AND status = $4
        RETURNING %s
    `, tsColumn, licenseColumns)

	lic, err := scanLicense(r.db.QueryRow(ctx, query, transactionID, status, at, domain.LicenseActive))
	if err == ErrLicenseNotFound {
		// Either no license exists for this transaction or it already left
		// the active state; both are no-ops for the caller.
		existing, findErr := r.FindLicenseByTransactionID(ctx, transactionID)
		if findErr != nil {
			return nil, ErrLicenseNotFound
		}
		if existing.Status == status {
			return existing, nil
		}
		return nil, ErrLicenseNotFound
	}
	return lic, err
}

// MarkLicenseRefunded moves an active license to refunded.
func (r *PostgresRepository) MarkLicenseRefunded(ctx context.Context, transactionID string, at time.Time) (*domain.License, error) {
	return r.markTerminal(ctx, transactionID, domain.LicenseRefunded, "refunded_at", at)
}

// MarkLicenseChargeback moves an active license to chargeback.
func (r *PostgresRepository) MarkLicenseChargeback(ctx context.Context, transactionID string, at time.Time) (*domain.License, error) {
	return r.markTerminal(ctx, transactionID, domain.LicenseChargeback, "chargeback_at", at)
}

// MarkLicenseCancelled moves an active license to cancelled. Unlike refund and
// chargeback this state is recoverable by a later recurring payment.
func (r *PostgresRepository) MarkLicenseCancelled(ctx context.Context, transactionID string, at time.Time) (*domain.License, error) {
	return r.markTerminal(ctx, transactionID, domain.LicenseCancelled, "cancelled_at", at)
}

// RecordRecurringPayment applies a successful rebill: the license returns to
// (or stays) active with a fresh billing date and extended expiry. Refunded
// and chargeback'd licenses are money-returned terminal states and are never
// reactivated; those return ErrLicenseNotReactivatable.
func (r *PostgresRepository) RecordRecurringPayment(ctx context.Context, transactionID string, nextBillingAt, expiresAt time.Time) (*domain.License, error) {
	query := fmt.Sprintf(`
        UPDATE licenses
        SET status = $2, next_billing_at = $3, expires_at = $4, cancelled_at = NULL, updated_at = NOW()
        WHERE transaction_id = $1 AND status IN ($2, $5)
        RETURNING %s
    `, licenseColumns)

	lic, err := scanLicense(r.db.QueryRow(ctx, query,
		transactionID, domain.LicenseActive, nextBillingAt, expiresAt, domain.LicenseCancelled))
	if err == ErrLicenseNotFound {
		if _, findErr := r.FindLicenseByTransactionID(ctx, transactionID); findErr == nil {
			return nil, ErrLicenseNotReactivatable
		}
		return nil, ErrLicenseNotFound
	}
	return lic, err
}

// ActivateLicense increments the activation counter, but only while below the
// cap. The conditional update keeps concurrent activations from exceeding it.
func (r *PostgresRepository) ActivateLicense(ctx context.Context, licenseKey string, now time.Time) (*domain.License, error) {
	query := fmt.Sprintf(`
        UPDATE licenses
        SET activations = activations + 1, last_validated_at = $2, updated_at = NOW()
        WHERE license_key = $1 AND activations < max_activations
        RETURNING %s
    `, licenseColumns)

	key := NormalizeLicenseKey(licenseKey)
	lic, err := scanLicense(r.db.QueryRow(ctx, query, key, now))
	if err == ErrLicenseNotFound {
		if _, findErr := r.FindLicenseByKey(ctx, key); findErr == nil {
			return nil, ErrActivationLimitExceeded
		}
		return nil, ErrLicenseNotFound
	}
	return lic, err
}

// TouchLicenseValidation records a successful validation check.
func (r *PostgresRepository) TouchLicenseValidation(ctx context.Context, licenseKey string, now time.Time) error {
	result, err := r.db.Exec(ctx,
		`UPDATE licenses SET last_validated_at = $2, updated_at = NOW() WHERE license_key = $1`,
		NormalizeLicenseKey(licenseKey), now,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrLicenseNotFound
	}
	return nil
}

// FindLapsedRecurringLicenses returns active recurring licenses whose next
// billing date is older than the cutoff, for the lapsed-rebill sweep.
func (r *PostgresRepository) FindLapsedRecurringLicenses(ctx context.Context, cutoff time.Time, limit int) ([]domain.License, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM licenses
        WHERE recurring = TRUE AND status = $1 AND next_billing_at IS NOT NULL AND next_billing_at <= $2
        ORDER BY next_billing_at ASC
        LIMIT $3
    `, licenseColumns)
	return r.queryLicenses(ctx, query, domain.LicenseActive, cutoff, limit)
}
