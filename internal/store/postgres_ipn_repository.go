/**
 * @description
 * PostgreSQL queries for the append-only IPN transaction audit log. The
 * composite (transaction_id, transaction_type) unique index makes the
 * lookup-then-insert pair in the processor safe: a racing duplicate delivery
 * loses the insert and is reported as ErrDuplicateTransaction. The id alone
 * is deliberately not unique — JVZoo reuses the sale's receipt for the
 * refund, chargeback, and rebill notifications of the same purchase.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adforge/licensing-service/internal/domain"
)

const ipnColumns = `id, transaction_id, transaction_type, product_code, customer_email, customer_name,
       customer_country, customer_state, amount_cents, affiliate_cents, vendor_cents, affiliate_id,
       verify_hash, verified, processed, processing_error, raw_payload, user_id, created_at`

func scanIPNTransaction(row pgx.Row) (*domain.IPNTransaction, error) {
	var tx domain.IPNTransaction
	err := row.Scan(
		&tx.ID,
		&tx.TransactionID,
		&tx.TransactionType,
		&tx.ProductCode,
		&tx.CustomerEmail,
		&tx.CustomerName,
		&tx.CustomerCountry,
		&tx.CustomerState,
		&tx.AmountCents,
		&tx.AffiliateCents,
		&tx.VendorCents,
		&tx.AffiliateID,
		&tx.VerifyHash,
		&tx.Verified,
		&tx.Processed,
		&tx.ProcessingError,
		&tx.RawPayload,
		&tx.UserID,
		&tx.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindIPNTransactionByTransactionIDAndType retrieves the audit record for
// one external transaction id and transaction type, if one was ever written.
func (r *PostgresRepository) FindIPNTransactionByTransactionIDAndType(ctx context.Context, transactionID, transactionType string) (*domain.IPNTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM ipn_transactions WHERE transaction_id = $1 AND transaction_type = $2`, ipnColumns)
	return scanIPNTransaction(r.db.QueryRow(ctx, query, transactionID, transactionType))
}

// CreateIPNTransaction appends one audit record. Records are written exactly
// once and never mutated afterwards.
func (r *PostgresRepository) CreateIPNTransaction(ctx context.Context, tx *domain.IPNTransaction) (*domain.IPNTransaction, error) {
	query := fmt.Sprintf(`
        INSERT INTO ipn_transactions (id, transaction_id, transaction_type, product_code, customer_email,
                                      customer_name, customer_country, customer_state, amount_cents,
                                      affiliate_cents, vendor_cents, affiliate_id, verify_hash, verified,
                                      processed, processing_error, raw_payload, user_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        RETURNING %s
    `, ipnColumns)

	created, err := scanIPNTransaction(r.db.QueryRow(ctx, query,
		tx.ID,
		tx.TransactionID,
		tx.TransactionType,
		tx.ProductCode,
		tx.CustomerEmail,
		tx.CustomerName,
		tx.CustomerCountry,
		tx.CustomerState,
		tx.AmountCents,
		tx.AffiliateCents,
		tx.VendorCents,
		tx.AffiliateID,
		tx.VerifyHash,
		tx.Verified,
		tx.Processed,
		tx.ProcessingError,
		tx.RawPayload,
		tx.UserID,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}
	return created, nil
}
