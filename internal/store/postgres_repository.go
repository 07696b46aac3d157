/**
 * @description
 * PostgreSQL implementation of the `Repository` interface: user directory and
 * credit-tracking queries. License and IPN audit queries live in their own
 * files in this package.
 *
 * The credit consume path is a single conditional UPDATE so that two
 * concurrent requests can never jointly overspend: the increment only lands
 * when the resulting counter stays within the caller-supplied limit.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adforge/licensing-service/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface.
type PostgresRepository struct {
	db *pgxpool.Pool
	// licenseSecret feeds license key derivation; it is a server secret and
	// never leaves this package.
	licenseSecret string
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool, licenseSecret string) *PostgresRepository {
	return &PostgresRepository{db: db, licenseSecret: licenseSecret}
}

const userColumns = `id, lower(email), full_name, password_hash, email_verified, preferences, credits_used_period, next_credit_reset, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.Preferences,
		&user.CreditsUsedPeriod,
		&user.NextCreditReset,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by case-insensitive email match.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(email) = lower(btrim($1))`, userColumns)
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// FindUserByID retrieves a user by their internal UUID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// CreateUser inserts a new user record. Emails are stored lowercased so the
// case-insensitive unique index holds.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := fmt.Sprintf(`
        INSERT INTO users (id, email, full_name, password_hash, email_verified, preferences, credits_used_period, next_credit_reset)
        VALUES ($1, lower(btrim($2)), $3, $4, $5, $6, $7, $8)
        RETURNING %s
    `, userColumns)

	created, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.EmailVerified,
		user.Preferences,
		user.CreditsUsedPeriod,
		user.NextCreditReset,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			log.Printf("level=warn component=store msg=\"user insert lost a race; reloading\" email=%s", strings.ToLower(user.Email))
			return r.FindUserByEmail(ctx, user.Email)
		}
		return nil, err
	}
	return created, nil
}

// SetUserPassword stores a fresh bcrypt hash for the user.
func (r *PostgresRepository) SetUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ResetCreditPeriodIfDue zeroes the period counter and advances the boundary,
// but only when the stored boundary is unset or already past. The guard keeps
// concurrent callers from double-resetting into different periods.
func (r *PostgresRepository) ResetCreditPeriodIfDue(ctx context.Context, userID uuid.UUID, nextReset, now time.Time) error {
	result, err := r.db.Exec(ctx, `
        UPDATE users
        SET credits_used_period = 0, next_credit_reset = $2, updated_at = NOW()
        WHERE id = $1 AND (next_credit_reset IS NULL OR next_credit_reset <= $3)
    `, userID, nextReset, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		log.Printf("level=info component=store msg=\"credit period reset\" user_id=%s next_reset=%s", userID, nextReset.Format(time.RFC3339))
	}
	return nil
}

// ConsumeCredits atomically increments the period counter by amount, but only
// if the result stays within limit. It reports the counter value after the
// attempt and whether the debit landed.
func (r *PostgresRepository) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount, limit int) (int, bool, error) {
	var used int
	err := r.db.QueryRow(ctx, `
        UPDATE users
        SET credits_used_period = credits_used_period + $2, updated_at = NOW()
        WHERE id = $1 AND credits_used_period + $2 <= $3
        RETURNING credits_used_period
    `, userID, amount, limit).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if err != pgx.ErrNoRows {
		return 0, false, err
	}

	// The conditional update matched nothing: either the user is missing or
	// the debit would overspend. Read the current counter to report remaining.
	err = r.db.QueryRow(ctx, `SELECT credits_used_period FROM users WHERE id = $1`, userID).Scan(&used)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, ErrUserNotFound
		}
		return 0, false, err
	}
	return used, false, nil
}

// SweepCreditResets resets every user whose period boundary has passed. The
// consume path resets lazily; this sweep keeps idle accounts correct too.
// The month boundary is computed in UTC so the sweep and the lazy reset
// agree on the same instant regardless of the session timezone.
func (r *PostgresRepository) SweepCreditResets(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
        UPDATE users
        SET credits_used_period = 0,
            next_credit_reset = ((date_trunc('month', $1::timestamptz AT TIME ZONE 'UTC') + interval '1 month') AT TIME ZONE 'UTC'),
            updated_at = NOW()
        WHERE next_credit_reset IS NOT NULL AND next_credit_reset <= $1
    `, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
