/**
 * @description
 * Scheduled job implementations: the monthly credit reset sweep and the
 * lapsed recurring license sweep. Both are safety nets behind the lazy
 * per-request paths, so a user who never hits the API still gets their
 * period rolled and their lapsed licenses reported.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/adforge/licensing-service/internal/domain"
	"github.com/adforge/licensing-service/internal/store"
	"github.com/adforge/licensing-service/pkg/rabbitmq"
)

const (
	jobTimeout       = 2 * time.Minute
	lapsedSweepLimit = 500
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo     store.Repository
	producer rabbitmq.Publisher
	logger   *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// SweepCreditResets rolls the credit period forward for every user whose
// reset is overdue. The per-request lazy reset handles active users; this
// sweep catches the rest so entitlement reads stay accurate.
func (j *Jobs) SweepCreditResets() {
	j.logger.Info("starting credit reset sweep")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	count, err := j.repo.SweepCreditResets(ctx, time.Now())
	if err != nil {
		j.logger.Error("credit reset sweep failed", "error", err)
		return
	}

	j.logger.Info("credit reset sweep finished", "users_reset", count)
}

// SweepLapsedLicenses finds recurring licenses whose rebill is overdue past
// the grace window and publishes a lapsed event for each. The licenses stay
// in the active status; expiry is enforced at validation time by expires_at.
func (j *Jobs) SweepLapsedLicenses() {
	j.logger.Info("starting lapsed license sweep")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	// cutoff lands before the grace window so a merely late rebill is not
	// reported as lapsed.
	cutoff := time.Now().AddDate(0, 0, -store.RecurringGraceDays)
	licenses, err := j.repo.FindLapsedRecurringLicenses(ctx, cutoff, lapsedSweepLimit)
	if err != nil {
		j.logger.Error("lapsed license sweep failed", "error", err)
		return
	}

	if len(licenses) == 0 {
		j.logger.Info("no lapsed recurring licenses found")
		return
	}

	j.logger.Info("found lapsed recurring licenses", "count", len(licenses))

	for _, lic := range licenses {
		event := domain.LicenseLapsedEvent{
			UserID:     lic.UserID,
			LicenseKey: lic.LicenseKey,
			Timestamp:  time.Now(),
		}
		if lic.NextBillingAt != nil {
			event.NextBillingAt = *lic.NextBillingAt
		}
		if err := j.producer.PublishLicenseLapsed(ctx, event); err != nil {
			j.logger.Error("failed to publish lapsed event", "license_key", lic.LicenseKey, "error", err)
			continue
		}
		j.logger.Info("published lapsed event", "license_key", lic.LicenseKey, "user_id", lic.UserID)
	}

	j.logger.Info("lapsed license sweep finished")
}
