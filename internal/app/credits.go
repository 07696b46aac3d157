/**
 * @description
 * Credit ledger operations. Credits renew on calendar-month boundaries (UTC)
 * and are consumed against the additive entitlement limit with a single
 * conditional database update, so concurrent consumers can never overdraw a
 * balance.
 *
 * @dependencies
 * - github.com/google/uuid: User identifiers.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// UnlimitedRemaining is the remaining-balance sentinel reported to clients of
// an unlimited account. Clients treat it as "effectively infinite"; no debit
// path ever counts against it.
const UnlimitedRemaining = 999999

// Error codes carried on ConsumeResult.
const (
	ErrCodeInvalidAmount       = "invalid_amount"
	ErrCodeInsufficientCredits = "insufficient_credits"
)

// ConsumeResult reports the outcome of one credit debit attempt.
type ConsumeResult struct {
	Success   bool   `json:"success"`
	Remaining int    `json:"remaining"`
	Unlimited bool   `json:"unlimited,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConsumeCredits attempts to debit amount credits from a user's monthly
// balance. A lapsed credit period is rolled forward lazily before the debit.
// Business rejections (bad amount, insufficient balance) come back on the
// result; only infrastructure faults return an error.
func (s *Service) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int) (*ConsumeResult, error) {
	if amount <= 0 {
		return &ConsumeResult{Error: ErrCodeInvalidAmount}, nil
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	if user.NextCreditReset == nil || !now.Before(*user.NextCreditReset) {
		// The guarded update is idempotent under concurrency: whichever
		// request rolls the period first wins, the rest are no-ops.
		if err := s.repo.ResetCreditPeriodIfDue(ctx, userID, NextMonthStart(now), now); err != nil {
			return nil, fmt.Errorf("failed to reset credit period: %w", err)
		}
		log.Printf("level=info component=credit_ledger msg=\"credit period rolled forward\" user_id=%s", userID)
	}

	ent, err := s.EntitlementsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ent.IsUnlimited {
		return &ConsumeResult{Success: true, Remaining: UnlimitedRemaining, Unlimited: true}, nil
	}

	used, ok, err := s.repo.ConsumeCredits(ctx, userID, amount, ent.CreditLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to consume credits: %w", err)
	}
	if !ok {
		remaining := ent.CreditLimit - used
		if remaining < 0 {
			remaining = 0
		}
		return &ConsumeResult{Remaining: remaining, Error: ErrCodeInsufficientCredits}, nil
	}

	return &ConsumeResult{Success: true, Remaining: ent.CreditLimit - used}, nil
}

// NextMonthStart returns the first instant of the month following t, in UTC.
// Credit periods are anchored to UTC calendar months regardless of where the
// purchase happened.
func NextMonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
