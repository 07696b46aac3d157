/**
 * @description
 * This file contains the core business logic for IPN processing. The
 * `Service` struct orchestrates the reconciliation pipeline: deduplicate by
 * external transaction id and type, verify the payload signature, dispatch by
 * transaction type, and append the audit record.
 *
 * The pipeline is deliberately non-throwing toward the webhook: expected
 * conditions (duplicate, forged, unknown transaction) and unexpected faults
 * all come back as a structured ProcessResult so the HTTP layer can always
 * answer 200. A non-200 would trigger the payment processor's retry storm
 * and multiply deliveries below the idempotency layer.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/catalog, internal/domain, internal/ipn, internal/store.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/catalog"
	"github.com/adforge/licensing-service/internal/domain"
	"github.com/adforge/licensing-service/internal/ipn"
	"github.com/adforge/licensing-service/internal/store"
)

// Service provides the core business logic for licensing and entitlements.
type Service struct {
	repo      store.Repository
	ipnSecret string
	now       func() time.Time
}

// NewService creates a new licensing service instance.
func NewService(repo store.Repository, ipnSecret string) *Service {
	return &Service{
		repo:      repo,
		ipnSecret: ipnSecret,
		now:       time.Now,
	}
}

// ProcessStatus is the terminal outcome of one notification.
type ProcessStatus string

const (
	StatusProcessed          ProcessStatus = "processed"
	StatusAlreadyProcessed   ProcessStatus = "already_processed"
	StatusVerificationFailed ProcessStatus = "verification_failed"
	StatusFailed             ProcessStatus = "failed"
)

// EmailKind tells the webhook handler which notification event to publish
// for a processed sale. The processor never talks to the broker itself.
type EmailKind string

const (
	EmailNone    EmailKind = ""
	EmailWelcome EmailKind = "welcome"
	EmailUpgrade EmailKind = "upgrade"
)

// ProcessResult is the structured outcome of ProcessNotification.
type ProcessResult struct {
	Status      ProcessStatus
	Transaction *domain.IPNTransaction
	User        *domain.User
	License     *domain.License
	Email       EmailKind
	// TempPassword is the plaintext temporary password generated on the
	// welcome path, carried only so the handler can include it in the
	// welcome email event.
	TempPassword string
	ProductName  string
}

// ProcessNotification runs the full reconciliation pipeline for one verified
// delivery attempt. It never returns an error: every outcome, including
// internal faults, is reported through the result so the webhook can always
// acknowledge receipt.
func (s *Service) ProcessNotification(ctx context.Context, n *ipn.Notification) *ProcessResult {
	// 1. Idempotency: the audit record is the durable proof that this
	// delivery was already seen. Keyed on (transaction id, type) because
	// JVZoo reuses the sale's receipt for the refund, chargeback, and rebill
	// notifications of the same purchase; only a true replay collides.
	existing, err := s.repo.FindIPNTransactionByTransactionIDAndType(ctx, n.TransactionID, n.TransactionType)
	if err == nil {
		log.Printf("level=info component=ipn_processor msg=\"duplicate delivery short-circuited\" transaction_id=%s type=%s", n.TransactionID, n.TransactionType)
		return &ProcessResult{Status: StatusAlreadyProcessed, Transaction: existing}
	}
	if !errors.Is(err, store.ErrTransactionNotFound) {
		log.Printf("level=error component=ipn_processor msg=\"idempotency lookup failed\" transaction_id=%s err=%v", n.TransactionID, err)
		return &ProcessResult{Status: StatusFailed}
	}

	// 2. Authenticity. A forged payload is logged and discarded without any
	// writes: recording it would let an attacker poison the idempotency key
	// of a future genuine notification.
	if !ipn.Verify(n.Fields(), ipn.FieldVerify, s.ipnSecret) {
		log.Printf("level=warn component=ipn_processor msg=\"signature verification failed\" transaction_id=%s type=%s", n.TransactionID, n.TransactionType)
		return &ProcessResult{Status: StatusVerificationFailed}
	}

	tx := &domain.IPNTransaction{
		ID:              uuid.New(),
		TransactionID:   n.TransactionID,
		TransactionType: n.TransactionType,
		ProductCode:     n.ProductCode,
		CustomerEmail:   strings.ToLower(n.CustomerEmail),
		CustomerName:    n.OptionalField(ipn.FieldCustomerName),
		CustomerCountry: n.OptionalField(ipn.FieldCustomerCountry),
		CustomerState:   n.OptionalField(ipn.FieldCustomerState),
		AmountCents:     n.AmountCents(ipn.FieldAmount),
		AffiliateCents:  n.AmountCents(ipn.FieldAffiliate),
		VendorCents:     n.AmountCents(ipn.FieldVendorThru),
		AffiliateID:     n.OptionalField(ipn.FieldAffiliateID),
		VerifyHash:      n.VerifyHash,
		Verified:        true,
		RawPayload:      n.RawBody(),
	}

	result := &ProcessResult{
		Status:      StatusProcessed,
		ProductName: catalog.Describe(n.ProductCode).DisplayName,
	}

	// 3. Dispatch by transaction type.
	user, license, procErr := s.dispatch(ctx, n, result)
	if user != nil {
		tx.UserID = &user.ID
	}
	result.User = user
	result.License = license

	if procErr != nil {
		// Internal fault mid-processing: the audit record below captures it
		// for manual reconciliation and the webhook still acknowledges.
		log.Printf("level=error component=ipn_processor msg=\"processing failed\" transaction_id=%s type=%s err=%v", n.TransactionID, n.TransactionType, procErr)
		msg := procErr.Error()
		tx.ProcessingError = &msg
		result.Status = StatusFailed
		result.Email = EmailNone
	} else {
		tx.Processed = true
	}

	// 4. Always append the audit record, even after a failure. This write is
	// best-effort secondary logging and must not itself take the pipeline
	// down.
	created, auditErr := s.repo.CreateIPNTransaction(ctx, tx)
	if auditErr != nil {
		if errors.Is(auditErr, store.ErrDuplicateTransaction) {
			// A concurrent delivery won the insert race. Its processing also
			// won any license-level race, so suppress our side effects.
			log.Printf("level=warn component=ipn_processor msg=\"audit insert lost duplicate race\" transaction_id=%s", n.TransactionID)
			result.Status = StatusAlreadyProcessed
			result.Email = EmailNone
			return result
		}
		log.Printf("level=error component=ipn_processor msg=\"failed to write audit record\" transaction_id=%s err=%v", n.TransactionID, auditErr)
		return result
	}
	result.Transaction = created

	return result
}

func (s *Service) dispatch(ctx context.Context, n *ipn.Notification, result *ProcessResult) (*domain.User, *domain.License, error) {
	now := s.now()

	switch n.TransactionType {
	case ipn.TypeSale:
		return s.handleSale(ctx, n, result, now)
	case ipn.TypeRefund:
		lic, err := s.applyTransition(n, "refund", func() (*domain.License, error) {
			return s.repo.MarkLicenseRefunded(ctx, n.TransactionID, now)
		})
		return nil, lic, err
	case ipn.TypeChargeback:
		lic, err := s.applyTransition(n, "chargeback", func() (*domain.License, error) {
			return s.repo.MarkLicenseChargeback(ctx, n.TransactionID, now)
		})
		return nil, lic, err
	case ipn.TypeCancelRebill:
		lic, err := s.applyTransition(n, "cancel", func() (*domain.License, error) {
			return s.repo.MarkLicenseCancelled(ctx, n.TransactionID, now)
		})
		return nil, lic, err
	case ipn.TypeInstallment:
		nextBilling := now.AddDate(0, 1, 0)
		expiresAt := nextBilling.AddDate(0, 0, store.RecurringGraceDays)
		lic, err := s.applyTransition(n, "recurring payment", func() (*domain.License, error) {
			return s.repo.RecordRecurringPayment(ctx, n.TransactionID, nextBilling, expiresAt)
		})
		return nil, lic, err
	default:
		// Unknown types are acknowledged and skipped; failing the request
		// here would only provoke redeliveries of something we cannot handle.
		log.Printf("level=warn component=ipn_processor msg=\"unhandled transaction type\" transaction_id=%s type=%s", n.TransactionID, n.TransactionType)
		return nil, nil, nil
	}
}

// handleSale finds or creates the buyer's account, mints the license and
// decides between the welcome and upgrade notification paths.
func (s *Service) handleSale(ctx context.Context, n *ipn.Notification, result *ProcessResult, now time.Time) (*domain.User, *domain.License, error) {
	user, err := s.repo.FindUserByEmail(ctx, n.CustomerEmail)
	if errors.Is(err, store.ErrUserNotFound) {
		nextReset := NextMonthStart(now)
		user, err = s.repo.CreateUser(ctx, &domain.User{
			ID:              uuid.New(),
			Email:           strings.ToLower(strings.TrimSpace(n.CustomerEmail)),
			FullName:        n.OptionalField(ipn.FieldCustomerName),
			EmailVerified:   true,
			Preferences:     []byte(domain.DefaultPreferences),
			NextCreditReset: &nextReset,
		})
		if err == nil {
			log.Printf("level=info component=ipn_processor msg=\"created account for buyer\" user_id=%s transaction_id=%s", user.ID, n.TransactionID)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve buyer account: %w", err)
	}

	license, err := s.repo.CreateLicense(ctx, store.CreateLicenseParams{
		UserID:          user.ID,
		Email:           user.Email,
		TransactionID:   n.TransactionID,
		ReceiptID:       n.OptionalField(ipn.FieldReceipt),
		ProductCode:     n.ProductCode,
		TransactionType: n.TransactionType,
		AmountCents:     n.AmountCents(ipn.FieldAmount),
		Recurring:       catalog.Describe(n.ProductCode).Recurring,
		PurchasedAt:     now,
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		// The unique index caught a racing duplicate below the audit check.
		log.Printf("level=warn component=ipn_processor msg=\"license already exists for transaction\" transaction_id=%s", n.TransactionID)
		existing, findErr := s.repo.FindLicenseByTransactionID(ctx, n.TransactionID)
		if findErr != nil {
			return user, nil, nil
		}
		return user, existing, nil
	}
	if err != nil {
		return user, nil, fmt.Errorf("failed to create license: %w", err)
	}
	log.Printf("level=info component=ipn_processor msg=\"license created\" license_key=%s user_id=%s product=%s", license.LicenseKey, user.ID, n.ProductCode)

	// Welcome-with-credentials only for account-creating products or accounts
	// that never had a password. Upsell purchases by established customers
	// must not silently reset their password.
	desc := catalog.Describe(n.ProductCode)
	if desc.AccountCreating || !user.HasPassword() {
		tempPassword, genErr := GenerateTempPassword(tempPasswordLength)
		if genErr != nil {
			return user, license, fmt.Errorf("failed to generate credentials: %w", genErr)
		}
		hash, hashErr := HashPassword(tempPassword)
		if hashErr != nil {
			return user, license, fmt.Errorf("failed to hash credentials: %w", hashErr)
		}
		if setErr := s.repo.SetUserPassword(ctx, user.ID, hash); setErr != nil {
			return user, license, fmt.Errorf("failed to store credentials: %w", setErr)
		}
		result.Email = EmailWelcome
		result.TempPassword = tempPassword
	} else {
		result.Email = EmailUpgrade
	}

	return user, license, nil
}

// applyTransition runs a lifecycle mutation, treating a missing or
// non-reactivatable license as a logged no-op. Notifications legitimately
// arrive for transactions this system never created, and out-of-order
// delivery (refund before sale) must not crash processing.
func (s *Service) applyTransition(n *ipn.Notification, op string, fn func() (*domain.License, error)) (*domain.License, error) {
	lic, err := fn()
	if errors.Is(err, store.ErrLicenseNotFound) {
		log.Printf("level=warn component=ipn_processor msg=\"no license matches %s notification; ignoring\" transaction_id=%s", op, n.TransactionID)
		return nil, nil
	}
	if errors.Is(err, store.ErrLicenseNotReactivatable) {
		log.Printf("level=warn component=ipn_processor msg=\"%s arrived for a refunded or chargeback license; ignoring\" transaction_id=%s", op, n.TransactionID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s: %w", op, err)
	}
	log.Printf("level=info component=ipn_processor msg=\"license %s applied\" transaction_id=%s license_key=%s status=%s", op, n.TransactionID, lic.LicenseKey, lic.Status)
	return lic, nil
}
