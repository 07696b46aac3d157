package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/catalog"
	"github.com/adforge/licensing-service/internal/domain"
	"github.com/adforge/licensing-service/internal/store"
)

// fakeRepo is an in-memory store.Repository mirroring the semantics of the
// PostgreSQL implementation closely enough for service-level tests:
// idempotent license creation per transaction id, terminal transitions only
// from active, conditional credit debits.
type fakeRepo struct {
	users    map[uuid.UUID]*domain.User
	licenses map[string]*domain.License // keyed by transaction id
	ipns     map[string]*domain.IPNTransaction

	createIPNErr  error
	createUserErr error
	ipnWrites     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[uuid.UUID]*domain.User),
		licenses: make(map[string]*domain.License),
		ipns:     make(map[string]*domain.IPNTransaction),
	}
}

func (f *fakeRepo) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	needle := strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == needle {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeRepo) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if f.createUserErr != nil {
		return nil, f.createUserErr
	}
	stored := *user
	stored.Email = strings.ToLower(strings.TrimSpace(stored.Email))
	f.users[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeRepo) SetUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	u, ok := f.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	hash := passwordHash
	u.PasswordHash = &hash
	return nil
}

func (f *fakeRepo) ResetCreditPeriodIfDue(ctx context.Context, userID uuid.UUID, nextReset, now time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	if u.NextCreditReset == nil || !u.NextCreditReset.After(now) {
		u.CreditsUsedPeriod = 0
		reset := nextReset
		u.NextCreditReset = &reset
	}
	return nil
}

func (f *fakeRepo) ConsumeCredits(ctx context.Context, userID uuid.UUID, amount, limit int) (int, bool, error) {
	u, ok := f.users[userID]
	if !ok {
		return 0, false, store.ErrUserNotFound
	}
	if u.CreditsUsedPeriod+amount <= limit {
		u.CreditsUsedPeriod += amount
		return u.CreditsUsedPeriod, true, nil
	}
	return u.CreditsUsedPeriod, false, nil
}

func (f *fakeRepo) SweepCreditResets(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for _, u := range f.users {
		if u.NextCreditReset != nil && !u.NextCreditReset.After(now) {
			u.CreditsUsedPeriod = 0
			next := NextMonthStart(now)
			u.NextCreditReset = &next
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) CreateLicense(ctx context.Context, params store.CreateLicenseParams) (*domain.License, error) {
	if _, exists := f.licenses[params.TransactionID]; exists {
		return nil, store.ErrDuplicateTransaction
	}

	desc := catalog.Describe(params.ProductCode)
	lic := &domain.License{
		ID:               uuid.New(),
		LicenseKey:       store.GenerateLicenseKey("test-secret", params.Email, params.TransactionID, params.ProductCode, params.PurchasedAt),
		UserID:           params.UserID,
		ProductID:        desc.InternalID,
		ProductCode:      params.ProductCode,
		Status:           domain.LicenseActive,
		TransactionID:    params.TransactionID,
		ReceiptID:        params.ReceiptID,
		TransactionType:  params.TransactionType,
		PurchasedAt:      params.PurchasedAt,
		AmountCents:      params.AmountCents,
		Recurring:        params.Recurring,
		MaxActivations:   catalog.MaxActivations(desc.Tier),
		CreditsAllocated: desc.CreditGrant,
	}
	if params.Recurring {
		expiry := params.PurchasedAt.AddDate(0, 1, store.RecurringGraceDays)
		lic.ExpiresAt = &expiry
		nextBilling := params.PurchasedAt.AddDate(0, 1, 0)
		lic.NextBillingAt = &nextBilling
	}
	f.licenses[params.TransactionID] = lic
	return lic, nil
}

func (f *fakeRepo) FindLicenseByKey(ctx context.Context, licenseKey string) (*domain.License, error) {
	needle := store.NormalizeLicenseKey(licenseKey)
	for _, lic := range f.licenses {
		if lic.LicenseKey == needle {
			return lic, nil
		}
	}
	return nil, store.ErrLicenseNotFound
}

func (f *fakeRepo) FindLicenseByTransactionID(ctx context.Context, transactionID string) (*domain.License, error) {
	if lic, ok := f.licenses[transactionID]; ok {
		return lic, nil
	}
	return nil, store.ErrLicenseNotFound
}

func (f *fakeRepo) FindLicensesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.License, error) {
	var out []domain.License
	for _, lic := range f.licenses {
		if lic.UserID == userID {
			out = append(out, *lic)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindActiveLicensesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.License, error) {
	var out []domain.License
	for _, lic := range f.licenses {
		if lic.UserID == userID && lic.Status == domain.LicenseActive {
			out = append(out, *lic)
		}
	}
	return out, nil
}

func (f *fakeRepo) markTerminal(transactionID string, status domain.LicenseStatus, at time.Time) (*domain.License, error) {
	lic, ok := f.licenses[transactionID]
	if !ok {
		return nil, store.ErrLicenseNotFound
	}
	if lic.Status == status {
		return lic, nil
	}
	if lic.Status != domain.LicenseActive {
		return nil, store.ErrLicenseNotFound
	}
	lic.Status = status
	ts := at
	switch status {
	case domain.LicenseRefunded:
		lic.RefundedAt = &ts
	case domain.LicenseChargeback:
		lic.ChargebackAt = &ts
	case domain.LicenseCancelled:
		lic.CancelledAt = &ts
	}
	return lic, nil
}

func (f *fakeRepo) MarkLicenseRefunded(ctx context.Context, transactionID string, at time.Time) (*domain.License, error) {
	return f.markTerminal(transactionID, domain.LicenseRefunded, at)
}

func (f *fakeRepo) MarkLicenseChargeback(ctx context.Context, transactionID string, at time.Time) (*domain.License, error) {
	return f.markTerminal(transactionID, domain.LicenseChargeback, at)
}

func (f *fakeRepo) MarkLicenseCancelled(ctx context.Context, transactionID string, at time.Time) (*domain.License, error) {
	return f.markTerminal(transactionID, domain.LicenseCancelled, at)
}

func (f *fakeRepo) RecordRecurringPayment(ctx context.Context, transactionID string, nextBillingAt, expiresAt time.Time) (*domain.License, error) {
	lic, ok := f.licenses[transactionID]
	if !ok {
		return nil, store.ErrLicenseNotFound
	}
	if lic.Status != domain.LicenseActive && lic.Status != domain.LicenseCancelled {
		return nil, store.ErrLicenseNotReactivatable
	}
	lic.Status = domain.LicenseActive
	next, expiry := nextBillingAt, expiresAt
	lic.NextBillingAt = &next
	lic.ExpiresAt = &expiry
	lic.CancelledAt = nil
	return lic, nil
}

func (f *fakeRepo) ActivateLicense(ctx context.Context, licenseKey string, now time.Time) (*domain.License, error) {
	lic, err := f.FindLicenseByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if lic.Activations >= lic.MaxActivations {
		return nil, store.ErrActivationLimitExceeded
	}
	lic.Activations++
	ts := now
	lic.LastValidatedAt = &ts
	return lic, nil
}

func (f *fakeRepo) TouchLicenseValidation(ctx context.Context, licenseKey string, now time.Time) error {
	lic, err := f.FindLicenseByKey(ctx, licenseKey)
	if err != nil {
		return err
	}
	ts := now
	lic.LastValidatedAt = &ts
	return nil
}

func (f *fakeRepo) FindLapsedRecurringLicenses(ctx context.Context, cutoff time.Time, limit int) ([]domain.License, error) {
	var out []domain.License
	for _, lic := range f.licenses {
		if !lic.Recurring || lic.Status != domain.LicenseActive || lic.NextBillingAt == nil {
			continue
		}
		if !lic.NextBillingAt.After(cutoff) {
			out = append(out, *lic)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ipnKey mirrors the composite (transaction_id, transaction_type) unique
// index on the audit table.
func ipnKey(transactionID, transactionType string) string {
	return transactionID + "|" + transactionType
}

func (f *fakeRepo) FindIPNTransactionByTransactionIDAndType(ctx context.Context, transactionID, transactionType string) (*domain.IPNTransaction, error) {
	if tx, ok := f.ipns[ipnKey(transactionID, transactionType)]; ok {
		return tx, nil
	}
	return nil, store.ErrTransactionNotFound
}

func (f *fakeRepo) CreateIPNTransaction(ctx context.Context, tx *domain.IPNTransaction) (*domain.IPNTransaction, error) {
	if f.createIPNErr != nil {
		return nil, f.createIPNErr
	}
	if _, exists := f.ipns[ipnKey(tx.TransactionID, tx.TransactionType)]; exists {
		return nil, store.ErrDuplicateTransaction
	}
	stored := *tx
	f.ipns[ipnKey(tx.TransactionID, tx.TransactionType)] = &stored
	f.ipnWrites++
	return &stored, nil
}
