package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/domain"
)

func seedLicenseOwner(repo *fakeRepo, email string) uuid.UUID {
	userID := uuid.New()
	repo.users[userID] = &domain.User{ID: userID, Email: email}
	return userID
}

func seedValidLicense(repo *fakeRepo, userID uuid.UUID, key string, maxActivations int) *domain.License {
	lic := &domain.License{
		ID:             uuid.New(),
		LicenseKey:     key,
		UserID:         userID,
		ProductCode:    "427079",
		Status:         domain.LicenseActive,
		TransactionID:  "TXN-" + key,
		PurchasedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxActivations: maxActivations,
	}
	repo.licenses[lic.TransactionID] = lic
	return lic
}

func TestValidateLicense_Valid(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := seedLicenseOwner(repo, "buyer@example.com")
	lic := seedValidLicense(repo, userID, "ABCD-1234-EF56-7890", 1)

	result, err := svc.ValidateLicense(context.Background(), "abcd1234ef567890", "Buyer@Example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
	if lic.LastValidatedAt == nil {
		t.Fatal("expected last_validated_at to be stamped")
	}
}

func TestValidateLicense_Failures(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)

	tests := []struct {
		name   string
		mutate func(lic *domain.License)
		key    string
		email  string
		want   string
	}{
		{
			name:   "unknown key",
			mutate: func(lic *domain.License) {},
			key:    "0000-0000-0000-0000",
			email:  "buyer@example.com",
			want:   ReasonLicenseNotFound,
		},
		{
			name:   "wrong email",
			mutate: func(lic *domain.License) {},
			key:    "ABCD-1234-EF56-7890",
			email:  "other@example.com",
			want:   ReasonEmailMismatch,
		},
		{
			name:   "refunded",
			mutate: func(lic *domain.License) { lic.Status = domain.LicenseRefunded },
			key:    "ABCD-1234-EF56-7890",
			email:  "buyer@example.com",
			want:   "license_refunded",
		},
		{
			name:   "cancelled",
			mutate: func(lic *domain.License) { lic.Status = domain.LicenseCancelled },
			key:    "ABCD-1234-EF56-7890",
			email:  "buyer@example.com",
			want:   "license_cancelled",
		},
		{
			name:   "expired",
			mutate: func(lic *domain.License) { lic.ExpiresAt = &expired },
			key:    "ABCD-1234-EF56-7890",
			email:  "buyer@example.com",
			want:   ReasonLicenseExpired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo)
			userID := seedLicenseOwner(repo, "buyer@example.com")
			lic := seedValidLicense(repo, userID, "ABCD-1234-EF56-7890", 1)
			tc.mutate(lic)

			result, err := svc.ValidateLicense(context.Background(), tc.key, tc.email)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Valid {
				t.Fatal("expected validation to fail")
			}
			if result.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, result.Reason)
			}
		})
	}
}

func TestActivateLicense_ClaimsSeats(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := seedLicenseOwner(repo, "buyer@example.com")
	seedValidLicense(repo, userID, "ABCD-1234-EF56-7890", 2)

	ctx := context.Background()

	first, err := svc.ActivateLicense(ctx, "ABCD-1234-EF56-7890", "buyer@example.com", "device-1")
	if err != nil || !first.Success {
		t.Fatalf("expected first activation to land, got %+v err=%v", first, err)
	}
	if first.Activations != 1 || first.MaxActivations != 2 {
		t.Fatalf("expected 1/2 activations, got %d/%d", first.Activations, first.MaxActivations)
	}

	second, err := svc.ActivateLicense(ctx, "ABCD-1234-EF56-7890", "buyer@example.com", "device-2")
	if err != nil || !second.Success {
		t.Fatalf("expected second activation to land, got %+v err=%v", second, err)
	}

	third, err := svc.ActivateLicense(ctx, "ABCD-1234-EF56-7890", "buyer@example.com", "device-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Success {
		t.Fatal("expected activation beyond the cap to fail")
	}
	if third.Error != ReasonActivationLimit {
		t.Fatalf("expected activation_limit_exceeded, got %q", third.Error)
	}
	if third.Activations != 2 || third.MaxActivations != 2 {
		t.Fatalf("expected counts 2/2 on rejection, got %d/%d", third.Activations, third.MaxActivations)
	}
}

func TestActivateLicense_RunsValidationGauntlet(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := seedLicenseOwner(repo, "buyer@example.com")
	lic := seedValidLicense(repo, userID, "ABCD-1234-EF56-7890", 1)
	lic.Status = domain.LicenseChargeback

	result, err := svc.ActivateLicense(context.Background(), "ABCD-1234-EF56-7890", "buyer@example.com", "device-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected activation of a chargeback license to fail")
	}
	if result.Error != "license_chargeback" {
		t.Fatalf("expected license_chargeback, got %q", result.Error)
	}
	if lic.Activations != 0 {
		t.Fatal("expected no seat to be claimed")
	}
}

func TestListUserLicenses(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	userID := seedLicenseOwner(repo, "buyer@example.com")
	seedValidLicense(repo, userID, "AAAA-0000-0000-0001", 1)
	lic := seedValidLicense(repo, userID, "AAAA-0000-0000-0002", 1)
	lic.Status = domain.LicenseRefunded

	licenses, err := svc.ListUserLicenses(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(licenses) != 2 {
		t.Fatalf("expected both licenses regardless of status, got %d", len(licenses))
	}
}
