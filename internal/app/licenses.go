/**
 * @description
 * License key validation and activation for installed client software. Both
 * operations run the same gauntlet (key exists, email matches the owner,
 * status active, not expired); activation additionally claims a seat against
 * the per-license activation cap with a conditional update.
 *
 * @dependencies
 * - internal/domain, internal/store.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/domain"
	"github.com/adforge/licensing-service/internal/store"
)

// Validation failure reasons, stable identifiers for client software.
const (
	ReasonLicenseNotFound = "license_not_found"
	ReasonEmailMismatch   = "email_mismatch"
	ReasonLicenseExpired  = "license_expired"
	ReasonActivationLimit = "activation_limit_exceeded"
	reasonStatusPrefix    = "license_" // + status, e.g. license_refunded
)

// ValidationResult reports whether a license key is usable and, when it is
// not, a machine-readable reason.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ActivationResult reports the outcome of claiming one activation seat.
type ActivationResult struct {
	Success        bool   `json:"success"`
	Activations    int    `json:"activations"`
	MaxActivations int    `json:"max_activations"`
	Error          string `json:"error,omitempty"`
}

// ValidateLicense checks a license key against its owning account. A
// successful validation stamps last_validated_at; a failed stamp is logged
// but does not fail the validation.
func (s *Service) ValidateLicense(ctx context.Context, key, email string) (*ValidationResult, error) {
	lic, reason, err := s.checkLicense(ctx, key, email)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return &ValidationResult{Reason: reason}, nil
	}

	if err := s.repo.TouchLicenseValidation(ctx, lic.LicenseKey, s.now()); err != nil {
		log.Printf("level=warn component=license_validation msg=\"failed to stamp validation time\" license_key=%s err=%v", lic.LicenseKey, err)
	}
	return &ValidationResult{Valid: true}, nil
}

// ActivateLicense claims one activation seat for a device. The seat count is
// enforced by a conditional update in the store, so concurrent activations
// cannot exceed the cap.
func (s *Service) ActivateLicense(ctx context.Context, key, email, deviceID string) (*ActivationResult, error) {
	lic, reason, err := s.checkLicense(ctx, key, email)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return &ActivationResult{Error: reason}, nil
	}

	updated, err := s.repo.ActivateLicense(ctx, lic.LicenseKey, s.now())
	if errors.Is(err, store.ErrActivationLimitExceeded) {
		return &ActivationResult{
			Activations:    lic.Activations,
			MaxActivations: lic.MaxActivations,
			Error:          ReasonActivationLimit,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to activate license: %w", err)
	}

	log.Printf("level=info component=license_validation msg=\"activation claimed\" license_key=%s device_id=%s activations=%d max=%d",
		updated.LicenseKey, deviceID, updated.Activations, updated.MaxActivations)

	return &ActivationResult{
		Success:        true,
		Activations:    updated.Activations,
		MaxActivations: updated.MaxActivations,
	}, nil
}

// ListUserLicenses returns every license a user holds, in any status.
func (s *Service) ListUserLicenses(ctx context.Context, userID uuid.UUID) ([]domain.License, error) {
	licenses, err := s.repo.FindLicensesByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	return licenses, nil
}

// checkLicense runs the shared validation gauntlet. An empty reason means the
// license passed every check.
func (s *Service) checkLicense(ctx context.Context, key, email string) (*domain.License, string, error) {
	lic, err := s.repo.FindLicenseByKey(ctx, store.NormalizeLicenseKey(key))
	if errors.Is(err, store.ErrLicenseNotFound) {
		return nil, ReasonLicenseNotFound, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load license: %w", err)
	}

	owner, err := s.repo.FindUserByID(ctx, lic.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load license owner: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(email), owner.Email) {
		return nil, ReasonEmailMismatch, nil
	}

	if lic.Status != domain.LicenseActive {
		return nil, reasonStatusPrefix + string(lic.Status), nil
	}
	if lic.IsExpired(s.now()) {
		return nil, ReasonLicenseExpired, nil
	}

	return lic, "", nil
}
