/**
 * @description
 * This file contains the HTTP handler functions for the licensing-service.
 * Handlers parse incoming requests, call the business logic in the app layer,
 * and write the response.
 *
 * The JVZoo webhook handler is deliberately peculiar: it answers HTTP 200
 * with a short plain-text body for every outcome, including failures. JVZoo
 * retries non-200 responses aggressively, and a retried delivery of a payload
 * we already rejected only wastes both sides' time.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: Route parameter extraction.
 * - internal/app, internal/domain, internal/ipn, internal/store.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adforge/licensing-service/internal/app"
	"github.com/adforge/licensing-service/internal/domain"
	"github.com/adforge/licensing-service/internal/ipn"
	"github.com/adforge/licensing-service/internal/store"
	"github.com/adforge/licensing-service/pkg/rabbitmq"
)

// Plain-text webhook acknowledgement bodies. These are part of the external
// contract; monitoring on the JVZoo side string-matches them.
const (
	ackMissingFields      = "Missing required fields"
	ackVerificationFailed = "Verification failed"
	ackAlreadyProcessed   = "Already processed"
	ackProcessed          = "IPN processed successfully"
	ackErrorLogged        = "Error logged"
)

// LicensingService is the app-layer surface the handlers depend on.
type LicensingService interface {
	ProcessNotification(ctx context.Context, n *ipn.Notification) *app.ProcessResult
	EntitlementsFor(ctx context.Context, userID uuid.UUID) (*domain.Entitlement, error)
	ConsumeCredits(ctx context.Context, userID uuid.UUID, amount int) (*app.ConsumeResult, error)
	ValidateLicense(ctx context.Context, key, email string) (*app.ValidationResult, error)
	ActivateLicense(ctx context.Context, key, email, deviceID string) (*app.ActivationResult, error)
	ListUserLicenses(ctx context.Context, userID uuid.UUID) ([]domain.License, error)
}

// RateLimiter is the limiter surface used by the public license endpoints.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Handler holds the application service and collaborators the handlers use.
type Handler struct {
	service       LicensingService
	producer      rabbitmq.Publisher
	limiter       RateLimiter
	validateLimit int
	activateLimit int
}

// NewHandler creates a new Handler.
func NewHandler(service LicensingService, producer rabbitmq.Publisher, limiter RateLimiter, validateLimit, activateLimit int) *Handler {
	return &Handler{
		service:       service,
		producer:      producer,
		limiter:       limiter,
		validateLimit: validateLimit,
		activateLimit: activateLimit,
	}
}

// handleJVZooIPN receives payment notifications from JVZoo. Every outcome is
// acknowledged with HTTP 200 and a plain-text body.
func (h *Handler) handleJVZooIPN(w http.ResponseWriter, r *http.Request) {
	n, err := ipn.ParseRequest(r)
	if err != nil {
		if errors.Is(err, ipn.ErrMissingFields) {
			respondPlain(w, ackMissingFields)
			return
		}
		log.Printf("level=warn component=webhook msg=\"unparseable IPN payload\" err=%v", err)
		respondPlain(w, ackErrorLogged)
		return
	}

	result := h.service.ProcessNotification(r.Context(), n)
	switch result.Status {
	case app.StatusAlreadyProcessed:
		respondPlain(w, ackAlreadyProcessed)
	case app.StatusVerificationFailed:
		respondPlain(w, ackVerificationFailed)
	case app.StatusProcessed:
		h.publishOutcomeEvents(r.Context(), n, result)
		respondPlain(w, ackProcessed)
	default:
		respondPlain(w, ackErrorLogged)
	}
}

// publishOutcomeEvents emits the email and reversal events for a processed
// notification. Publishing is best-effort: the license state is already
// committed and the webhook must still acknowledge.
func (h *Handler) publishOutcomeEvents(ctx context.Context, n *ipn.Notification, result *app.ProcessResult) {
	switch result.Email {
	case app.EmailWelcome:
		if result.User == nil || result.License == nil {
			return
		}
		err := h.producer.PublishWelcomeEmail(ctx, domain.WelcomeEmailEvent{
			UserID:       result.User.ID,
			Email:        result.User.Email,
			FullName:     result.User.FullName,
			TempPassword: result.TempPassword,
			LicenseKey:   result.License.LicenseKey,
			ProductName:  result.ProductName,
			Timestamp:    time.Now(),
		})
		if err != nil {
			log.Printf("level=error component=webhook msg=\"failed to publish welcome email event\" transaction_id=%s err=%v", n.TransactionID, err)
		}
	case app.EmailUpgrade:
		if result.User == nil || result.License == nil {
			return
		}
		err := h.producer.PublishUpgradeEmail(ctx, domain.UpgradeEmailEvent{
			UserID:      result.User.ID,
			Email:       result.User.Email,
			LicenseKey:  result.License.LicenseKey,
			ProductName: result.ProductName,
			Timestamp:   time.Now(),
		})
		if err != nil {
			log.Printf("level=error component=webhook msg=\"failed to publish upgrade email event\" transaction_id=%s err=%v", n.TransactionID, err)
		}
	}

	switch n.TransactionType {
	case ipn.TypeRefund, ipn.TypeChargeback, ipn.TypeCancelRebill:
		if result.License == nil {
			return
		}
		err := h.producer.PublishLicenseReversed(ctx, domain.LicenseReversedEvent{
			UserID:        result.License.UserID,
			LicenseKey:    result.License.LicenseKey,
			TransactionID: n.TransactionID,
			Reason:        strings.ToLower(n.TransactionType),
			Timestamp:     time.Now(),
		})
		if err != nil {
			log.Printf("level=error component=webhook msg=\"failed to publish reversal event\" transaction_id=%s err=%v", n.TransactionID, err)
		}
	}
}

// handleValidateLicense checks a license key for installed client software.
func (h *Handler) handleValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseKey string `json:"license_key"`
		Email      string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.LicenseKey) == "" || strings.TrimSpace(req.Email) == "" {
		http.Error(w, "license_key and email are required", http.StatusBadRequest)
		return
	}

	if !h.allowRate(w, r, "validate", store.NormalizeLicenseKey(req.LicenseKey), h.validateLimit) {
		return
	}

	result, err := h.service.ValidateLicense(r.Context(), req.LicenseKey, req.Email)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleActivateLicense claims an activation seat for a device.
func (h *Handler) handleActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseKey string `json:"license_key"`
		Email      string `json:"email"`
		DeviceID   string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.LicenseKey) == "" || strings.TrimSpace(req.Email) == "" {
		http.Error(w, "license_key and email are required", http.StatusBadRequest)
		return
	}

	if !h.allowRate(w, r, "activate", store.NormalizeLicenseKey(req.LicenseKey), h.activateLimit) {
		return
	}

	result, err := h.service.ActivateLicense(r.Context(), req.LicenseKey, req.Email, req.DeviceID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleGetEntitlements returns the aggregated entitlement for a user.
func (h *Handler) handleGetEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	entitlement, err := h.service.EntitlementsFor(r.Context(), userID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, entitlement)
}

// handleConsumeCredits debits credits from a user's monthly balance.
func (h *Handler) handleConsumeCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.ConsumeCredits(r.Context(), userID, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleListLicenses returns every license a user holds.
func (h *Handler) handleListLicenses(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	licenses, err := h.service.ListUserLicenses(r.Context(), userID)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, licenses)
}

// allowRate applies the per-license-key rolling-window limit for a public
// endpoint: a scripted probe hammering one key cannot starve other
// customers. Limiter faults fail open; a Redis outage must not take
// validation down.
func (h *Handler) allowRate(w http.ResponseWriter, r *http.Request, scope, subject string, limit int) bool {
	if h.limiter == nil || limit <= 0 {
		return true
	}
	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), scope, subject, limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=rate_limit msg=\"limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return true
	}
	if count > limit {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func respondPlain(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
