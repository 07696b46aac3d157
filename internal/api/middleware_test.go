package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signServiceToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "render-service",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func protectedProbe(secret string) (http.Handler, *string) {
	var seenCaller string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := CallerFromContext(r.Context())
		seenCaller = caller
		w.WriteHeader(http.StatusOK)
	})
	return ServiceAuthMiddleware(secret)(inner), &seenCaller
}

func TestServiceAuthMiddleware_AcceptsValidToken(t *testing.T) {
	handler, caller := protectedProbe("shared-secret")

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", "Bearer "+signServiceToken(t, "shared-secret"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if *caller != "render-service" {
		t.Fatalf("expected the sub claim in context, got %q", *caller)
	}
}

func TestServiceAuthMiddleware_RejectsMissingHeader(t *testing.T) {
	handler, _ := protectedProbe("shared-secret")

	r := httptest.NewRequest("GET", "/probe", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestServiceAuthMiddleware_RejectsMalformedHeader(t *testing.T) {
	handler, _ := protectedProbe("shared-secret")

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", signServiceToken(t, "shared-secret"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without the Bearer prefix, got %d", w.Code)
	}
}

func TestServiceAuthMiddleware_RejectsWrongSecret(t *testing.T) {
	handler, _ := protectedProbe("shared-secret")

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", "Bearer "+signServiceToken(t, "some-other-secret"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a token signed with the wrong secret, got %d", w.Code)
	}
}

func TestServiceAuthMiddleware_RejectsNonHMACAlgorithm(t *testing.T) {
	handler, _ := protectedProbe("shared-secret")

	// alg=none tokens must never pass the HMAC method check.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "render-service"})
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	r := httptest.NewRequest("GET", "/probe", nil)
	r.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for alg=none, got %d", w.Code)
	}
}
