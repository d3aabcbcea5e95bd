package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestEnabled(t *testing.T) {
	var nilAuth *Authenticator
	if nilAuth.Enabled() {
		t.Error("Expected nil authenticator to be disabled")
	}
	if New("secret", false).Enabled() {
		t.Error("Expected Enabled to return false when auth is disabled")
	}
	if !New("secret", true).Enabled() {
		t.Error("Expected Enabled to return true when auth is enabled")
	}
}

func TestGenerateJWT(t *testing.T) {
	a := New("test-secret", true)

	token, err := a.GenerateJWT("alice", "Alice", time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("Expected JWT with 3 parts, got %d", len(parts))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil {
		t.Fatalf("Failed to parse generated token: %v", err)
	}
	claims := parsed.Claims.(*Claims)
	if claims.Subject != "alice" {
		t.Errorf("Expected subject 'alice', got %q", claims.Subject)
	}
	if claims.Name != "Alice" {
		t.Errorf("Expected name 'Alice', got %q", claims.Name)
	}
	if d := time.Until(claims.ExpiresAt.Time); d < 59*time.Minute || d > time.Hour {
		t.Errorf("Expected expiry about one hour away, got %v", d)
	}
}

func TestGenerateJWT_Errors(t *testing.T) {
	if _, err := New("", true).GenerateJWT("alice", "", time.Hour); err == nil {
		t.Error("Expected error without a secret")
	}
	if _, err := New("secret", true).GenerateJWT("", "", time.Hour); err == nil {
		t.Error("Expected error without a subject")
	}
}

func TestValidateJWT(t *testing.T) {
	a := New("test-secret", true)
	valid, _ := a.GenerateJWT("alice", "Alice", time.Hour)
	expired, _ := a.GenerateJWT("alice", "", -time.Minute)
	foreign, _ := New("other-secret", true).GenerateJWT("mallory", "", time.Hour)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}).SignedString([]byte("test-secret"))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name        string
		token       string
		expectError bool
	}{
		{"valid token", valid, false},
		{"expired token", expired, true},
		{"wrong secret", foreign, true},
		{"missing expiry", noExpiry, true},
		{"missing subject", noSubject, true},
		{"malformed token", "not.a.jwt", true},
		{"empty token", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.ValidateJWT(tt.token)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, got principal %+v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if p.Subject != "alice" || p.Name != "Alice" {
				t.Errorf("Unexpected principal %+v", p)
			}
		})
	}
}

func TestValidateJWT_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to build unsigned token: %v", err)
	}
	if _, err := New("test-secret", true).ValidateJWT(token); err == nil {
		t.Error("Expected unsigned token to be rejected")
	}
}

func TestRequireAuth(t *testing.T) {
	enabled := New("test-secret", true)
	token, _ := enabled.GenerateJWT("alice", "Alice", time.Hour)

	var seen *Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name           string
		auth           *Authenticator
		header         string
		cookie         string
		expectedStatus int
		expectSubject  string
	}{
		{name: "disabled passes through", auth: New("", false), expectedStatus: http.StatusNoContent},
		{name: "missing token", auth: enabled, expectedStatus: http.StatusUnauthorized},
		{name: "bearer header", auth: enabled, header: "Bearer " + token, expectedStatus: http.StatusNoContent, expectSubject: "alice"},
		{name: "cookie", auth: enabled, cookie: token, expectedStatus: http.StatusNoContent, expectSubject: "alice"},
		{name: "invalid token", auth: enabled, header: "Bearer garbage", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", auth: enabled, header: "Basic " + token, expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "auth_token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			tt.auth.RequireAuth(next).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectSubject == "" {
				if seen != nil {
					t.Errorf("Expected no principal, got %+v", seen)
				}
				return
			}
			if seen == nil || seen.Subject != tt.expectSubject {
				t.Errorf("Expected principal %q, got %+v", tt.expectSubject, seen)
			}
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	if p := PrincipalFromContext(context.Background()); p != nil {
		t.Errorf("Expected nil principal, got %+v", p)
	}
	ctx := context.WithValue(context.Background(), PrincipalContextKey, &Principal{Subject: "bob"})
	if p := PrincipalFromContext(ctx); p == nil || p.Subject != "bob" {
		t.Errorf("Expected principal bob, got %+v", p)
	}
}
