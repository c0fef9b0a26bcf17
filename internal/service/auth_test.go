package service

import (
	"errors"
	"testing"
	"time"
)

const testOperatorPassword = "correct-horse-battery"

func newTestAuth(t *testing.T) *authService {
	t.Helper()
	svc, err := NewAuthService(testOperatorPassword, "", "unit-test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc.(*authService)
}

func TestNewAuthServiceValidation(t *testing.T) {
	tests := []struct {
		name     string
		password string
		hash     string
		secret   string
		wantErr  bool
	}{
		{name: "password and secret", password: "pw", secret: "s", wantErr: false},
		{name: "hash and secret", hash: "$2a$10$abcdefghijklmnopqrstuv", secret: "s", wantErr: false},
		{name: "missing secret", password: "pw", wantErr: true},
		{name: "missing credentials", secret: "s", wantErr: true},
		{name: "blank everywhere", password: "  ", hash: " ", secret: "\t", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAuthService(tc.password, tc.hash, tc.secret, time.Minute)
			if tc.wantErr && err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
		})
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newTestAuth(t)

	if _, err := svc.Login("not-the-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestLoginVerifyRoundTrip(t *testing.T) {
	svc := newTestAuth(t)

	token, err := svc.Login(testOperatorPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("Expected a signed token, got empty string")
	}
	if err := svc.Verify(token); err != nil {
		t.Fatalf("Expected token to verify, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := newTestAuth(t)
	base := time.Now()
	svc.now = func() time.Time { return base }

	token, err := svc.Login(testOperatorPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newTestAuth(t)

	token, err := svc.Login(testOperatorPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Corrupt the header segment so the signature no longer matches the
	// presented content.
	flipped := byte('A')
	if token[5] == 'A' {
		flipped = 'B'
	}
	tampered := token[:5] + string(flipped) + token[6:]

	if err := svc.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestVerifyRejectsForeignToken(t *testing.T) {
	svc := newTestAuth(t)

	other, err := NewAuthService(testOperatorPassword, "", "a-different-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	token, err := other.Login(testOperatorPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken for token signed elsewhere, got %v", err)
	}
	if err := svc.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken for empty token, got %v", err)
	}
}
