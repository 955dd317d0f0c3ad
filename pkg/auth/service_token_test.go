package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer  abc ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := ExtractToken(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIssueAndVerify(t *testing.T) {
	a, err := NewServiceTokenAuth("secret")
	if err != nil {
		t.Fatalf("Failed to create auth: %v", err)
	}

	token, err := a.Issue("log-collector", RoleService, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	caller, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if caller.ID != "log-collector" || caller.Role != RoleService {
		t.Errorf("Unexpected caller: %+v", caller)
	}

	// No expiry
	token, err = a.Issue("ops", RoleAdmin, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if caller, err := a.Verify(token); err != nil || caller.Role != RoleAdmin {
		t.Errorf("Expected admin caller, got %+v, %v", caller, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	a, _ := NewServiceTokenAuth("secret")
	other, _ := NewServiceTokenAuth("other-secret")

	foreign, _ := other.Issue("svc", RoleService, time.Hour)
	if _, err := a.Verify(foreign); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	expired, _ := a.Issue("svc", RoleService, time.Nanosecond)
	time.Sleep(1100 * time.Millisecond)
	if _, err := a.Verify(expired); err == nil {
		t.Error("Expected expired token to be rejected")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, ServiceClaims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "svc", Issuer: issuer},
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := a.Verify(unsigned); err == nil {
		t.Error("Expected unsigned token to be rejected")
	}

	if _, err := a.Verify("not-a-token"); err == nil {
		t.Error("Expected garbage to be rejected")
	}
}

func TestIssueValidation(t *testing.T) {
	if _, err := NewServiceTokenAuth(""); err == nil {
		t.Error("Expected empty secret to be rejected")
	}

	a, _ := NewServiceTokenAuth("secret")
	if _, err := a.Issue("", RoleService, 0); err == nil {
		t.Error("Expected empty subject to be rejected")
	}
	if _, err := a.Issue("svc", "root", 0); err == nil {
		t.Error("Expected unknown role to be rejected")
	}
}
