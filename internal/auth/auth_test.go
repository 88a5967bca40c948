package auth

import (
	"errors"
	"testing"

	"hydrogauge/internal/models"
)

func testUser() *models.User {
	return &models.User{
		Username: "jelena",
		Role:     "Analyst",
		Name:     "Jelena Petrovic",
	}
}

func TestTokenRoundTrip(t *testing.T) {
	manager := NewManager("unit-test-secret", 1)

	token, err := manager.IssueToken(testUser())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	identity, err := manager.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if identity.Username != "jelena" {
		t.Errorf("identity.Username = %q, want jelena", identity.Username)
	}
	if identity.Role != "Analyst" {
		t.Errorf("identity.Role = %q, want Analyst", identity.Role)
	}
	if identity.Name != "Jelena Petrovic" {
		t.Errorf("identity.Name = %q, want Jelena Petrovic", identity.Name)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := NewManager("secret-a", 1).IssueToken(testUser())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	_, err = NewManager("secret-b", 1).VerifyToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	// A negative TTL produces an already-expired token
	manager := NewManager("unit-test-secret", -1)

	token, err := manager.IssueToken(testUser())
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := manager.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken() error = %v, want ErrInvalidToken for expired token", err)
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	manager := NewManager("unit-test-secret", 1)

	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := manager.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyToken(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		identity *models.Identity
		allowed  []string
		want     bool
	}{
		{"role in allowed set", &models.Identity{Role: "Supervisor"}, []string{"Supervisor", "Analyst"}, true},
		{"role not in allowed set", &models.Identity{Role: "Employee"}, []string{"Supervisor", "Analyst"}, false},
		{"nil identity", nil, []string{"Supervisor"}, false},
		{"empty role", &models.Identity{}, []string{"Supervisor"}, false},
		{"empty allowed set", &models.Identity{Role: "Supervisor"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Authorize(tt.identity, tt.allowed...); got != tt.want {
				t.Errorf("Authorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range ValidRoles {
		if !IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"", "admin", "supervisor", "ANALYST"} {
		if IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = true, want false", role)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("changeme123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "changeme123" {
		t.Error("HashPassword() returned the plaintext")
	}

	if !CheckPassword("changeme123", hash) {
		t.Error("CheckPassword() = false for the correct password")
	}
	if CheckPassword("wrong-password", hash) {
		t.Error("CheckPassword() = true for a wrong password")
	}
}
