// Package auth issues and verifies the bearer tokens staff endpoints
// require, and hashes account passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"hydrogauge/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned for missing, malformed or expired tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// ValidRoles lists the accepted staff roles
var ValidRoles = []string{"Supervisor", "Analyst", "Employee"}

type claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with a shared HMAC secret
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewManager creates a token manager. ttlHours bounds token lifetime.
func NewManager(jwtSecret string, ttlHours int) *Manager {
	return &Manager{
		secret:   []byte(jwtSecret),
		tokenTTL: time.Duration(ttlHours) * time.Hour,
	}
}

// IssueToken signs a token carrying the user's identity and role
func (m *Manager) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: user.Username,
		Role:     user.Role,
		Name:     user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a bearer token, yielding the caller's
// identity. Fails closed on any parse, signature or expiry problem.
func (m *Manager) VerifyToken(tokenString string) (*models.Identity, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &models.Identity{
		Username: c.Username,
		Role:     c.Role,
		Name:     c.Name,
	}, nil
}

// Authorize reports whether the identity holds one of the allowed roles
func Authorize(identity *models.Identity, allowedRoles ...string) bool {
	if identity == nil || identity.Role == "" {
		return false
	}
	for _, role := range allowedRoles {
		if identity.Role == role {
			return true
		}
	}
	return false
}

// IsValidRole reports whether role is one of the accepted staff roles
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
