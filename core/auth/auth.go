package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role is the access level granted by a token.
type Role string

const (
	RoleNone  Role = ""
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Allows reports whether r satisfies the required role. Admin satisfies user.
func (r Role) Allows(required Role) bool {
	switch required {
	case RoleNone:
		return true
	case RoleUser:
		return r == RoleUser || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	}
	return false
}

// Credentials are the two shared tokens and the login passwords behind them.
type Credentials struct {
	UserToken     string
	AdminToken    string
	UserPassword  string
	AdminPassword string
}

// RoleOf returns the role granted by token. Empty tokens never match.
func (c Credentials) RoleOf(token string) Role {
	if token == "" {
		return RoleNone
	}
	if c.AdminToken != "" && equal(token, c.AdminToken) {
		return RoleAdmin
	}
	if c.UserToken != "" && equal(token, c.UserToken) {
		return RoleUser
	}
	return RoleNone
}

// Login checks password against the configured passwords and returns the
// token and role it unlocks. Admin wins when both passwords match.
func (c Credentials) Login(password string) (token string, role Role, ok bool) {
	if password == "" {
		return "", RoleNone, false
	}
	if c.AdminToken != "" && CheckPassword(password, c.AdminPassword) {
		return c.AdminToken, RoleAdmin, true
	}
	if c.UserToken != "" && CheckPassword(password, c.UserPassword) {
		return c.UserToken, RoleUser, true
	}
	return "", RoleNone, false
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// isBcryptHash reports whether stored looks like a bcrypt hash.
func isBcryptHash(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

// CheckPassword compares password with stored, which is either a bcrypt
// hash or a plain secret. An empty stored value never matches.
func CheckPassword(password, stored string) bool {
	if stored == "" {
		return false
	}
	if isBcryptHash(stored) {
		return CheckPasswordHash(password, stored)
	}
	return equal(password, stored)
}

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a password with a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
