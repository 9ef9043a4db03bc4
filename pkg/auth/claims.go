package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionPayload is what the dev remote knows about a signed-in user.
type SessionPayload struct {
	UserID string
	Email  string
	Roles  []string
}

// SessionClaims is the signed session carried in the fs_session cookie or a
// bearer header.
type SessionClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}
