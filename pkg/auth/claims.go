package auth

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the claims minted by the external identity provider.
// The subject carries the user id entitlements are keyed by.
type IdentityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *IdentityClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
