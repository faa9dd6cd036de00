package auth

import (
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	IdentityID string
	Role       enums.Role
	JTI        string
}

// AccessTokenClaims represents the typed JWT presented by clients. The
// identity provider subject travels in the registered "sub" claim.
type AccessTokenClaims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// IdentityID returns the subject of the token.
func (c *AccessTokenClaims) IdentityID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// IsAdmin reports whether the caller may use admin commands.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.RoleAdmin
}
