package security

import (
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims 身份提供方签发的令牌内容，Subject 即用户 ID
type IdentityClaims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// UserID 令牌中的用户 ID
func (c *IdentityClaims) UserID() string {
	return c.Subject
}
