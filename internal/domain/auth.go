package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims: полезная нагрузка RS256-токена, выданного внешним IdP.
type IdentityClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Actor превращает claims в пользователя use-case слоя.
func (c *IdentityClaims) Actor() (Actor, error) {
	if c.UserID == "" {
		return Actor{}, Unauthorized("token has no user_id claim")
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return Actor{}, err
	}
	name := c.Name
	if name == "" {
		name = c.UserID
	}
	return Actor{UserID: c.UserID, UserName: name, Role: role}, nil
}
