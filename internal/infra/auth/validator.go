package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/requestflow/internal/domain"
)

// TokenValidator проверяет RS256-токены внешнего IdP. Выпуск токенов не наша задача.
type TokenValidator struct {
	publicKey *rsa.PublicKey
}

func NewTokenValidator(pubKey *rsa.PublicKey) *TokenValidator {
	return &TokenValidator{publicKey: pubKey}
}

// VerifyToken принимает значение заголовка Authorization с префиксом Bearer или без.
func (v *TokenValidator) VerifyToken(tokenStr string) (*domain.IdentityClaims, error) {
	tokenStr = strings.TrimPrefix(tokenStr, "Bearer ")
	tokenStr = strings.TrimSpace(tokenStr)

	token, err := jwt.ParseWithClaims(tokenStr, &domain.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*domain.IdentityClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM в ключ для проверки подписи.
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

// LoadRSAPublicKey читает ключ из файла, если он не передан в конфиге напрямую.
func LoadRSAPublicKey(path string, inline []byte) (*rsa.PublicKey, error) {
	if len(inline) > 0 {
		return ParseRSAPublicKey(inline)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return ParseRSAPublicKey(data)
}
