package security

import (
	"errors"
	"fmt"
	"gnetwork/internal/api/config"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken 签发身份令牌，线上由身份提供方签发，这里用于联调与测试
func GenerateToken(userID, name, avatar string, ttl time.Duration) (string, error) {
	cfg := config.Cfg.Identity
	now := time.Now()

	claims := &IdentityClaims{
		Name:   name,
		Avatar: avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("签名 Token 失败: %w", err)
	}

	return tokenString, nil
}

// ValidateToken 验证 Token 字符串并解析出 Claims
func ValidateToken(tokenString string) (*IdentityClaims, error) {
	cfg := config.Cfg.Identity
	claims := &IdentityClaims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)

	if err != nil {
		return nil, fmt.Errorf("token 解析失败: %w", err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token 无效或已过期")
	}

	return claims, nil
}
