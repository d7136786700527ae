package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret 未配置签名密钥
var ErrEmptySecret = errors.New("secret key cannot be empty")

// AuthToken 会话令牌签发和校验
type AuthToken struct {
	secretKey []byte
	ttl       time.Duration
}

// NewAuthToken ttl<=0时有效期为1小时
func NewAuthToken(secretKey string, ttl time.Duration) (*AuthToken, error) {
	if secretKey == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthToken{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}, nil
}

// GenerateToken 为客户端签发令牌，返回令牌和过期时间
func (at *AuthToken) GenerateToken(clientID string) (string, time.Time, error) {
	now := time.Now()
	expireTime := now.Add(at.ttl)

	claims := jwt.MapClaims{
		"client_id": clientID,
		"exp":       expireTime.Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(at.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expireTime, nil
}

// VerifyToken 校验令牌，返回其中的客户端ID
func (at *AuthToken) VerifyToken(tokenString string) (bool, string, error) {
	if at == nil {
		return false, "", errors.New("AuthToken instance is nil")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return at.secretKey, nil
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return false, "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false, "", errors.New("invalid claims")
	}

	clientID, ok := claims["client_id"].(string)
	if !ok {
		return false, "", errors.New("invalid client_id in claims")
	}

	return true, clientID, nil
}
