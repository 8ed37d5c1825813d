package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

// Identity 每次请求显式传入服务层的身份信息。
// 不允许把"当前角色"放进任何全局状态，准入和状态机只认这里的值。
type Identity struct {
	UserID string
	Role   user.Role
}

type Claims struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity 从 claims 提取请求身份
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Role: c.Role}
}

// GenerateToken 生成 JWT
func GenerateToken(cfg *config.JWTConfig, userID, username string, role user.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken 解析 JWT
func ParseToken(cfg *config.JWTConfig, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
