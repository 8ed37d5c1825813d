package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Alihan26/YeDeli/internal/auth"
	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/datamodels/user"
)

// UserService 注册登录服务
type UserService struct {
	repo user.Repository
	jwt  *config.JWTConfig
}

// NewUserService 创建用户服务
func NewUserService(repo user.Repository, jwt *config.JWTConfig) *UserService {
	return &UserService{repo: repo, jwt: jwt}
}

func hashPassword(raw, salt string) string {
	h := sha256.Sum256([]byte(raw + salt))
	return hex.EncodeToString(h[:])
}

// Register 注册，role 只接受 buyer / cook
func (s *UserService) Register(ctx context.Context, username, password, name string, role user.Role) (*user.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if role != user.RoleBuyer && role != user.RoleCook {
		return nil, fmt.Errorf("unsupported role: %s", role)
	}

	u := &user.User{
		ID:       uuid.NewString(),
		Username: username,
		Name:     name,
		Role:     role,
		Salt:     uuid.NewString()[:8],
		Active:   true,
	}
	u.Password = hashPassword(password, u.Salt)
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login 登录并返回带角色的 JWT
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if !u.Active {
		return "", errors.New("account disabled")
	}
	if hashPassword(password, u.Salt) != u.Password {
		return "", errors.New("invalid password")
	}
	return auth.GenerateToken(s.jwt, u.ID, u.Username, u.Role)
}

// GetProfile 查询用户资料（含厨师聚合数据）
func (s *UserService) GetProfile(ctx context.Context, id string) (*user.User, error) {
	return s.repo.GetByID(ctx, id)
}
