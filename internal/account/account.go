package account

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/Kaiettt/iot-fall-detection/internal/identity"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingFields     = errors.New("username and password are required")
	ErrUserExists        = errors.New("username already registered")
	ErrUnknownUsername   = errors.New("unknown username")
	ErrInvalidCredential = errors.New("invalid credential")
)

// UserRepository 账号所需的存储能力
type UserRepository interface {
	ResolveUserID(ctx context.Context, username string) (string, error)
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// Service 注册 / 登录
type Service struct {
	users  UserRepository
	logger *zap.Logger
}

func NewService(users UserRepository, logger *zap.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// HashCredential sha256(lower(username) + ":" + password)
func HashCredential(username, password string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(username) + ":" + password))
	return hex.EncodeToString(sum[:])
}

// SignUp 创建用户并写入用户名索引
func (s *Service) SignUp(ctx context.Context, username, password string) (models.User, error) {
	key := identity.IndexKey(username)
	if key == "" || password == "" {
		return models.User{}, ErrMissingFields
	}

	user := models.User{
		UserID:           uuid.NewString(),
		Username:         key,
		CredentialSecret: HashCredential(key, password),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}

	s.logger.Info("User signed up",
		zap.String("user_id", user.UserID),
		zap.String("username", key),
	)
	return user, nil
}

// SignIn 校验凭证，返回 userId
func (s *Service) SignIn(ctx context.Context, username, password string) (string, error) {
	key := identity.IndexKey(username)
	if key == "" || password == "" {
		return "", ErrMissingFields
	}

	userID, err := s.users.ResolveUserID(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownUsername
		}
		return "", err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownUsername
		}
		return "", err
	}
	if user.CredentialSecret != HashCredential(key, password) {
		s.logger.Warn("Sign-in rejected", zap.String("username", key))
		return "", ErrInvalidCredential
	}
	return userID, nil
}
