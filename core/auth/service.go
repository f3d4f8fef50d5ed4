package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"RapLab/logger"
	"RapLab/model"
	"RapLab/repository"

	"github.com/google/uuid"
)

// ErrInvalidEmail 邮箱格式不正确
var ErrInvalidEmail = errors.New("invalid email")

// Service resolves credentials into identities and tokens.
type Service struct {
	users  repository.UserRepository
	issuer *Issuer
}

// NewService 创建认证服务
func NewService(users repository.UserRepository, issuer *Issuer) *Service {
	return &Service{users: users, issuer: issuer}
}

// Issuer 返回令牌签发器
func (s *Service) Issuer() *Issuer { return s.issuer }

// Register creates a password account and signs it in.
func (s *Service) Register(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     email,
		Email:        &email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Info("[Auth] user registered", logger.UserID(user.ID))
	return s.respond(user)
}

// Login checks a password account.
func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPasswordHash(password, user.PasswordHash) {
		logger.Warn("[Auth] login rejected", logger.String("email", email))
		return nil, ErrInvalidCredentials
	}
	return s.respond(user)
}

// Guest creates an anonymous account with no credentials.
func (s *Service) Guest(ctx context.Context) (*model.AuthResponse, error) {
	user := &model.User{
		Username: "guest-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		IsGuest:  true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	logger.Info("[Auth] guest session", logger.UserID(user.ID))
	return s.respond(user)
}

func (s *Service) respond(user *model.User) (*model.AuthResponse, error) {
	token, err := s.issuer.GenerateToken(Identity{
		UserID:   user.ID,
		Username: user.Username,
		Guest:    user.IsGuest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &model.AuthResponse{Token: token, User: user}, nil
}
