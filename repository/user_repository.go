package repository

import (
	"context"
	"errors"
	"fmt"

	"RapLab/model"

	"gorm.io/gorm"
)

// ErrUserExists 用户名或邮箱已被占用
var ErrUserExists = errors.New("user already exists")

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GORM 用户仓库
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create adds a new user. Email and username must both be unused.
func (r *gormUserRepository) Create(ctx context.Context, user *model.User) error {
	var count int64
	q := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", user.Username)
	if user.Email != nil {
		q = q.Or("email = ?", *user.Email)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return ErrUserExists
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID; returns nil, nil when not found.
func (r *gormUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by email; returns nil, nil when not found.
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormUserRepository) first(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
