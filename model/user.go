package model

import "time"

// User represents an account. Guest users have no email or password.
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"size:100;uniqueIndex;not null"`
	Email        *string   `json:"email,omitempty" gorm:"size:255;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:255"`
	IsGuest      bool      `json:"isGuest" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// CredentialsRequest is the body of register and login calls.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse 登录/注册响应
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
