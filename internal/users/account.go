package users

import (
	"strings"
	"time"
)

// RoleAdmin is granted to every dashboard account; the API has no finer-grained roles yet.
const RoleAdmin = "admin"

// Account captures a dashboard operator and their password hash.
type Account struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null"`
	Role         string    `gorm:"column:role;size:32;not null;default:'admin'"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing dashboard accounts.
func (Account) TableName() string {
	return "accounts"
}

// Profile is the public view of an account returned to API clients.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Profile strips credentials from the account.
func (a Account) Profile() Profile {
	return Profile{
		ID:    a.ID,
		Name:  a.Name,
		Email: a.Email,
		Role:  a.Role,
	}
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(normalize(value))
}

// SessionResponse is returned by the login and registration endpoints.
type SessionResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   int64   `json:"expires_in"`
	TokenType   string  `json:"token_type"`
	User        Profile `json:"user"`
}
