package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	MinUsernameLength = 3
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;column:username" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	PasswordHash string    `gorm:"not null;column:password_hash" json:"-"`
	Role         string    `gorm:"not null;column:role" json:"role"`
	Active       bool      `gorm:"not null;column:active" json:"active"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"not null" json:"updatedAt"`
}

func (User) TableName() string { return "user" }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateRegistration checks the fields a new account needs before hashing.
func ValidateRegistration(username, email, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(email) == "" || password == "" {
		return fmt.Errorf("username, email and password are required")
	}
	if len(username) < MinUsernameLength {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLength)
	}
	if !emailPattern.MatchString(NormalizeEmail(email)) {
		return fmt.Errorf("please provide a valid email address")
	}
	return nil
}
