package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PasswordHashCost is deliberately above bcrypt.DefaultCost; login is rare
// enough that the extra latency is acceptable.
const PasswordHashCost = 12

const MinPasswordLength = 8

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=1,max=150"`
	Email        string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	PasswordHash string         `gorm:"type:text" json:"-"`
	ExternalID   *string        `gorm:"uniqueIndex;type:varchar(191);default:null" json:"external_id,omitempty"`
	IsAdmin      bool           `gorm:"default:false" json:"is_admin"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at,omitempty"`
	LastSyncedAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_synced_at,omitempty"`
	ExternalData string         `gorm:"type:json;default:null" json:"-"`
	Roles        []Role         `gorm:"many2many:user_roles" json:"roles,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewLocalUser builds a password-backed account. Synced accounts are created
// through the repository upsert path instead and carry an external id.
func NewLocalUser(name, email, password string) (*User, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hashedPassword
	return nil
}

// IsLocal reports whether the account authenticates with a password rather
// than an external identity. Webhook bulk sync can produce hybrid rows, so
// a local account may still carry an external id.
func (u *User) IsLocal() bool {
	return u.PasswordHash != ""
}
