package repository

import (
	"time"

	"github.com/gamedock/gamedock/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByExternalID(externalID string) (*models.User, error)
	// UpsertByExternalID inserts or updates a synced account in a single
	// conditional write keyed on the external id, so concurrent syncs for
	// the same identity cannot create duplicates. Reports whether a new
	// row was created.
	UpsertByExternalID(user *models.User) (created bool, err error)
	Update(user *models.User) error
	Deactivate(id uint, when time.Time) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// RoleRepository defines the interface for role and role-assignment operations
type RoleRepository interface {
	GetByName(name string) (*models.Role, error)
	// UpsertByName creates the role if it does not exist yet.
	UpsertByName(name, description string) (*models.Role, error)
	// Assign links a role to a user; assigning an already-linked role is a no-op.
	Assign(userID, roleID uint) error
	// ReplaceForUser swaps the user's entire role set.
	ReplaceForUser(userID uint, roleIDs []uint) error
	ListForUser(userID uint) ([]models.Role, error)
}

// AuditLogRepository appends to the security audit trail.
type AuditLogRepository interface {
	Append(entry *models.SecurityAuditLog) error
}

// Repositories bundles all repository implementations
type Repositories struct {
	User  UserRepository
	Role  RoleRepository
	Audit AuditLogRepository
}
