package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gamedock/gamedock/app/models"
)

// roleRepository implements the RoleRepository interface
type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role repository instance
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

// GetByName retrieves a role by its unique name
func (r *roleRepository) GetByName(name string) (*models.Role, error) {
	var role models.Role
	err := r.db.Where("name = ?", name).First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// UpsertByName returns the existing role or creates it with the given description
func (r *roleRepository) UpsertByName(name, description string) (*models.Role, error) {
	role, err := r.GetByName(name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Role{Name: name, Description: description}
	// Conflict on the name constraint means a concurrent upsert won; keep
	// the existing row untouched and re-read it.
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(created)
	if res.Error != nil {
		return nil, res.Error
	}
	if created.ID == 0 {
		return r.GetByName(name)
	}
	return created, nil
}

// Assign links a role to a user; duplicate assignment is a no-op
func (r *roleRepository) Assign(userID, roleID uint) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Table("user_roles").
		Create(map[string]interface{}{"user_id": userID, "role_id": roleID}).Error
}

// ReplaceForUser swaps the user's entire role set inside one transaction
func (r *roleRepository) ReplaceForUser(userID uint, roleIDs []uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM user_roles WHERE user_id = ?", userID).Error; err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Table("user_roles").
				Create(map[string]interface{}{"user_id": userID, "role_id": roleID}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListForUser returns all roles assigned to a user
func (r *roleRepository) ListForUser(userID uint) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	return roles, err
}
