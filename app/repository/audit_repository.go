package repository

import (
	"gorm.io/gorm"

	"github.com/gamedock/gamedock/app/models"
)

// auditLogRepository implements the AuditLogRepository interface
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a new audit log repository instance
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Append writes one audit entry. The table is append-only.
func (r *auditLogRepository) Append(entry *models.SecurityAuditLog) error {
	return r.db.Create(entry).Error
}
