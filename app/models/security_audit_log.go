package models

import "time"

// SecurityAuditLog is an append-only record of identity-changing events.
// Rows are never updated or deleted.
type SecurityAuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Action         string    `gorm:"type:varchar(100);index" json:"action"`
	ExternalUserID string    `gorm:"type:varchar(191);index" json:"external_user_id"`
	Details        string    `gorm:"type:json;default:null" json:"details"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
