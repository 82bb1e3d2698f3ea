package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
)

// Shop is a registered shop account and its lifecycle status.
type Shop struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ShopName    string           `gorm:"column:shop_name;not null"`
	Email       string           `gorm:"column:email;not null;uniqueIndex"`
	PhoneNumber *string          `gorm:"column:phone_number"`
	Address     *string          `gorm:"column:address"`
	Status      enums.ShopStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	// CreatedAt is nullable: records imported from the legacy store may lack it.
	CreatedAt          *time.Time `gorm:"column:created_at;autoCreateTime:false"`
	ApprovedAt         *time.Time `gorm:"column:approved_at"`
	RejectedAt         *time.Time `gorm:"column:rejected_at"`
	LastStatusChangeAt *time.Time `gorm:"column:last_status_change_at"`

	CreatedByAdmin      bool       `gorm:"column:created_by_admin;not null;default:false"`
	CreatedByAdminID    *uuid.UUID `gorm:"column:created_by_admin_id;type:uuid"`
	CreatedByAdminEmail *string    `gorm:"column:created_by_admin_email"`
	SelfRegistered      bool       `gorm:"column:self_registered;not null;default:false"`

	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Shop) TableName() string {
	return "shops"
}
