package models

import (
	"time"

	"github.com/google/uuid"
)

// Administrator marks a principal as authorized for the console. The row is
// keyed by the identity provider's principal id.
type Administrator struct {
	PrincipalID uuid.UUID `gorm:"column:principal_id;type:uuid;primaryKey"`
	Email       string    `gorm:"column:email;not null"`
	DisplayName *string   `gorm:"column:display_name"`
	Role        string    `gorm:"column:role;not null;default:'admin'"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Administrator) TableName() string {
	return "administrators"
}
