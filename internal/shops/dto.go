package shops

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
)

// ShopDTO exposes shop records in API responses.
type ShopDTO struct {
	ID                  uuid.UUID        `json:"id"`
	ShopName            string           `json:"shop_name"`
	Email               string           `json:"email"`
	PhoneNumber         *string          `json:"phone_number,omitempty"`
	Address             *string          `json:"address,omitempty"`
	Status              enums.ShopStatus `json:"status"`
	CreatedAt           *time.Time       `json:"created_at,omitempty"`
	ApprovedAt          *time.Time       `json:"approved_at,omitempty"`
	RejectedAt          *time.Time       `json:"rejected_at,omitempty"`
	LastStatusChangeAt  *time.Time       `json:"last_status_change_at,omitempty"`
	CreatedByAdmin      bool             `json:"created_by_admin"`
	CreatedByAdminID    *uuid.UUID       `json:"created_by_admin_id,omitempty"`
	CreatedByAdminEmail *string          `json:"created_by_admin_email,omitempty"`
	SelfRegistered      bool             `json:"self_registered"`
}

// ShopCounts aggregates shops per status.
type ShopCounts struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Frozen   int `json:"frozen"`
}

// Actor is the admin performing a mutation.
type Actor struct {
	ID    uuid.UUID
	Email string
}

// CreateShopInput is an admin-initiated shop account creation.
type CreateShopInput struct {
	ShopName    string
	Email       string
	Password    string
	PhoneNumber *string
	Address     *string
	// Status is normalized; unknown values become approved.
	Status string
}

// RegisterShopInput is a public self-registration.
type RegisterShopInput struct {
	ShopName    string
	Email       string
	Password    string
	PhoneNumber *string
	Address     *string
}

// FromModel maps the persisted shop into a DTO.
func FromModel(m *models.Shop) *ShopDTO {
	if m == nil {
		return nil
	}
	return &ShopDTO{
		ID:                  m.ID,
		ShopName:            m.ShopName,
		Email:               m.Email,
		PhoneNumber:         m.PhoneNumber,
		Address:             m.Address,
		Status:              m.Status,
		CreatedAt:           m.CreatedAt,
		ApprovedAt:          m.ApprovedAt,
		RejectedAt:          m.RejectedAt,
		LastStatusChangeAt:  m.LastStatusChangeAt,
		CreatedByAdmin:      m.CreatedByAdmin,
		CreatedByAdminID:    m.CreatedByAdminID,
		CreatedByAdminEmail: m.CreatedByAdminEmail,
		SelfRegistered:      m.SelfRegistered,
	}
}

func fromModels(records []models.Shop) []ShopDTO {
	out := make([]ShopDTO, 0, len(records))
	for i := range records {
		out = append(out, *FromModel(&records[i]))
	}
	return out
}
