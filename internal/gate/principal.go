package gate

import (
	"time"

	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/google/uuid"
)

// Source records which rule classified a principal as admin.
type Source string

const (
	SourceAdministratorsRecord Source = "administrators_record"
	SourceConfiguredAddress    Source = "configured_address"
	SourceCache                Source = "cache"
)

// AdminPrincipal is a provider principal decorated with its admin classification.
type AdminPrincipal struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	IsAdmin     bool       `json:"is_admin"`
	DisplayName *string    `json:"display_name,omitempty"`
	Role        string     `json:"role,omitempty"`
	AdminSince  *time.Time `json:"admin_since,omitempty"`
	Source      Source     `json:"source"`
}

// SignInResult pairs the admin principal with the provider's token pair.
type SignInResult struct {
	Principal *AdminPrincipal  `json:"principal"`
	Tokens    *identity.Tokens `json:"tokens"`
}

func fromRecord(principal *identity.Principal, record *models.Administrator) *AdminPrincipal {
	createdAt := record.CreatedAt
	out := &AdminPrincipal{
		ID:          principal.ID,
		Email:       principal.Email,
		IsAdmin:     true,
		DisplayName: record.DisplayName,
		Role:        record.Role,
		Source:      SourceAdministratorsRecord,
	}
	if !createdAt.IsZero() {
		out.AdminSince = &createdAt
	}
	return out
}

func fromConfiguredAddress(principal *identity.Principal) *AdminPrincipal {
	return &AdminPrincipal{
		ID:      principal.ID,
		Email:   principal.Email,
		IsAdmin: true,
		Role:    "admin",
		Source:  SourceConfiguredAddress,
	}
}

func clonePrincipal(p *AdminPrincipal) *AdminPrincipal {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}
