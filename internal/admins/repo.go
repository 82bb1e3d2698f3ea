package admins

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultRole is assigned when a record is created without one.
const DefaultRole = "admin"

// Repository persists administrator records keyed by principal id.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to administrator operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByPrincipalID returns the record for principalID, or nil when none exists.
func (r *Repository) FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*models.Administrator, error) {
	var admin models.Administrator
	err := r.db.WithContext(ctx).First(&admin, "principal_id = ?", principalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// ExistsByEmail reports whether any administrator record carries email.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Administrator{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts an administrator record.
func (r *Repository) Create(ctx context.Context, input CreateAdministratorInput) (*models.Administrator, error) {
	admin := input.ToModel()
	if err := r.db.WithContext(ctx).Create(admin).Error; err != nil {
		return nil, err
	}
	return admin, nil
}

// List returns all administrators, oldest first.
func (r *Repository) List(ctx context.Context) ([]models.Administrator, error) {
	var out []models.Administrator
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record for principalID. Missing records report gorm.ErrRecordNotFound.
func (r *Repository) Delete(ctx context.Context, principalID uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Administrator{}, "principal_id = ?", principalID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateAdministratorInput is the data needed to grant console access.
type CreateAdministratorInput struct {
	PrincipalID uuid.UUID
	Email       string
	DisplayName string
	Role        string
}

func (c CreateAdministratorInput) ToModel() *models.Administrator {
	role := strings.TrimSpace(c.Role)
	if role == "" {
		role = DefaultRole
	}
	var displayName *string
	if name := strings.TrimSpace(c.DisplayName); name != "" {
		displayName = &name
	}
	return &models.Administrator{
		PrincipalID: c.PrincipalID,
		Email:       strings.ToLower(strings.TrimSpace(c.Email)),
		DisplayName: displayName,
		Role:        role,
	}
}
