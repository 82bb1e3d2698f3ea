package identity

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists provider credentials.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to credential operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a credential; the email is stored lowercased.
func (r *Repository) Create(ctx context.Context, email, passwordHash string) (*models.Credential, error) {
	credential := &models.Credential{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
	}
	if err := r.db.WithContext(ctx).Create(credential).Error; err != nil {
		return nil, err
	}
	return credential, nil
}

// FindByEmail loads the credential registered under email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var credential models.Credential
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&credential).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

// FindByID loads a credential by principal id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	var credential models.Credential
	if err := r.db.WithContext(ctx).First(&credential, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

// UpdateLastSignIn stamps last_sign_in_at.
func (r *Repository) UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ?", id).
		UpdateColumn("last_sign_in_at", at).Error
}

// Delete removes a credential by principal id. A missing row is not an error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Credential{}, "id = ?", id).Error
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
