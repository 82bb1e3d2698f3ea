package shops

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles shop persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to shop operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListAll reads every shop. Ordering is applied by the service.
func (r *Repository) ListAll(ctx context.Context) ([]models.Shop, error) {
	var out []models.Shop
	if err := r.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByStatus reads every shop in status.
func (r *Repository) ListByStatus(ctx context.Context, status enums.ShopStatus) ([]models.Shop, error) {
	var out []models.Shop
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID loads a shop by its id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).First(&shop, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

// ExistsByEmail reports whether a shop already uses email.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Shop{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a shop row.
func (r *Repository) Create(ctx context.Context, shop *models.Shop) error {
	if shop == nil {
		return fmt.Errorf("shop is required")
	}
	return r.db.WithContext(ctx).Create(shop).Error
}

// UpdateStatus writes status and stamps stampColumn with at.
// A missing shop reports gorm.ErrRecordNotFound.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ShopStatus, stampColumn string, at time.Time) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": at,
	}
	if stampColumn != "" {
		updates[stampColumn] = at
	}
	res := r.db.WithContext(ctx).Model(&models.Shop{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
