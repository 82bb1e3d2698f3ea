package shops

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
	"github.com/angelmondragon/shopdesk-backend/pkg/metrics"
	"github.com/angelmondragon/shopdesk-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	opListAll     = "list_all"
	opListPending = "list_pending"

	duplicateShopMessage = "a shop account with this email already exists"
	reservedEmailMessage = "this email cannot be used for a shop account"
	provisioningContext  = "shop-provisioning"
)

type shopRepository interface {
	ListAll(ctx context.Context) ([]models.Shop, error)
	ListByStatus(ctx context.Context, status enums.ShopStatus) ([]models.Shop, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, shop *models.Shop) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ShopStatus, stampColumn string, at time.Time) error
}

// SecondaryAuth is an isolated provider context used to provision credentials
// without touching the signed-in admin session.
type SecondaryAuth interface {
	CreateCredential(ctx context.Context, email, password string) (*identity.Principal, *identity.Tokens, error)
	DeleteCredential(ctx context.Context) error
	SignOut(ctx context.Context) error
}

type adminDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type shopRecorder interface {
	IncTransition(transition string)
	IncListingFailure(operation string)
	ObserveListing(operation string, duration time.Duration)
}

// Service exposes shop account operations. Listings never fail; mutations
// return every error.
type Service interface {
	ListAll(ctx context.Context) []ShopDTO
	ListPending(ctx context.Context) []ShopDTO
	Counts(ctx context.Context) ShopCounts
	Get(ctx context.Context, id uuid.UUID) (*ShopDTO, error)
	Create(ctx context.Context, actor Actor, input CreateShopInput) (*ShopDTO, error)
	Register(ctx context.Context, input RegisterShopInput) (*ShopDTO, error)
	Approve(ctx context.Context, id uuid.UUID) (*ShopDTO, error)
	Reject(ctx context.Context, id uuid.UUID) (*ShopDTO, error)
	ToggleFreeze(ctx context.Context, id uuid.UUID, freeze bool) (*ShopDTO, error)
}

// ServiceParams bundles the dependencies of the shop service.
type ServiceParams struct {
	Repo           shopRepository
	Secondary      func(name string) SecondaryAuth
	Admins         adminDirectory
	Admin          config.AdminConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
	Metrics        shopRecorder
	Now            func() time.Time
}

type service struct {
	repo        shopRepository
	secondary   func(name string) SecondaryAuth
	admins      adminDirectory
	adminCfg    config.AdminConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
	metrics     shopRecorder
	now         func() time.Time
}

// NewService builds a shop service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("shop repository is required")
	}
	if params.Secondary == nil {
		return nil, fmt.Errorf("secondary auth factory is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	recorder := params.Metrics
	if recorder == nil {
		recorder = (*metrics.ConsoleMetrics)(nil)
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:        params.Repo,
		secondary:   params.Secondary,
		admins:      params.Admins,
		adminCfg:    params.Admin,
		passwordCfg: params.PasswordConfig,
		logg:        logg,
		metrics:     recorder,
		now:         now,
	}, nil
}

func (s *service) ListAll(ctx context.Context) []ShopDTO {
	return s.list(ctx, opListAll, s.repo.ListAll)
}

func (s *service) ListPending(ctx context.Context) []ShopDTO {
	return s.list(ctx, opListPending, func(ctx context.Context) ([]models.Shop, error) {
		return s.repo.ListByStatus(ctx, enums.ShopStatusPending)
	})
}

// list swallows backend failures so dashboards stay renderable.
func (s *service) list(ctx context.Context, operation string, fetch func(context.Context) ([]models.Shop, error)) []ShopDTO {
	start := time.Now()
	records, err := fetch(ctx)
	s.metrics.ObserveListing(operation, time.Since(start))
	if err != nil {
		s.metrics.IncListingFailure(operation)
		s.logg.Error(s.logg.WithField(ctx, "operation", operation), "shop listing failed; serving empty result", err)
		return []ShopDTO{}
	}
	sortNewestFirst(records)
	return fromModels(records)
}

func (s *service) Counts(ctx context.Context) ShopCounts {
	var counts ShopCounts
	for _, shop := range s.ListAll(ctx) {
		counts.Total++
		switch shop.Status {
		case enums.ShopStatusPending:
			counts.Pending++
		case enums.ShopStatusApproved:
			counts.Approved++
		case enums.ShopStatusRejected:
			counts.Rejected++
		case enums.ShopStatusFrozen:
			counts.Frozen++
		}
	}
	return counts
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ShopDTO, error) {
	shop, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(shop), nil
}

func (s *service) Create(ctx context.Context, actor Actor, input CreateShopInput) (*ShopDTO, error) {
	if actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin actor is required")
	}
	now := s.now()
	actorID := actor.ID
	actorEmail := strings.TrimSpace(actor.Email)
	shop := &models.Shop{
		Status:              enums.NormalizeShopStatus(strings.TrimSpace(input.Status)),
		CreatedAt:           &now,
		CreatedByAdmin:      true,
		CreatedByAdminID:    &actorID,
		CreatedByAdminEmail: &actorEmail,
	}
	return s.provision(ctx, accountFields{
		shopName:    input.ShopName,
		email:       input.Email,
		password:    input.Password,
		phoneNumber: input.PhoneNumber,
		address:     input.Address,
	}, shop)
}

func (s *service) Register(ctx context.Context, input RegisterShopInput) (*ShopDTO, error) {
	now := s.now()
	shop := &models.Shop{
		Status:         enums.ShopStatusPending,
		CreatedAt:      &now,
		SelfRegistered: true,
	}
	return s.provision(ctx, accountFields{
		shopName:    input.ShopName,
		email:       input.Email,
		password:    input.Password,
		phoneNumber: input.PhoneNumber,
		address:     input.Address,
	}, shop)
}

type accountFields struct {
	shopName    string
	email       string
	password    string
	phoneNumber *string
	address     *string
}

// provision validates the account, creates its credential in a secondary
// context and writes the shop record. A failed shop write deletes the new
// credential again so the email stays free for a retry. The secondary context
// is always signed out afterwards; cleanup errors are ignored.
func (s *service) provision(ctx context.Context, fields accountFields, shop *models.Shop) (*ShopDTO, error) {
	shopName := strings.TrimSpace(fields.shopName)
	email := identity.NormalizeEmail(fields.email)
	if shopName == "" || email == "" || fields.password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop name, email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	if err := security.ValidatePasswordPolicy(fields.password, s.passwordCfg.MinLength); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	if err := s.checkNotAdminEmail(ctx, email); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check shop email")
	}
	if exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, duplicateShopMessage)
	}

	secondary := s.secondary(provisioningContext)
	defer func() {
		_ = secondary.SignOut(context.WithoutCancel(ctx))
	}()

	principal, _, err := secondary.CreateCredential(ctx, email, fields.password)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, duplicateShopMessage)
		}
		return nil, err
	}

	shop.ID = principal.ID
	shop.ShopName = shopName
	shop.Email = email
	shop.PhoneNumber = trimmedOrNil(fields.phoneNumber)
	shop.Address = trimmedOrNil(fields.address)

	if err := s.repo.Create(ctx, shop); err != nil {
		if cleanupErr := secondary.DeleteCredential(context.WithoutCancel(ctx)); cleanupErr != nil {
			s.logg.Error(s.logg.WithField(ctx, "shop_id", shop.ID.String()), "orphaned shop credential", cleanupErr)
		}
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, duplicateShopMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shop")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"shop_id":         shop.ID.String(),
		"status":          shop.Status.String(),
		"self_registered": shop.SelfRegistered,
	}), "shop account created")
	return FromModel(shop), nil
}

// checkNotAdminEmail keeps console addresses out of shop accounts: a shop
// credential under the configured admin address would be admitted by the gate.
func (s *service) checkNotAdminEmail(ctx context.Context, email string) error {
	if s.adminCfg.MatchesEmail(email) {
		return pkgerrors.New(pkgerrors.CodeValidation, reservedEmailMessage)
	}
	if s.admins == nil {
		return nil
	}
	isAdmin, err := s.admins.ExistsByEmail(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check admin email")
	}
	if isAdmin {
		return pkgerrors.New(pkgerrors.CodeValidation, reservedEmailMessage)
	}
	return nil
}

func (s *service) Approve(ctx context.Context, id uuid.UUID) (*ShopDTO, error) {
	return s.transition(ctx, id, enums.ShopTransitionApprove, "approved_at")
}

func (s *service) Reject(ctx context.Context, id uuid.UUID) (*ShopDTO, error) {
	return s.transition(ctx, id, enums.ShopTransitionReject, "rejected_at")
}

func (s *service) ToggleFreeze(ctx context.Context, id uuid.UUID, freeze bool) (*ShopDTO, error) {
	action := enums.ShopTransitionUnfreeze
	if freeze {
		action = enums.ShopTransitionFreeze
	}
	return s.transition(ctx, id, action, "last_status_change_at")
}

func (s *service) transition(ctx context.Context, id uuid.UUID, action enums.ShopTransition, stampColumn string) (*ShopDTO, error) {
	shop, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := action.Apply(shop.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unknown shop transition")
	}

	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, next, stampColumn, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shop status")
	}
	s.metrics.IncTransition(action.String())

	shop.Status = next
	switch stampColumn {
	case "approved_at":
		shop.ApprovedAt = &now
	case "rejected_at":
		shop.RejectedAt = &now
	case "last_status_change_at":
		shop.LastStatusChangeAt = &now
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"shop_id":    id.String(),
		"transition": action.String(),
		"status":     next.String(),
	}), "shop status changed")
	return FromModel(shop), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Shop, error) {
	shop, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	return shop, nil
}

// sortNewestFirst orders dated shops by created_at descending, then undated ones.
func sortNewestFirst(records []models.Shop) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].CreatedAt, records[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
