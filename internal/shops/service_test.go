package shops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/angelmondragon/shopdesk-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var admin = Actor{ID: uuid.New(), Email: "owner@shopdesk.test"}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Secondary: newStubSecondaryFactory().factory}); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewService(ServiceParams{Repo: &failingRepo{}}); err == nil {
		t.Fatal("expected error without secondary factory")
	}
}

func TestListingOrdersDatedNewestFirstThenUndated(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedShop(t, repo, "undated", enums.ShopStatusPending, nil)
	seedShop(t, repo, "older", enums.ShopStatusApproved, timePtr(base.Add(-time.Hour)))
	seedShop(t, repo, "newest", enums.ShopStatusPending, timePtr(base))
	seedShop(t, repo, "middle", enums.ShopStatusFrozen, timePtr(base.Add(-time.Minute)))

	svc := newTestService(t, repo, newStubSecondaryFactory())

	all := svc.ListAll(ctx)
	require.Len(t, all, 4)
	require.Equal(t, []string{"newest", "middle", "older", "undated"}, shopNames(all))

	pending := svc.ListPending(ctx)
	require.Equal(t, []string{"newest", "undated"}, shopNames(pending))
}

func TestListingScenarioPendingAndApproved(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	T := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedShop(t, repo, "approved", enums.ShopStatusApproved, timePtr(T.Add(-time.Second)))
	seedShop(t, repo, "pending", enums.ShopStatusPending, timePtr(T))

	svc := newTestService(t, repo, newStubSecondaryFactory())

	all := svc.ListAll(ctx)
	require.Equal(t, []string{"pending", "approved"}, shopNames(all))
	require.Equal(t, enums.ShopStatusPending, all[0].Status)

	pending := svc.ListPending(ctx)
	require.Equal(t, []string{"pending"}, shopNames(pending))
}

func TestListingSwallowsBackendFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Repo:      &failingRepo{err: errors.New("backend unavailable")},
		Secondary: newStubSecondaryFactory().factory,
		Metrics:   metrics.NewConsoleMetrics(reg),
	})
	require.NoError(t, err)

	all := svc.ListAll(context.Background())
	require.NotNil(t, all)
	require.Empty(t, all)

	pending := svc.ListPending(context.Background())
	require.NotNil(t, pending)
	require.Empty(t, pending)

	require.Equal(t, ShopCounts{}, svc.Counts(context.Background()))

	expected := `
# HELP shop_listing_failures_total Shop listings that failed and were served as empty.
# TYPE shop_listing_failures_total counter
shop_listing_failures_total{operation="list_all"} 2
shop_listing_failures_total{operation="list_pending"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "shop_listing_failures_total"))
}

func TestMutationsPropagateBackendFailures(t *testing.T) {
	svc := newTestService(t, &failingRepo{err: errors.New("backend unavailable")}, newStubSecondaryFactory())
	ctx := context.Background()
	id := uuid.New()

	for name, call := range map[string]func() error{
		"approve": func() error { _, err := svc.Approve(ctx, id); return err },
		"reject":  func() error { _, err := svc.Reject(ctx, id); return err },
		"freeze":  func() error { _, err := svc.ToggleFreeze(ctx, id, true); return err },
		"get":     func() error { _, err := svc.Get(ctx, id); return err },
	} {
		if err := call(); !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
			t.Fatalf("%s: expected dependency error, got %v", name, err)
		}
	}
}

func TestCreateRejectsWeakPasswordBeforeAnyWrite(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	secondaries := newStubSecondaryFactory()
	svc := newTestService(t, repo, secondaries)

	_, err := svc.Create(context.Background(), admin, CreateShopInput{
		ShopName: "Corner Shop",
		Email:    "corner@shopdesk.test",
		Password: "short1",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if secondaries.created != 0 || secondaries.contexts != 0 {
		t.Fatal("no credential may be provisioned for a weak password")
	}
	if all := svc.ListAll(context.Background()); len(all) != 0 {
		t.Fatalf("expected no shop written, got %d", len(all))
	}
}

func TestCreateRequiresFields(t *testing.T) {
	svc := newTestService(t, NewRepository(openTestDB(t)), newStubSecondaryFactory())
	_, err := svc.Create(context.Background(), admin, CreateShopInput{Email: "a@b.test", Password: "Str0ng!Pass"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing shop name, got %v", err)
	}
}

func TestCreateDuplicateEmailPerformsNoWrite(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	seedShop(t, repo, "Existing", enums.ShopStatusApproved, timePtr(time.Now()))
	secondaries := newStubSecondaryFactory()
	svc := newTestService(t, repo, secondaries)

	_, err := svc.Create(context.Background(), admin, CreateShopInput{
		ShopName: "Copy",
		Email:    "EXISTING@shopdesk.test",
		Password: "Str0ng!Pass",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := pkgerrors.As(err).Message(); got != duplicateShopMessage {
		t.Fatalf("unexpected message %q", got)
	}
	if secondaries.created != 0 {
		t.Fatal("duplicate email must not provision a credential")
	}
	if all := svc.ListAll(context.Background()); len(all) != 1 {
		t.Fatalf("expected exactly the seeded shop, got %d", len(all))
	}
}

func TestCreateProvisionsThroughSecondaryAndNormalizesStatus(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	secondaries := newStubSecondaryFactory()
	svc := newTestService(t, repo, secondaries)
	phone := " 555-0100 "

	dto, err := svc.Create(context.Background(), admin, CreateShopInput{
		ShopName:    " Corner Shop ",
		Email:       "Corner@ShopDesk.test",
		Password:    "Str0ng!Pass",
		PhoneNumber: &phone,
		Status:      "archived",
	})
	require.NoError(t, err)
	require.Equal(t, enums.ShopStatusApproved, dto.Status)
	require.Equal(t, "Corner Shop", dto.ShopName)
	require.Equal(t, "corner@shopdesk.test", dto.Email)
	require.NotNil(t, dto.PhoneNumber)
	require.Equal(t, "555-0100", *dto.PhoneNumber)
	require.True(t, dto.CreatedByAdmin)
	require.Equal(t, admin.ID, *dto.CreatedByAdminID)
	require.Equal(t, admin.Email, *dto.CreatedByAdminEmail)
	require.Equal(t, secondaries.lastPrincipal.ID, dto.ID)
	require.Equal(t, 1, secondaries.signOuts, "secondary context must be signed out")

	stored, err := svc.Get(context.Background(), dto.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ShopStatusApproved, stored.Status)
	require.NotNil(t, stored.CreatedAt)
}

func TestCreateSignsSecondaryOutWhenProvisioningFails(t *testing.T) {
	secondaries := newStubSecondaryFactory()
	secondaries.err = pkgerrors.New(pkgerrors.CodeConflict, "an account with this email already exists")
	secondaries.signOutErr = errors.New("cleanup failed")
	svc := newTestService(t, NewRepository(openTestDB(t)), secondaries)

	_, err := svc.Create(context.Background(), admin, CreateShopInput{
		ShopName: "Corner Shop",
		Email:    "corner@shopdesk.test",
		Password: "Str0ng!Pass",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected provisioning conflict to surface, got %v", err)
	}
	if secondaries.signOuts != 1 {
		t.Fatalf("expected cleanup sign out despite failure, got %d", secondaries.signOuts)
	}
}

func TestRegisterCreatesPendingSelfRegisteredShop(t *testing.T) {
	svc := newTestService(t, NewRepository(openTestDB(t)), newStubSecondaryFactory())

	dto, err := svc.Register(context.Background(), RegisterShopInput{
		ShopName: "Market Stall",
		Email:    "stall@shopdesk.test",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	require.Equal(t, enums.ShopStatusPending, dto.Status)
	require.True(t, dto.SelfRegistered)
	require.False(t, dto.CreatedByAdmin)
	require.Nil(t, dto.CreatedByAdminID)

	pending := svc.ListPending(context.Background())
	require.Equal(t, []string{"Market Stall"}, shopNames(pending))
}

func TestRegisterRefusesAdminAddresses(t *testing.T) {
	ctx := context.Background()
	secondaries := newStubSecondaryFactory()
	directory := &stubAdminDirectory{emails: map[string]bool{"ops@shopdesk.test": true}}
	svc, err := NewService(ServiceParams{
		Repo:           NewRepository(openTestDB(t)),
		Secondary:      secondaries.factory,
		Admins:         directory,
		Admin:          config.AdminConfig{Email: "Owner@ShopDesk.test"},
		PasswordConfig: config.PasswordConfig{MinLength: 8},
	})
	require.NoError(t, err)

	for _, email := range []string{" OWNER@shopdesk.test ", "ops@shopdesk.test"} {
		_, err := svc.Register(ctx, RegisterShopInput{ShopName: "Sneaky", Email: email, Password: "Str0ng!Pass"})
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "expected %s to be refused, got %v", email, err)
	}
	require.Zero(t, secondaries.contexts, "no credential may be provisioned for an admin address")
	require.Empty(t, svc.ListAll(ctx))

	directory.err = errors.New("db down")
	_, err = svc.Register(ctx, RegisterShopInput{ShopName: "Stall", Email: "stall@shopdesk.test", Password: "Str0ng!Pass"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency), "got %v", err)

	directory.err = nil
	_, err = svc.Register(ctx, RegisterShopInput{ShopName: "Stall", Email: "stall@shopdesk.test", Password: "Str0ng!Pass"})
	require.NoError(t, err)
}

func TestApproveAndRejectAreUnconditional(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := newTestServiceAt(t, repo, newStubSecondaryFactory(), now)
	ctx := context.Background()

	// "suspended" stands in for a stored value this build does not know
	for _, start := range []enums.ShopStatus{enums.ShopStatusPending, enums.ShopStatusApproved, enums.ShopStatusRejected, enums.ShopStatusFrozen, "suspended"} {
		shop := seedShop(t, repo, "shop-"+start.String(), start, timePtr(now))

		approved, err := svc.Approve(ctx, shop.ID)
		require.NoError(t, err)
		require.Equal(t, enums.ShopStatusApproved, approved.Status)
		require.NotNil(t, approved.ApprovedAt)

		rejected, err := svc.Reject(ctx, shop.ID)
		require.NoError(t, err)
		require.Equal(t, enums.ShopStatusRejected, rejected.Status)

		stored, err := svc.Get(ctx, shop.ID)
		require.NoError(t, err)
		require.Equal(t, enums.ShopStatusRejected, stored.Status)
		require.NotNil(t, stored.ApprovedAt)
		require.NotNil(t, stored.RejectedAt)
	}
}

func TestToggleFreezeRoundTripRestoresApproved(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	svc := newTestService(t, repo, newStubSecondaryFactory())
	ctx := context.Background()

	for _, start := range []enums.ShopStatus{enums.ShopStatusPending, enums.ShopStatusApproved, enums.ShopStatusRejected, enums.ShopStatusFrozen} {
		shop := seedShop(t, repo, "freeze-"+start.String(), start, nil)

		frozen, err := svc.ToggleFreeze(ctx, shop.ID, true)
		require.NoError(t, err)
		require.Equal(t, enums.ShopStatusFrozen, frozen.Status)

		thawed, err := svc.ToggleFreeze(ctx, shop.ID, false)
		require.NoError(t, err)
		require.Equal(t, enums.ShopStatusApproved, thawed.Status, "start status %s", start)
		require.NotNil(t, thawed.LastStatusChangeAt)
	}
}

func TestMutationsOnMissingShopReturnNotFound(t *testing.T) {
	svc := newTestService(t, NewRepository(openTestDB(t)), newStubSecondaryFactory())
	_, err := svc.Approve(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCountsAggregatesStatuses(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	seedShop(t, repo, "a", enums.ShopStatusPending, nil)
	seedShop(t, repo, "b", enums.ShopStatusPending, nil)
	seedShop(t, repo, "c", enums.ShopStatusApproved, nil)
	seedShop(t, repo, "d", enums.ShopStatusFrozen, nil)
	svc := newTestService(t, repo, newStubSecondaryFactory())

	require.Equal(t, ShopCounts{Total: 4, Pending: 2, Approved: 1, Frozen: 1}, svc.Counts(context.Background()))
}

func newTestService(t *testing.T, repo shopRepository, secondaries *stubSecondaryFactory) Service {
	t.Helper()
	return newTestServiceAt(t, repo, secondaries, time.Now().UTC())
}

func newTestServiceAt(t *testing.T, repo shopRepository, secondaries *stubSecondaryFactory, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:           repo,
		Secondary:      secondaries.factory,
		PasswordConfig: config.PasswordConfig{MinLength: 8},
		Now:            func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedShop(t *testing.T, repo *Repository, name string, status enums.ShopStatus, createdAt *time.Time) *models.Shop {
	t.Helper()
	shop := &models.Shop{
		ID:        uuid.New(),
		ShopName:  name,
		Email:     fmt.Sprintf("%s@shopdesk.test", identity.NormalizeEmail(name)),
		Status:    status,
		CreatedAt: createdAt,
	}
	if err := repo.Create(context.Background(), shop); err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	return shop
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Shop{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func shopNames(shops []ShopDTO) []string {
	out := make([]string, 0, len(shops))
	for _, s := range shops {
		out = append(out, s.ShopName)
	}
	return out
}

func timePtr(v time.Time) *time.Time {
	return &v
}

type stubSecondaryFactory struct {
	contexts      int
	created       int
	deleted       int
	signOuts      int
	err           error
	signOutErr    error
	lastPrincipal *identity.Principal
}

func newStubSecondaryFactory() *stubSecondaryFactory {
	return &stubSecondaryFactory{}
}

func (f *stubSecondaryFactory) factory(string) SecondaryAuth {
	f.contexts++
	return &stubSecondary{parent: f}
}

type stubSecondary struct {
	parent *stubSecondaryFactory
}

func (s *stubSecondary) CreateCredential(_ context.Context, email, _ string) (*identity.Principal, *identity.Tokens, error) {
	if s.parent.err != nil {
		return nil, nil, s.parent.err
	}
	s.parent.created++
	p := &identity.Principal{ID: uuid.New(), Email: email}
	s.parent.lastPrincipal = p
	return p, &identity.Tokens{}, nil
}

func (s *stubSecondary) DeleteCredential(context.Context) error {
	s.parent.deleted++
	return nil
}

func (s *stubSecondary) SignOut(context.Context) error {
	s.parent.signOuts++
	return s.parent.signOutErr
}

type stubAdminDirectory struct {
	emails map[string]bool
	err    error
}

func (d *stubAdminDirectory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.emails[email], nil
}

type failingRepo struct {
	err error
}

func (r *failingRepo) ListAll(context.Context) ([]models.Shop, error) { return nil, r.err }
func (r *failingRepo) ListByStatus(context.Context, enums.ShopStatus) ([]models.Shop, error) {
	return nil, r.err
}
func (r *failingRepo) FindByID(context.Context, uuid.UUID) (*models.Shop, error) { return nil, r.err }
func (r *failingRepo) ExistsByEmail(context.Context, string) (bool, error)      { return false, r.err }
func (r *failingRepo) Create(context.Context, *models.Shop) error               { return r.err }
func (r *failingRepo) UpdateStatus(context.Context, uuid.UUID, enums.ShopStatus, string, time.Time) error {
	return r.err
}
