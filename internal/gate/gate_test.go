package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/google/uuid"
)

const configuredAdmin = "owner@shopdesk.test"

func TestSignInConfiguredAddressWithoutRecordIsAdmin(t *testing.T) {
	provider := newStubProvider()
	principal := provider.addAccount("OWNER@shopdesk.test", "pw")
	cache := &memoryCache{}
	g := newTestGate(t, provider, &stubAdmins{}, cache)

	result, err := g.SignIn(context.Background(), "owner@shopdesk.test", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !result.Principal.IsAdmin || result.Principal.Source != SourceConfiguredAddress {
		t.Fatalf("unexpected classification %+v", result.Principal)
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" {
		t.Fatal("expected provider tokens to be returned")
	}
	if current := g.Current(); current == nil || current.ID != principal.ID {
		t.Fatalf("expected in-memory admin %s, got %+v", principal.ID, current)
	}
	if cache.saved == nil || cache.saved.ID != principal.ID {
		t.Fatalf("expected persisted admin, got %+v", cache.saved)
	}
}

func TestSignInMergesAdministratorRecord(t *testing.T) {
	provider := newStubProvider()
	principal := provider.addAccount("ops@shopdesk.test", "pw")
	name := "Ops Team"
	since := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	admins := &stubAdmins{records: map[uuid.UUID]*models.Administrator{
		principal.ID: {PrincipalID: principal.ID, Email: "ops@shopdesk.test", DisplayName: &name, Role: "owner", CreatedAt: since},
	}}
	g := newTestGate(t, provider, admins, &memoryCache{})

	result, err := g.SignIn(context.Background(), "ops@shopdesk.test", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	got := result.Principal
	if got.Source != SourceAdministratorsRecord || got.Role != "owner" {
		t.Fatalf("expected record classification, got %+v", got)
	}
	if got.DisplayName == nil || *got.DisplayName != name {
		t.Fatalf("expected merged display name, got %v", got.DisplayName)
	}
	if got.AdminSince == nil || !got.AdminSince.Equal(since) {
		t.Fatalf("expected admin since %v, got %v", since, got.AdminSince)
	}
}

func TestSignInNonAdminIsRefusedWithoutSession(t *testing.T) {
	provider := newStubProvider()
	provider.addAccount("shop@shopdesk.test", "pw")
	cache := &memoryCache{}
	g := newTestGate(t, provider, &stubAdmins{}, cache)

	_, err := g.SignIn(context.Background(), "shop@shopdesk.test", "pw")
	if !errors.Is(err, ErrInvalidAdminCredentials) {
		t.Fatalf("expected invalid admin credentials, got %v", err)
	}
	if provider.current != nil || provider.established != 0 {
		t.Fatal("a refused principal must never hold a provider session")
	}
	if g.Current() != nil || cache.saved != nil {
		t.Fatal("non-admin must not be cached")
	}
}

func TestSignInNonAdminKeepsExistingAdminSession(t *testing.T) {
	provider := newStubProvider()
	admin := provider.addAccount(configuredAdmin, "pw")
	provider.addAccount("shop@shopdesk.test", "pw")
	cache := &memoryCache{}
	g := newTestGate(t, provider, &stubAdmins{}, cache)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := g.SignIn(context.Background(), configuredAdmin, "pw"); err != nil {
		t.Fatalf("admin sign in: %v", err)
	}
	if _, err := g.SignIn(context.Background(), "shop@shopdesk.test", "pw"); !errors.Is(err, ErrInvalidAdminCredentials) {
		t.Fatalf("expected invalid admin credentials, got %v", err)
	}

	if current := g.Current(); current == nil || current.ID != admin.ID {
		t.Fatalf("expected admin to stay signed in, got %+v", current)
	}
	if provider.current == nil || provider.current.ID != admin.ID {
		t.Fatalf("expected provider session to stay with the admin, got %+v", provider.current)
	}
	if cache.saved == nil || cache.saved.ID != admin.ID {
		t.Fatalf("expected cached admin to survive, got %+v", cache.saved)
	}
	if provider.signOuts != 0 {
		t.Fatalf("expected no sign out, got %d", provider.signOuts)
	}
}

func TestSignInProviderRejectionPropagates(t *testing.T) {
	provider := newStubProvider()
	g := newTestGate(t, provider, &stubAdmins{}, &memoryCache{})

	_, err := g.SignIn(context.Background(), configuredAdmin, "wrong")
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if errors.Is(err, ErrInvalidAdminCredentials) {
		t.Fatal("provider rejection must stay distinct from the admin rejection")
	}
}

func TestSignInLookupFailureLeavesSessionUnset(t *testing.T) {
	provider := newStubProvider()
	provider.addAccount(configuredAdmin, "pw")
	cache := &memoryCache{}
	g := newTestGate(t, provider, &stubAdmins{err: errors.New("db down")}, cache)

	_, err := g.SignIn(context.Background(), configuredAdmin, "pw")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if g.Current() != nil || cache.saved != nil {
		t.Fatal("gate state must stay unset after lookup failure")
	}
	if provider.signOuts != 0 {
		t.Fatal("lookup failure is not an admin rejection")
	}
}

func TestStartTrustsCachedConfiguredAdmin(t *testing.T) {
	provider := newStubProvider()
	cached := &AdminPrincipal{ID: uuid.New(), Email: "Owner@ShopDesk.test", IsAdmin: true, Source: SourceConfiguredAddress}
	g := newTestGate(t, provider, &stubAdmins{err: errors.New("must not be called")}, &memoryCache{saved: cached})

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	current := g.Current()
	if current == nil || current.ID != cached.ID || current.Source != SourceCache {
		t.Fatalf("expected trusted cached principal, got %+v", current)
	}
	if g.Subscribed() || len(provider.listeners) != 0 {
		t.Fatal("trusted start must not subscribe to provider changes")
	}
}

func TestStartWithForeignCacheSubscribes(t *testing.T) {
	provider := newStubProvider()
	cache := &memoryCache{saved: &AdminPrincipal{ID: uuid.New(), Email: "ops@shopdesk.test", IsAdmin: true}}
	g := newTestGate(t, provider, &stubAdmins{}, cache)

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if g.Current() != nil {
		t.Fatal("only the configured address is trusted from cache")
	}
	if cache.saved != nil {
		t.Fatal("expected stale cache entry to be cleared")
	}
	if !g.Subscribed() || len(provider.listeners) != 1 {
		t.Fatal("expected provider subscription")
	}

	g.Close()
	if g.Subscribed() || len(provider.listeners) != 0 {
		t.Fatal("expected close to unsubscribe")
	}
}

func TestProviderChangesDriveClassification(t *testing.T) {
	provider := newStubProvider()
	admin := provider.addAccount(configuredAdmin, "pw")
	provider.addAccount("shop@shopdesk.test", "pw")
	cache := &memoryCache{}
	g := newTestGate(t, provider, &stubAdmins{}, cache)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := provider.SignIn(context.Background(), configuredAdmin, "pw"); err != nil {
		t.Fatalf("provider sign in: %v", err)
	}
	if current := g.Current(); current == nil || current.ID != admin.ID {
		t.Fatalf("expected notification to classify admin, got %+v", current)
	}

	if err := provider.SignOut(context.Background()); err != nil {
		t.Fatalf("provider sign out: %v", err)
	}
	if g.Current() != nil || cache.saved != nil {
		t.Fatal("expected sign-out notification to clear memory and cache")
	}

	if _, _, err := provider.SignIn(context.Background(), "shop@shopdesk.test", "pw"); err != nil {
		t.Fatalf("provider sign in: %v", err)
	}
	if provider.current != nil {
		t.Fatal("expected non-admin notification to force sign out")
	}
}

func TestAuthorize(t *testing.T) {
	provider := newStubProvider()
	admin := provider.addAccount(configuredAdmin, "pw")
	g := newTestGate(t, provider, &stubAdmins{}, &memoryCache{})

	if _, err := g.Authorize(context.Background(), admin.ID, configuredAdmin); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized without session, got %v", err)
	}
	if _, err := g.SignIn(context.Background(), configuredAdmin, "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := g.Authorize(context.Background(), uuid.New(), "other@shopdesk.test"); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for another principal, got %v", err)
	}
	got, err := g.Authorize(context.Background(), admin.ID, configuredAdmin)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got.ID != admin.ID {
		t.Fatalf("unexpected principal %+v", got)
	}

	if err := g.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := g.Authorize(context.Background(), admin.ID, configuredAdmin); err == nil {
		t.Fatal("expected authorize to fail after sign out")
	}
}

func newTestGate(t *testing.T, provider *stubProvider, admins *stubAdmins, cache *memoryCache) *Gate {
	t.Helper()
	g, err := New(Params{
		Provider: provider,
		Admins:   admins,
		Cache:    cache,
		Admin:    config.AdminConfig{Email: configuredAdmin},
	})
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return g
}

type stubProvider struct {
	accounts  map[string]*identity.Principal
	passwords map[string]string
	current   *identity.Principal
	listeners map[int]identity.Listener
	next      int
	signOuts  int

	established int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		accounts:  map[string]*identity.Principal{},
		passwords: map[string]string{},
		listeners: map[int]identity.Listener{},
	}
}

func (s *stubProvider) addAccount(email, password string) *identity.Principal {
	key := identity.NormalizeEmail(email)
	p := &identity.Principal{ID: uuid.New(), Email: key}
	s.accounts[key] = p
	s.passwords[key] = password
	return p
}

func (s *stubProvider) SignIn(_ context.Context, email, password string) (*identity.Principal, *identity.Tokens, error) {
	key := identity.NormalizeEmail(email)
	p, ok := s.accounts[key]
	if !ok || s.passwords[key] != password {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	s.current = p
	s.emit(p)
	return p, &identity.Tokens{AccessToken: "access-" + p.ID.String(), RefreshToken: "refresh"}, nil
}

func (s *stubProvider) Authenticate(_ context.Context, email, password string) (*identity.Principal, error) {
	key := identity.NormalizeEmail(email)
	p, ok := s.accounts[key]
	if !ok || s.passwords[key] != password {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	copied := *p
	return &copied, nil
}

func (s *stubProvider) Establish(_ context.Context, principal *identity.Principal) (*identity.Principal, *identity.Tokens, error) {
	p, ok := s.accounts[principal.Email]
	if !ok || p.ID != principal.ID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	s.established++
	s.current = p
	s.emit(p)
	return p, &identity.Tokens{AccessToken: "access-" + p.ID.String(), RefreshToken: "refresh"}, nil
}

func (s *stubProvider) SignOut(context.Context) error {
	if s.current == nil {
		return nil
	}
	s.signOuts++
	s.current = nil
	s.emit(nil)
	return nil
}

func (s *stubProvider) OnChange(fn identity.Listener) func() {
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() { delete(s.listeners, id) }
}

func (s *stubProvider) emit(p *identity.Principal) {
	for _, fn := range s.listeners {
		fn(p)
	}
}

type stubAdmins struct {
	records map[uuid.UUID]*models.Administrator
	err     error
}

func (s *stubAdmins) FindByPrincipalID(_ context.Context, id uuid.UUID) (*models.Administrator, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records[id], nil
}

type memoryCache struct {
	saved *AdminPrincipal
}

func (m *memoryCache) Load(context.Context) (*AdminPrincipal, error) {
	return clonePrincipal(m.saved), nil
}

func (m *memoryCache) Save(_ context.Context, p *AdminPrincipal) error {
	m.saved = clonePrincipal(p)
	return nil
}

func (m *memoryCache) Clear(context.Context) error {
	m.saved = nil
	return nil
}
