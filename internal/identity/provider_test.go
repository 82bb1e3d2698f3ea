package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/shopdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testPasswordConfig = config.PasswordConfig{
	ArgonMemoryKB:    64,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
	MinLength:        8,
}

var testJWTConfig = config.JWTConfig{
	Secret:                 "secret",
	Issuer:                 "shopdesk",
	ExpirationMinutes:      15,
	RefreshTokenTTLMinutes: 60,
}

func TestSignInNotifiesListeners(t *testing.T) {
	provider, _ := newTestProvider(t)
	ctx := context.Background()
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")

	var got []*Principal
	unsubscribe := provider.OnChange(func(p *Principal) { got = append(got, p) })
	defer unsubscribe()

	principal, tokens, err := provider.SignIn(ctx, " Owner@ShopDesk.test ", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if principal.Email != "owner@shopdesk.test" {
		t.Fatalf("expected normalized email, got %q", principal.Email)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", tokens)
	}
	if len(got) != 1 || got[0] == nil || got[0].ID != principal.ID {
		t.Fatalf("expected one notification with principal, got %+v", got)
	}
	if current := provider.Current(); current == nil || current.ID != principal.ID {
		t.Fatalf("expected current principal %s, got %+v", principal.ID, current)
	}

	if err := provider.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if len(got) != 2 || got[1] != nil {
		t.Fatalf("expected nil notification after sign out, got %+v", got)
	}
	if provider.Current() != nil {
		t.Fatal("expected no current principal after sign out")
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	provider, _ := newTestProvider(t)
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")

	cases := []struct{ email, password string }{
		{"owner@shopdesk.test", "wrong"},
		{"missing@shopdesk.test", "Str0ng!Pass"},
		{"", "Str0ng!Pass"},
	}
	for _, tc := range cases {
		_, _, err := provider.SignIn(context.Background(), tc.email, tc.password)
		if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %q, got %v", tc.email, err)
		}
	}
	if provider.Current() != nil {
		t.Fatal("failed sign in must not set a principal")
	}
}

func TestSecondaryContextIsIsolated(t *testing.T) {
	primary, sessions := newTestProvider(t)
	ctx := context.Background()
	seedCredential(t, primary, "owner@shopdesk.test", "Str0ng!Pass")

	admin, tokens, err := primary.SignIn(ctx, "owner@shopdesk.test", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	primaryNotified := 0
	defer primary.OnChange(func(*Principal) { primaryNotified++ })()

	secondary := primary.NewSecondary("provisioning")
	created, _, err := secondary.CreateCredential(ctx, "shop@shopdesk.test", "Sh0p!Secret")
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	if current := secondary.Current(); current == nil || current.ID != created.ID {
		t.Fatalf("expected secondary signed in as new account, got %+v", current)
	}
	if err := secondary.SignOut(ctx); err != nil {
		t.Fatalf("secondary sign out: %v", err)
	}

	if current := primary.Current(); current == nil || current.ID != admin.ID {
		t.Fatalf("primary principal changed: %+v", current)
	}
	if primaryNotified != 0 {
		t.Fatalf("primary listeners fired %d times", primaryNotified)
	}
	if !sessions.has(tokens.AccessID) {
		t.Fatal("primary session revoked by secondary sign out")
	}
}

func TestCreateCredentialDuplicateEmail(t *testing.T) {
	provider, _ := newTestProvider(t)
	seedCredential(t, provider, "shop@shopdesk.test", "Sh0p!Secret")

	_, _, err := provider.NewSecondary("again").CreateCredential(context.Background(), "SHOP@shopdesk.test", "Sh0p!Secret")
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	provider, sessions := newTestProvider(t)
	ctx := context.Background()
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")

	_, tokens, err := provider.SignIn(ctx, "owner@shopdesk.test", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	rotated, err := provider.Refresh(ctx, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.AccessID == tokens.AccessID {
		t.Fatal("expected a new access id")
	}
	if sessions.has(tokens.AccessID) {
		t.Fatal("old session should be gone after rotation")
	}

	if _, err := provider.Refresh(ctx, tokens.AccessToken, tokens.RefreshToken); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected reuse of rotated refresh token to fail, got %v", err)
	}

	if err := provider.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if sessions.has(rotated.AccessID) {
		t.Fatal("sign out should revoke the rotated session")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	provider, _ := newTestProvider(t)
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")

	calls := 0
	unsubscribe := provider.OnChange(func(*Principal) { calls++ })
	unsubscribe()
	unsubscribe()

	if _, _, err := provider.SignIn(context.Background(), "owner@shopdesk.test", "Str0ng!Pass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestListenerMaySignOutDuringNotification(t *testing.T) {
	provider, _ := newTestProvider(t)
	ctx := context.Background()
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")

	defer provider.OnChange(func(p *Principal) {
		if p != nil {
			_ = provider.SignOut(ctx)
		}
	})()

	if _, _, err := provider.SignIn(ctx, "owner@shopdesk.test", "Str0ng!Pass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if provider.Current() != nil {
		t.Fatal("expected listener-driven sign out to clear the principal")
	}
}

func TestAuthenticateDoesNotDisturbSignedInPrincipal(t *testing.T) {
	provider, sessions := newTestProvider(t)
	ctx := context.Background()
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")
	shop := seedCredential(t, provider, "shop@shopdesk.test", "Str0ng!Pass")

	owner, ownerTokens, err := provider.SignIn(ctx, "owner@shopdesk.test", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	notified := 0
	defer provider.OnChange(func(*Principal) { notified++ })()

	attempt, err := provider.Authenticate(ctx, "shop@shopdesk.test", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if attempt.ID != shop.ID {
		t.Fatalf("expected shop principal, got %+v", attempt)
	}
	if current := provider.Current(); current == nil || current.ID != owner.ID {
		t.Fatalf("expected owner to stay current, got %+v", current)
	}
	if !sessions.has(ownerTokens.AccessID) {
		t.Fatal("expected owner session to stay live")
	}
	if notified != 0 {
		t.Fatalf("expected no notifications, got %d", notified)
	}

	if _, err := provider.Authenticate(ctx, "shop@shopdesk.test", "wrong"); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestEstablishPromotesAuthenticatedPrincipal(t *testing.T) {
	provider, sessions := newTestProvider(t)
	ctx := context.Background()
	seedCredential(t, provider, "owner@shopdesk.test", "Str0ng!Pass")

	attempt, err := provider.Authenticate(ctx, "owner@shopdesk.test", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	principal, tokens, err := provider.Establish(ctx, attempt)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if principal.ID != attempt.ID || !sessions.has(tokens.AccessID) {
		t.Fatalf("expected established session for %s, got %+v", attempt.ID, principal)
	}

	forged := &Principal{ID: uuid.New(), Email: "owner@shopdesk.test"}
	if _, _, err := provider.Establish(ctx, forged); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected mismatched id to be refused, got %v", err)
	}
	if _, _, err := provider.Establish(ctx, nil); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected nil principal to be refused, got %v", err)
	}
	if current := provider.Current(); current == nil || current.ID != principal.ID {
		t.Fatalf("refused establish must keep the current principal, got %+v", current)
	}
}

func TestDeleteCredentialFreesEmail(t *testing.T) {
	provider, sessions := newTestProvider(t)
	ctx := context.Background()
	secondary := provider.NewSecondary("provisioning")

	_, tokens, err := secondary.CreateCredential(ctx, "shop@shopdesk.test", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	if err := secondary.DeleteCredential(ctx); err != nil {
		t.Fatalf("delete credential: %v", err)
	}
	if secondary.Current() != nil || sessions.has(tokens.AccessID) {
		t.Fatal("expected delete to sign the context out")
	}
	if _, _, err := secondary.CreateCredential(ctx, "shop@shopdesk.test", "Str0ng!Pass"); err != nil {
		t.Fatalf("expected email to be reusable, got %v", err)
	}

	if err := provider.DeleteCredential(ctx); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized without a principal, got %v", err)
	}
}

func newTestProvider(t *testing.T) (*Provider, *memorySessions) {
	t.Helper()
	conn := openTestDB(t)
	sessions := newMemorySessions()
	provider, err := NewProvider(ProviderParams{
		Credentials:    NewRepository(conn),
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
		PasswordConfig: testPasswordConfig,
		Now:            func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider, sessions
}

func seedCredential(t *testing.T, provider *Provider, email, password string) *Principal {
	t.Helper()
	seeder := provider.NewSecondary("seed")
	principal, _, err := seeder.CreateCredential(context.Background(), email, password)
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	if err := seeder.SignOut(context.Background()); err != nil {
		t.Fatalf("seed sign out: %v", err)
	}
	return principal
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Credential{}); err != nil {
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

type memorySessions struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{data: map[string]string{}}
}

func (m *memorySessions) Generate(_ context.Context, accessID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := "refresh-" + accessID
	m.data[accessID] = token
	return token, nil
}

func (m *memorySessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.data[oldAccessID]
	if !ok || stored != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(m.data, oldAccessID)
	newID := session.NewAccessID()
	m.data[newID] = "refresh-" + newID
	return newID, m.data[newID], nil
}

func (m *memorySessions) Revoke(_ context.Context, accessID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, accessID)
	return nil
}

func (m *memorySessions) has(accessID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[accessID]
	return ok
}
