package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
	"github.com/angelmondragon/shopdesk-backend/pkg/metrics"
	"github.com/google/uuid"
)

// ErrInvalidAdminCredentials is returned when a valid provider login is not an admin.
var ErrInvalidAdminCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin credentials")

type identityProvider interface {
	Authenticate(ctx context.Context, email, password string) (*identity.Principal, error)
	Establish(ctx context.Context, principal *identity.Principal) (*identity.Principal, *identity.Tokens, error)
	SignOut(ctx context.Context) error
	OnChange(fn identity.Listener) func()
}

type adminLookup interface {
	FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*models.Administrator, error)
}

type signInRecorder interface {
	IncSignIn(outcome string)
}

// Params bundles the gate's collaborators.
type Params struct {
	Provider identityProvider
	Admins   adminLookup
	Cache    PrincipalCache
	Admin    config.AdminConfig
	Logger   *logger.Logger
	Metrics  signInRecorder
}

// Gate owns the console's admin session: it classifies provider principals
// and keeps the admin principal in memory and in the persistent cache.
type Gate struct {
	provider identityProvider
	admins   adminLookup
	cache    PrincipalCache
	admin    config.AdminConfig
	logg     *logger.Logger
	metrics  signInRecorder

	mu          sync.RWMutex
	current     *AdminPrincipal
	unsubscribe func()
}

// New builds a gate. Call Start once before serving requests.
func New(params Params) (*Gate, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if params.Admins == nil {
		return nil, fmt.Errorf("administrators lookup is required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("principal cache is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	recorder := params.Metrics
	if recorder == nil {
		recorder = (*metrics.ConsoleMetrics)(nil)
	}
	return &Gate{
		provider: params.Provider,
		admins:   params.Admins,
		cache:    params.Cache,
		admin:    params.Admin,
		logg:     logg,
		metrics:  recorder,
	}, nil
}

// Start restores the session. A cached principal whose email is the configured
// admin address is trusted as-is and no provider subscription is made;
// otherwise the gate follows provider principal changes.
func (g *Gate) Start(ctx context.Context) error {
	cached, err := g.cache.Load(ctx)
	if err != nil {
		g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "ignoring unreadable cached principal")
		cached = nil
	}

	if cached != nil && g.admin.MatchesEmail(cached.Email) {
		cached.IsAdmin = true
		cached.Source = SourceCache
		g.setCurrent(cached)
		g.logg.Info(g.logg.WithPrincipalID(ctx, cached.ID.String()), "trusted cached admin principal")
		return nil
	}
	if cached != nil {
		if err := g.cache.Clear(ctx); err != nil {
			g.logg.Error(ctx, "failed to clear stale cached principal", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubscribe == nil {
		g.unsubscribe = g.provider.OnChange(g.onPrincipalChanged)
	}
	return nil
}

// Subscribed reports whether the gate follows provider changes.
func (g *Gate) Subscribed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.unsubscribe != nil
}

// Close tears down the provider subscription.
func (g *Gate) Close() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// SignIn authenticates with the provider and admits only admin principals.
// The attempt is classified before the provider session changes, so a
// rejected login never holds a session and never displaces the signed-in admin.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	principal, err := g.provider.Authenticate(ctx, email, password)
	if err != nil {
		g.metrics.IncSignIn(metrics.SignInOutcomeRejected)
		return nil, err
	}

	admin, err := g.classify(ctx, principal)
	if err != nil {
		g.metrics.IncSignIn(metrics.SignInOutcomeError)
		return nil, err
	}
	if admin == nil {
		g.metrics.IncSignIn(metrics.SignInOutcomeRejected)
		g.logg.Warn(g.logg.WithPrincipalID(ctx, principal.ID.String()), "non-admin sign in refused")
		return nil, ErrInvalidAdminCredentials
	}

	established, tokens, err := g.provider.Establish(ctx, principal)
	if err != nil {
		g.metrics.IncSignIn(metrics.SignInOutcomeError)
		return nil, err
	}
	admin.ID = established.ID
	admin.Email = established.Email

	g.remember(ctx, admin)
	g.metrics.IncSignIn(metrics.SignInOutcomeAdmin)
	g.logg.Info(g.logg.WithFields(ctx, map[string]any{
		"principal_id": admin.ID.String(),
		"source":       string(admin.Source),
	}), "admin signed in")

	return &SignInResult{Principal: clonePrincipal(admin), Tokens: tokens}, nil
}

// SignOut ends the provider session and clears both caches.
func (g *Gate) SignOut(ctx context.Context) error {
	g.forget(ctx)
	return g.provider.SignOut(ctx)
}

// Current returns the admin principal, or nil.
func (g *Gate) Current() *AdminPrincipal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return clonePrincipal(g.current)
}

// Authorize checks that a token's principal is the gate's admin.
func (g *Gate) Authorize(ctx context.Context, principalID uuid.UUID, email string) (*AdminPrincipal, error) {
	current := g.Current()
	if current == nil || !current.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no admin session")
	}
	if current.ID != principalID {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{
			"principal_id": principalID.String(),
			"email":        email,
		}), "token principal is not the signed-in admin")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "principal is not an admin")
	}
	return current, nil
}

// classify returns nil, nil for a principal that is not an admin.
func (g *Gate) classify(ctx context.Context, principal *identity.Principal) (*AdminPrincipal, error) {
	record, err := g.admins.FindByPrincipalID(ctx, principal.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup administrator")
	}
	if record != nil {
		return fromRecord(principal, record), nil
	}
	if g.admin.MatchesEmail(principal.Email) {
		return fromConfiguredAddress(principal), nil
	}
	return nil, nil
}

func (g *Gate) onPrincipalChanged(principal *identity.Principal) {
	ctx := context.Background()
	if principal == nil {
		g.forget(ctx)
		return
	}

	ctx = g.logg.WithPrincipalID(ctx, principal.ID.String())
	admin, err := g.classify(ctx, principal)
	if err != nil {
		g.logg.Error(ctx, "failed to classify principal", err)
		return
	}
	if admin == nil {
		g.reject(ctx)
		return
	}
	g.remember(ctx, admin)
}

func (g *Gate) reject(ctx context.Context) {
	g.forget(ctx)
	if err := g.provider.SignOut(ctx); err != nil {
		g.logg.Error(ctx, "failed to sign out non-admin principal", err)
	}
}

func (g *Gate) remember(ctx context.Context, admin *AdminPrincipal) {
	g.setCurrent(admin)
	if err := g.cache.Save(ctx, admin); err != nil {
		g.logg.Error(ctx, "failed to persist admin principal", err)
	}
}

func (g *Gate) forget(ctx context.Context) {
	g.setCurrent(nil)
	if err := g.cache.Clear(ctx); err != nil {
		g.logg.Error(ctx, "failed to clear cached principal", err)
	}
}

func (g *Gate) setCurrent(admin *AdminPrincipal) {
	g.mu.Lock()
	g.current = clonePrincipal(admin)
	g.mu.Unlock()
}
