package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgAuth "github.com/angelmondragon/shopdesk-backend/pkg/auth"
	"github.com/angelmondragon/shopdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db"
	"github.com/angelmondragon/shopdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/angelmondragon/shopdesk-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// PrimaryName identifies the provider context the console signs in with.
	PrimaryName = "primary"

	invalidCredentialsMessage = "invalid credentials"
	duplicateAccountMessage   = "an account with this email already exists"
)

// Principal is the authenticated identity the provider reports.
type Principal struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// Tokens is the credential pair issued on sign-in or refresh.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessID     string    `json:"-"`
}

// Listener receives the new principal, or nil after sign-out.
type Listener func(*Principal)

type credentialRepository interface {
	Create(ctx context.Context, email, passwordHash string) (*models.Credential, error)
	FindByEmail(ctx context.Context, email string) (*models.Credential, error)
	UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ProviderParams bundles the dependencies of a provider context.
type ProviderParams struct {
	Credentials    credentialRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Now            func() time.Time
}

// Provider is one authentication context: it tracks a single signed-in
// principal and notifies listeners whenever that principal changes.
// Secondary contexts share the stores but never touch each other's state.
type Provider struct {
	name        string
	creds       credentialRepository
	sessions    sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	now         func() time.Time

	mu           sync.Mutex
	current      *Principal
	accessID     string
	listeners    map[int]Listener
	nextListener int
}

// NewProvider builds the primary provider context.
func NewProvider(params ProviderParams) (*Provider, error) {
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Provider{
		name:        PrimaryName,
		creds:       params.Credentials,
		sessions:    params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		now:         now,
		listeners:   map[int]Listener{},
	}, nil
}

// NewSecondary returns an isolated context sharing this provider's stores.
func (p *Provider) NewSecondary(name string) *Provider {
	return &Provider{
		name:        name,
		creds:       p.creds,
		sessions:    p.sessions,
		jwtCfg:      p.jwtCfg,
		passwordCfg: p.passwordCfg,
		now:         p.now,
		listeners:   map[int]Listener{},
	}
}

// Name reports which context this is.
func (p *Provider) Name() string {
	return p.name
}

// Current returns a copy of the signed-in principal, or nil.
func (p *Provider) Current() *Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clonePrincipal(p.current)
}

// OnChange registers fn for principal changes and returns its unsubscribe func.
func (p *Provider) OnChange(fn Listener) func() {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignIn verifies email/password and makes the credential this context's principal.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Principal, *Tokens, error) {
	credential, err := p.verify(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	return p.signInAs(ctx, credential)
}

// Authenticate checks email/password without touching this context's
// principal or sessions. Pair it with Establish once the caller admits the
// principal.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	credential, err := p.verify(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &Principal{ID: credential.ID, Email: credential.Email}, nil
}

// Establish signs this context in as a principal returned by Authenticate.
// The credential is reloaded so a principal disabled in between is refused.
func (p *Provider) Establish(ctx context.Context, principal *Principal) (*Principal, *Tokens, error) {
	if principal == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	credential, err := p.creds.FindByEmail(ctx, principal.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup credential")
	}
	if credential.ID != principal.ID || credential.Disabled {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return p.signInAs(ctx, credential)
}

func (p *Provider) verify(ctx context.Context, email, password string) (*models.Credential, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	credential, err := p.creds.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup credential")
	}

	valid, err := security.VerifyPassword(password, credential.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || credential.Disabled {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return credential, nil
}

func (p *Provider) signInAs(ctx context.Context, credential *models.Credential) (*Principal, *Tokens, error) {
	now := p.now()
	if err := p.creds.UpdateLastSignIn(ctx, credential.ID, now); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last sign in")
	}
	return p.establish(ctx, credential, now)
}

// CreateCredential provisions a new account and signs this context in as it.
func (p *Provider) CreateCredential(ctx context.Context, email, password string) (*Principal, *Tokens, error) {
	normalized := NormalizeEmail(email)
	if !strings.Contains(normalized, "@") {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	if password == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "password is required")
	}

	hash, err := security.HashPassword(password, p.passwordCfg)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	credential, err := p.creds.Create(ctx, normalized, hash)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, duplicateAccountMessage)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create credential")
	}

	return p.establish(ctx, credential, p.now())
}

// DeleteCredential removes the account this context is signed in as and
// signs the context out. It undoes a CreateCredential whose follow-up write
// failed.
func (p *Provider) DeleteCredential(ctx context.Context) error {
	p.mu.Lock()
	current := clonePrincipal(p.current)
	p.mu.Unlock()
	if current == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "no signed-in principal")
	}

	if err := p.creds.Delete(ctx, current.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete credential")
	}
	return p.SignOut(ctx)
}

// SignOut clears this context's principal and revokes its refresh session.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	accessID := p.accessID
	hadPrincipal := p.current != nil
	p.current = nil
	p.accessID = ""
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	if hadPrincipal {
		notify(listeners, nil)
	}
	if accessID == "" {
		return nil
	}
	if err := p.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// Refresh rotates a refresh token. The access token may be expired; its jti
// selects the session being rotated.
func (p *Provider) Refresh(ctx context.Context, accessToken, refreshToken string) (*Tokens, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(p.jwtCfg, accessToken)
	if err != nil || claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid access token")
	}

	newAccessID, newRefresh, err := p.sessions.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	now := p.now()
	signed, expiresAt, err := p.mint(now, claims.PrincipalID, claims.Email, newAccessID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.accessID == claims.ID {
		p.accessID = newAccessID
	}
	p.mu.Unlock()

	return &Tokens{
		AccessToken:  signed,
		RefreshToken: newRefresh,
		ExpiresAt:    expiresAt,
		AccessID:     newAccessID,
	}, nil
}

func (p *Provider) establish(ctx context.Context, credential *models.Credential, now time.Time) (*Principal, *Tokens, error) {
	accessID := session.NewAccessID()
	signed, expiresAt, err := p.mint(now, credential.ID, credential.Email, accessID)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := p.sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}

	principal := &Principal{ID: credential.ID, Email: credential.Email, SignedInAt: now}

	p.mu.Lock()
	previous := p.accessID
	p.current = principal
	p.accessID = accessID
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	if previous != "" {
		// The replaced session can no longer be refreshed; a failed delete only leaves it to expire.
		_ = p.sessions.Revoke(ctx, previous)
	}
	notify(listeners, principal)

	return clonePrincipal(principal), &Tokens{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		AccessID:     accessID,
	}, nil
}

func (p *Provider) mint(now time.Time, principalID uuid.UUID, email, accessID string) (string, time.Time, error) {
	signed, err := pkgAuth.MintAccessToken(p.jwtCfg, now, pkgAuth.AccessTokenPayload{
		PrincipalID: principalID,
		Email:       email,
		JTI:         accessID,
	})
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return signed, now.Add(time.Duration(p.jwtCfg.ExpirationMinutes) * time.Minute), nil
}

// snapshotListeners must be called with p.mu held.
func (p *Provider) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(p.listeners))
	for i := 0; i < p.nextListener; i++ {
		if fn, ok := p.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(listeners []Listener, principal *Principal) {
	for _, fn := range listeners {
		fn(clonePrincipal(principal))
	}
}

func clonePrincipal(principal *Principal) *Principal {
	if principal == nil {
		return nil
	}
	copied := *principal
	return &copied
}
