package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/shopdesk-backend/internal/gate"
	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/internal/shops"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
)

type stubShopService struct {
	all        []shops.ShopDTO
	pending    []shops.ShopDTO
	counts     shops.ShopCounts
	shop       *shops.ShopDTO
	err        error
	lastActor  shops.Actor
	lastCreate shops.CreateShopInput
	lastReg    shops.RegisterShopInput
	lastID     uuid.UUID
	lastFreeze *bool
	lastAction string
}

func (s *stubShopService) ListAll(context.Context) []shops.ShopDTO     { return s.all }
func (s *stubShopService) ListPending(context.Context) []shops.ShopDTO { return s.pending }
func (s *stubShopService) Counts(context.Context) shops.ShopCounts     { return s.counts }

func (s *stubShopService) Get(_ context.Context, id uuid.UUID) (*shops.ShopDTO, error) {
	s.lastID = id
	return s.shop, s.err
}

func (s *stubShopService) Create(_ context.Context, actor shops.Actor, input shops.CreateShopInput) (*shops.ShopDTO, error) {
	s.lastActor = actor
	s.lastCreate = input
	return s.shop, s.err
}

func (s *stubShopService) Register(_ context.Context, input shops.RegisterShopInput) (*shops.ShopDTO, error) {
	s.lastReg = input
	return s.shop, s.err
}

func (s *stubShopService) Approve(_ context.Context, id uuid.UUID) (*shops.ShopDTO, error) {
	s.lastID = id
	s.lastAction = "approve"
	return s.shop, s.err
}

func (s *stubShopService) Reject(_ context.Context, id uuid.UUID) (*shops.ShopDTO, error) {
	s.lastID = id
	s.lastAction = "reject"
	return s.shop, s.err
}

func (s *stubShopService) ToggleFreeze(_ context.Context, id uuid.UUID, freeze bool) (*shops.ShopDTO, error) {
	s.lastID = id
	s.lastFreeze = &freeze
	s.lastAction = "freeze"
	return s.shop, s.err
}

type stubGate struct {
	result     *gate.SignInResult
	signInErr  error
	signOutErr error
	current    *gate.AdminPrincipal
	signOuts   int
}

func (s *stubGate) SignIn(context.Context, string, string) (*gate.SignInResult, error) {
	return s.result, s.signInErr
}

func (s *stubGate) SignOut(context.Context) error {
	s.signOuts++
	s.current = nil
	return s.signOutErr
}

func (s *stubGate) Current() *gate.AdminPrincipal { return s.current }

type stubRefresher struct {
	tokens      *identity.Tokens
	err         error
	lastAccess  string
	lastRefresh string
}

func (s *stubRefresher) Refresh(_ context.Context, accessToken, refreshToken string) (*identity.Tokens, error) {
	s.lastAccess = accessToken
	s.lastRefresh = refreshToken
	return s.tokens, s.err
}

type stubRevoker struct {
	revoked []string
}

func (s *stubRevoker) Revoke(_ context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}

func withShopID(r *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(shopIDParam, id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func sampleShop(status enums.ShopStatus) *shops.ShopDTO {
	return &shops.ShopDTO{ID: uuid.New(), ShopName: "Corner Store", Email: "corner@shop.test", Status: status}
}

var errNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
