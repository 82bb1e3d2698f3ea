package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/shopdesk-backend/api/controllers"
	"github.com/angelmondragon/shopdesk-backend/api/middleware"
	"github.com/angelmondragon/shopdesk-backend/internal/gate"
	"github.com/angelmondragon/shopdesk-backend/internal/identity"
	"github.com/angelmondragon/shopdesk-backend/internal/shops"
	"github.com/angelmondragon/shopdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/shopdesk-backend/pkg/config"
	"github.com/angelmondragon/shopdesk-backend/pkg/db"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
	"github.com/angelmondragon/shopdesk-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Revoke(context.Context, string) error
}

// redisStore is the slice of the Redis client the HTTP layer needs.
type redisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

type tokenRefresher interface {
	Refresh(ctx context.Context, accessToken, refreshToken string) (*identity.Tokens, error)
}

type adminGate interface {
	middleware.AdminAuthorizer
	SignIn(ctx context.Context, email, password string) (*gate.SignInResult, error)
	SignOut(ctx context.Context) error
	Current() *gate.AdminPrincipal
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	sessionManager sessionManager,
	provider tokenRefresher,
	adminGate adminGate,
	shopService shops.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public/shops", func(r chi.Router) {
		r.With(
			middleware.AuthRateLimit(registerPolicy, redisClient, logg),
			middleware.Idempotency(redisClient, logg),
		).Post("/register", controllers.RegisterShop(shopService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(adminGate, logg))
			r.Post("/refresh", controllers.AuthRefresh(provider, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
				r.Use(middleware.RequireAdmin(adminGate, logg))
				r.Post("/logout", controllers.AuthLogout(adminGate, sessionManager, logg))
				r.Get("/session", controllers.AuthSession(adminGate, logg))
			})
		})

		r.Route("/shops", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
			r.Use(middleware.RequireAdmin(adminGate, logg))
			idempotent := r.With(middleware.Idempotency(redisClient, logg))

			r.Get("/", controllers.ListShops(shopService, logg))
			idempotent.Post("/", controllers.CreateShop(shopService, logg))
			r.Get("/pending", controllers.ListPendingShops(shopService, logg))
			r.Get("/counts", controllers.ShopCounts(shopService, logg))
			r.Get("/{shopId}", controllers.GetShop(shopService, logg))
			idempotent.Post("/{shopId}/approve", controllers.ApproveShop(shopService, logg))
			idempotent.Post("/{shopId}/reject", controllers.RejectShop(shopService, logg))
			r.Post("/{shopId}/freeze", controllers.FreezeShop(shopService, logg))
		})
	})

	return r
}
