package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/shopdesk-backend/api/responses"
	"github.com/angelmondragon/shopdesk-backend/internal/gate"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
	"github.com/google/uuid"
)

// AdminAuthorizer resolves whether the token's principal is the console's current admin.
type AdminAuthorizer interface {
	Authorize(ctx context.Context, principalID uuid.UUID, email string) (*gate.AdminPrincipal, error)
}

// RequireAdmin rejects requests whose principal is not the signed-in admin.
func RequireAdmin(authorizer AdminAuthorizer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principalID, err := uuid.Parse(PrincipalIDFromContext(ctx))
			if err != nil {
				principalID = uuid.Nil
			}
			admin, err := authorizer.Authorize(ctx, principalID, EmailFromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAdmin(ctx, admin)))
		})
	}
}
