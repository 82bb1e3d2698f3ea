package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopdesk-backend/api/middleware"
	"github.com/angelmondragon/shopdesk-backend/api/responses"
	"github.com/angelmondragon/shopdesk-backend/api/validators"
	"github.com/angelmondragon/shopdesk-backend/internal/shops"
	"github.com/angelmondragon/shopdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
)

const (
	shopIDParam  = "shopId"
	maxNameLen   = 120
	maxFieldLen  = 255
	statusFilter = "status"
)

type createShopRequest struct {
	ShopName    string  `json:"shop_name" validate:"required,notblank,max=120"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,max=64"`
	Address     *string `json:"address,omitempty" validate:"omitempty,max=255"`
	Status      string  `json:"status,omitempty"`
}

type freezeRequest struct {
	Freeze *bool `json:"freeze" validate:"required"`
}

// ListShops returns every shop newest first, optionally filtered by ?status=.
func ListShops(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		status, err := validators.ParseStatusQuery(r, statusFilter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := svc.ListAll(r.Context())
		if status != nil {
			items = filterByStatus(items, *status)
		}
		responses.WriteSuccess(w, items)
	}
}

func ListPendingShops(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.ListPending(r.Context()))
	}
}

func ShopCounts(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Counts(r.Context()))
	}
}

func GetShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, shopIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shop, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shop)
	}
}

// CreateShop provisions a shop account on behalf of the signed-in admin.
func CreateShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		var body createShopRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shop, err := svc.Create(r.Context(), actor, shops.CreateShopInput{
			ShopName:    validators.SanitizeString(body.ShopName, maxNameLen),
			Email:       body.Email,
			Password:    body.Password,
			PhoneNumber: sanitizeOptional(body.PhoneNumber),
			Address:     sanitizeOptional(body.Address),
			Status:      body.Status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shop)
	}
}

func ApproveShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return shopTransition(svc, logg, func(ctx context.Context, id uuid.UUID) (*shops.ShopDTO, error) {
		return svc.Approve(ctx, id)
	})
}

func RejectShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return shopTransition(svc, logg, func(ctx context.Context, id uuid.UUID) (*shops.ShopDTO, error) {
		return svc.Reject(ctx, id)
	})
}

// FreezeShop freezes or unfreezes a shop according to the request body.
func FreezeShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, shopIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body freezeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shop, err := svc.ToggleFreeze(r.Context(), id, *body.Freeze)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shop)
	}
}

func shopTransition(svc shops.Service, logg *logger.Logger, apply func(ctx context.Context, id uuid.UUID) (*shops.ShopDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		id, err := validators.ParseUUIDParam(r, shopIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shop, err := apply(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shop)
	}
}

func actorFromRequest(r *http.Request) (shops.Actor, error) {
	if admin := middleware.AdminFromContext(r.Context()); admin != nil {
		return shops.Actor{ID: admin.ID, Email: admin.Email}, nil
	}
	id, err := uuid.Parse(middleware.PrincipalIDFromContext(r.Context()))
	if err != nil {
		return shops.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "no admin session")
	}
	return shops.Actor{ID: id, Email: middleware.EmailFromContext(r.Context())}, nil
}

func filterByStatus(items []shops.ShopDTO, status enums.ShopStatus) []shops.ShopDTO {
	out := make([]shops.ShopDTO, 0, len(items))
	for _, item := range items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out
}

func sanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := validators.SanitizeString(*value, maxFieldLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
