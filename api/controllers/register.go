package controllers

import (
	"net/http"

	"github.com/angelmondragon/shopdesk-backend/api/responses"
	"github.com/angelmondragon/shopdesk-backend/api/validators"
	"github.com/angelmondragon/shopdesk-backend/internal/shops"
	pkgerrors "github.com/angelmondragon/shopdesk-backend/pkg/errors"
	"github.com/angelmondragon/shopdesk-backend/pkg/logger"
)

type registerShopRequest struct {
	ShopName    string  `json:"shop_name" validate:"required,notblank,max=120"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,max=64"`
	Address     *string `json:"address,omitempty" validate:"omitempty,max=255"`
}

// RegisterShop is the public self-registration endpoint. New shops start pending.
func RegisterShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		var body registerShopRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shop, err := svc.Register(r.Context(), shops.RegisterShopInput{
			ShopName:    validators.SanitizeString(body.ShopName, maxNameLen),
			Email:       body.Email,
			Password:    body.Password,
			PhoneNumber: sanitizeOptional(body.PhoneNumber),
			Address:     sanitizeOptional(body.Address),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shop)
	}
}
