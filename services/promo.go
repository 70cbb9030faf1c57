package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/outlivion/portal/core"
)

// PromoValidator checks promo codes against the backend. Every rejection
// (unknown, expired, already used) is the same ErrPromoInvalid.
type PromoValidator struct {
	backend core.Backend
	logger  zerolog.Logger
}

var _ core.PromoService = (*PromoValidator)(nil)

func NewPromoValidator(backend core.Backend, logger zerolog.Logger) *PromoValidator {
	return &PromoValidator{backend: backend, logger: logger}
}

func (v *PromoValidator) Validate(ctx context.Context, code string) (core.Discount, error) {
	code = core.NormalizePromoCode(code)
	if code == "" {
		return core.Discount{}, core.ErrPromoCodeRequired
	}

	var resp core.PromoResponse
	err := v.backend.Post(ctx, core.EndpointApplyPromo.Path, map[string]string{"code": code}, &resp)
	if err != nil {
		if errors.Is(err, core.ErrRequestRejected) {
			return core.Discount{}, fmt.Errorf("%w: %w", core.ErrPromoInvalid, err)
		}
		return core.Discount{}, err
	}
	if !resp.Valid {
		return core.Discount{}, fmt.Errorf("%w: %s", core.ErrPromoInvalid, code)
	}

	discount, err := core.NewDiscount(resp.DiscountType, resp.DiscountValue)
	if err != nil {
		return core.Discount{}, fmt.Errorf("%w: %w", core.ErrPromoInvalid, err)
	}

	v.logger.Debug().
		Str("code", code).
		Str("type", string(discount.Type)).
		Int64("value", discount.Value).
		Msg("Promo code validated")
	return discount, nil
}

// Apply validates the intent's current code and attaches the discount if
// the code has not changed in the meantime. A failed validation drops any
// discount held for that code.
func (v *PromoValidator) Apply(ctx context.Context, intent *core.PurchaseIntent) (core.Discount, error) {
	code := intent.PromoCode()

	discount, err := v.Validate(ctx, code)
	if err != nil {
		intent.ClearDiscount(code)
		return core.Discount{}, err
	}
	if err := intent.ApplyDiscount(code, discount); err != nil {
		return core.Discount{}, err
	}
	return discount, nil
}
