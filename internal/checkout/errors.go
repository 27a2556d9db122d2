package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/lock"
	"github.com/noah-isme/storefront-checkout/internal/order"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

const upstreamMessage = "We couldn't reach a required service. Please try again."

var businessErrors = []struct {
	err    error
	code   string
	status int
}{
	{pricing.ErrEmptyCart, "CART_EMPTY", http.StatusUnprocessableEntity},
	{ErrSessionNotFound, "SESSION_NOT_FOUND", http.StatusNotFound},
	{ErrOrderNotFound, "ORDER_NOT_FOUND", http.StatusNotFound},
	{cart.ErrOutOfSync, "CART_OUT_OF_SYNC", http.StatusConflict},
	{ErrLineNotFound, "ITEM_NOT_FOUND", http.StatusNotFound},
	{ErrInvalidQuantity, "INVALID_QUANTITY", http.StatusUnprocessableEntity},
	{ErrInvalidCoinCount, "INVALID_COINS", http.StatusUnprocessableEntity},
	{ErrCoinsDoNotCover, "COINS_DO_NOT_COVER", http.StatusUnprocessableEntity},
	{ErrUnknownMethod, "UNKNOWN_PAYMENT_METHOD", http.StatusUnprocessableEntity},
	{coupon.ErrCodeRequired, "COUPON_REQUIRED", http.StatusUnprocessableEntity},
	{coupon.ErrInvalidCode, "INVALID_COUPON", http.StatusUnprocessableEntity},
	{settlement.ErrCODNotAllowed, "COD_NOT_ALLOWED", http.StatusUnprocessableEntity},
	{settlement.ErrPaymentMethodRequired, "PAYMENT_METHOD_REQUIRED", http.StatusUnprocessableEntity},
	{ErrSuperseded, "SUPERSEDED", http.StatusConflict},
	{lock.ErrNotAcquired, "SESSION_BUSY", http.StatusConflict},
}

// toAppError maps domain errors to API errors. Anything unrecognised is a
// collaborator failure and gets the generic retry message.
func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var addrErr *order.ValidationError
	if errors.As(err, &addrErr) {
		return common.NewAppError("INVALID_ADDRESS", "please correct the highlighted address fields", http.StatusUnprocessableEntity, err).
			WithDetails(addrErr.Fields)
	}
	for _, be := range businessErrors {
		if errors.Is(err, be.err) {
			return common.NewAppError(be.code, be.err.Error(), be.status, err)
		}
	}
	return common.NewAppError("UPSTREAM_FAILURE", upstreamMessage, http.StatusBadGateway, err)
}
