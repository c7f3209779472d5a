package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/inventory"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	var (
		bad        *badRequestError
		invalid    *product.ValidationError
		item       *order.InvalidItemError
		status     *order.InvalidStatusError
		transition *order.InvalidTransitionError
		inUse      *product.InUseError
		short      *order.StockInsufficientError
	)
	switch {
	case errors.As(err, &bad), errors.As(err, &invalid), errors.As(err, &item),
		errors.As(err, &status), errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition), errors.As(err, &inUse),
		errors.Is(err, order.ErrConflict), errors.Is(err, product.ErrDuplicateSKU):
		return http.StatusConflict
	case errors.As(err, &short), errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs unexpected failures and writes the error body. Internal
// error details are not exposed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	httpmiddleware.WriteError(w, code, msg)
}
