package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

const headerUser = "X-User"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errorStatus = []struct {
	err  error
	code int
	name string
}{
	{orders.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{orders.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{orders.ErrCartFull, http.StatusUnprocessableEntity, "cart_full"},
	{orders.ErrItemNotInCart, http.StatusNotFound, "item_not_in_cart"},
	{orders.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{orders.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{orders.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{orders.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{orders.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
	{orders.ErrInvalidOrderState, http.StatusConflict, "invalid_order_state"},
	{orders.ErrStockInconsistency, http.StatusConflict, "stock_inconsistency"},
	{orders.ErrAccountNotFound, http.StatusUnprocessableEntity, "account_not_found"},
	{orders.ErrNegativeBalance, http.StatusUnprocessableEntity, "negative_balance"},
}

// writeError maps domain errors to their status code. Anything else is a 500
// with a generic message; the detail goes to the log only.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeJSON(w, e.code, errorBody{Error: err.Error(), Code: e.name})
			return
		}
	}
	h.log().Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "operation_failed"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// user returns the caller from X-User, writing a 401 when it is absent.
func user(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.Header.Get(headerUser)
	if u == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + headerUser + " header"})
		return "", false
	}
	return u, true
}
