package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/cart"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/go-chi/chi/v5"
)

// IdempotencyStore maps a buyer's Idempotency-Key to the order it created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, buyer, key string) (string, bool, error)
	Remember(ctx context.Context, buyer, key, orderID string) error
}

// StatusReader serves cached order statuses.
type StatusReader interface {
	Status(ctx context.Context, orderID string) (orders.Status, bool, error)
}

type Handler struct {
	Manager *orders.Manager
	Catalog *orders.StoreCatalog
	Carts   *cart.Sessions
	Idem    IdempotencyStore // optional
	Status  StatusReader     // optional
	Log     *slog.Logger
}

func (h *Handler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addCartItem)
	r.Put("/cart/items/{productID}", h.updateCartItem)
	r.Delete("/cart/items/{productID}", h.removeCartItem)
	r.Delete("/cart", h.clearCart)

	r.Post("/orders", h.checkout)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/pay", h.payOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)

	r.Post("/admin/orders/{id}/fail", h.failOrder)
}

type productView struct {
	orders.Product
	UnitPriceCents int64  `json:"unit_price_cents"`
	Description    string `json:"description"`
	Available      *int   `json:"available,omitempty"`
}

func viewProduct(p orders.Product) productView {
	return productView{Product: p, UnitPriceCents: p.UnitPrice(), Description: p.Describe()}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewProduct(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid product id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, avail, err := h.Catalog.Available(ctx, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v := viewProduct(p)
	v.Available = &avail
	writeJSON(w, http.StatusOK, v)
}

type cartView struct {
	Items      []orders.CartItem `json:"items"`
	TotalCents int64             `json:"total_cents"`
}

// respondCart renders c. Callers hold the buyer's session.
func (h *Handler) respondCart(ctx context.Context, c *cart.Cart) (cartView, error) {
	total, err := c.CalculateTotal(ctx)
	if err != nil {
		return cartView{}, err
	}
	items := c.Items()
	if items == nil {
		items = []orders.CartItem{}
	}
	return cartView{Items: items, TotalCents: total}, nil
}

func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, code int, fn func(ctx context.Context, c *cart.Cart) error) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var view cartView
	err := h.Carts.With(buyer, func(c *cart.Cart) error {
		if err := fn(ctx, c); err != nil {
			return err
		}
		var err error
		view, err = h.respondCart(ctx, c)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, code, view)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, http.StatusOK, func(context.Context, *cart.Cart) error { return nil })
}

type cartItemReq struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.withCart(w, r, http.StatusOK, func(ctx context.Context, c *cart.Cart) error {
		return c.AddItem(ctx, req.ProductID, req.Qty)
	})
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		badRequest(w, "invalid product id")
		return
	}
	var req struct {
		Qty int `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	h.withCart(w, r, http.StatusOK, func(ctx context.Context, c *cart.Cart) error {
		return c.UpdateQuantity(ctx, id, req.Qty)
	})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		badRequest(w, "invalid product id")
		return
	}
	h.withCart(w, r, http.StatusOK, func(_ context.Context, c *cart.Cart) error {
		c.RemoveItem(id)
		return nil
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, http.StatusOK, func(_ context.Context, c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

type checkoutResp struct {
	Order      orders.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

// checkout turns the buyer's cart into a PENDING order. It runs inside the
// buyer's cart session, so two requests with the same Idempotency-Key never
// both reach CreateOrder.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		resp checkoutResp
		code = http.StatusCreated
	)
	err := h.Carts.With(buyer, func(c *cart.Cart) error {
		if key != "" && h.Idem != nil {
			id, found, err := h.Idem.Lookup(ctx, buyer, key)
			if err != nil {
				h.log().Warn("idempotency lookup failed", "buyer", buyer, "err", err)
			}
			if found {
				o, err := h.Manager.GetOrder(ctx, id)
				if err != nil {
					return err
				}
				resp, code = checkoutResp{Order: o, Idempotent: true}, http.StatusOK
				return nil
			}
		}

		o, err := h.Manager.CreateOrder(ctx, buyer, c.Items())
		if err != nil {
			return err
		}
		if key != "" && h.Idem != nil {
			if err := h.Idem.Remember(ctx, buyer, key, o.ID); err != nil {
				h.log().Warn("idempotency remember failed", "buyer", buyer, "order_id", o.ID, "err", err)
			}
		}
		resp = checkoutResp{Order: o}
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, code, resp)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Manager.GetUserOrders(ctx, buyer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) ownOrder(ctx context.Context, orderID, buyer string) (orders.Order, error) {
	o, err := h.Manager.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.Buyer != buyer {
		return orders.Order{}, orders.ErrNotOwner
	}
	return o, nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.ownOrder(ctx, chi.URLParam(r, "id"), buyer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusResp struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
	Cached  bool          `json:"cached"`
}

// getOrderStatus answers from the status cache when it can and falls back to
// the store.
func (h *Handler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.ownOrder(ctx, orderID, buyer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Status != nil {
		s, found, err := h.Status.Status(ctx, orderID)
		if err != nil {
			h.log().Warn("status cache read failed", "order_id", orderID, "err", err)
		}
		if found {
			writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: s, Cached: true})
			return
		}
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: o.Status})
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.PayOrder(ctx, chi.URLParam(r, "id"), buyer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// a cart refilled after checkout belongs to the next order
	_ = h.Carts.With(buyer, func(c *cart.Cart) error {
		if sameLines(c.Items(), o.Items) {
			c.Clear()
		}
		return nil
	})
	writeJSON(w, http.StatusOK, o)
}

func sameLines(cartItems []orders.CartItem, orderItems []orders.OrderItem) bool {
	if len(cartItems) != len(orderItems) {
		return false
	}
	want := make(map[int64]int, len(orderItems))
	for _, it := range orderItems {
		want[it.ProductID] = it.Qty
	}
	for _, it := range cartItems {
		if q, ok := want[it.ProductID]; !ok || q != it.Qty {
			return false
		}
	}
	return true
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	buyer, ok := user(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.CancelOrder(ctx, chi.URLParam(r, "id"), buyer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) failOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid json")
		return
	}
	if req.Reason == "" {
		req.Reason = "failed by operator"
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.FailOrder(ctx, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
