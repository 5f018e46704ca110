package orders

import "time"

type Account struct {
	Username     string
	BalanceCents int64
}

type Product struct {
	ID              int64    `json:"id"`
	Seller          string   `json:"seller"`
	Name            string   `json:"name"`
	Category        Category `json:"category"`
	Detail          string   `json:"detail,omitempty"` // author | best-before date | size
	PriceCents      int64    `json:"price_cents"`      // list price, before discount
	DiscountPercent int      `json:"discount_percent"`
	Quantity        int      `json:"quantity"` // owned stock
}

// UnitPrice is the discounted price a buyer pays for one unit right now.
func (p Product) UnitPrice() int64 { return p.Variant().UnitPrice() }

func (p Product) Describe() string { return p.Variant().Describe() }

type CartItem struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// OrderItem is frozen at order creation; later catalog changes never touch it.
type OrderItem struct {
	ProductID      int64  `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Seller         string `json:"seller"`
}

func (it OrderItem) Subtotal() int64 { return it.UnitPriceCents * int64(it.Qty) }

type Order struct {
	ID         string      `json:"id"`
	Buyer      string      `json:"buyer"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type Reservation struct {
	ProductID int64
	OrderID   string
	Qty       int
	LockedAt  time.Time
}

// PendingOrder is the slice of an order the expiry sweeper needs.
type PendingOrder struct {
	ID        string
	Buyer     string
	CreatedAt time.Time
}
