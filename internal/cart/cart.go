// Package cart holds a buyer's pending selection before checkout. A cart only
// checks stock availability; reserving stock is the order manager's job.
package cart

import (
	"context"
	"fmt"
	"math"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

const DefaultMaxLines = 10

// Catalog returns a product with its available stock (owned minus reserved).
type Catalog interface {
	Available(ctx context.Context, productID int64) (orders.Product, int, error)
}

// Cart is owned by a single session and is not safe for concurrent use.
type Cart struct {
	catalog  Catalog
	maxLines int
	qty      map[int64]int
	order    []int64 // insertion order of product ids
}

func New(catalog Catalog, maxLines int) *Cart {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Cart{catalog: catalog, maxLines: maxLines, qty: map[int64]int{}}
}

// AddItem merges qty into the product's line, creating it if needed. The
// cumulative quantity must fit in the product's available stock.
func (c *Cart) AddItem(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", orders.ErrInvalidQuantity, qty)
	}
	existing, ok := c.qty[productID]
	if !ok && len(c.order) >= c.maxLines {
		return fmt.Errorf("%w: at most %d products", orders.ErrCartFull, c.maxLines)
	}
	if err := c.checkStock(ctx, productID, existing, qty); err != nil {
		return err
	}
	if !ok {
		c.order = append(c.order, productID)
	}
	c.qty[productID] = existing + qty
	return nil
}

// RemoveItem reports whether a line was present.
func (c *Cart) RemoveItem(productID int64) bool {
	if _, ok := c.qty[productID]; !ok {
		return false
	}
	delete(c.qty, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// UpdateQuantity replaces a line's quantity. Use RemoveItem to drop a line.
func (c *Cart) UpdateQuantity(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", orders.ErrInvalidQuantity, qty)
	}
	if _, ok := c.qty[productID]; !ok {
		return fmt.Errorf("%w: product %d", orders.ErrItemNotInCart, productID)
	}
	if err := c.checkStock(ctx, productID, 0, qty); err != nil {
		return err
	}
	c.qty[productID] = qty
	return nil
}

// checkStock compares add against the room left after held, so a huge add
// can never wrap the line quantity.
func (c *Cart) checkStock(ctx context.Context, productID int64, held, add int) error {
	_, avail, err := c.catalog.Available(ctx, productID)
	if err != nil {
		return err
	}
	if add > avail-held {
		want := held + add
		if want < held {
			want = math.MaxInt
		}
		return &orders.StockError{ProductID: productID, Requested: want, Available: avail}
	}
	return nil
}

// CalculateTotal prices the cart at current catalog prices. It is an
// estimate; the order total is frozen separately at checkout.
func (c *Cart) CalculateTotal(ctx context.Context) (int64, error) {
	var total int64
	for _, id := range c.order {
		p, _, err := c.catalog.Available(ctx, id)
		if err != nil {
			return 0, err
		}
		total += p.UnitPrice() * int64(c.qty[id])
	}
	return total, nil
}

func (c *Cart) Clear() {
	c.qty = map[int64]int{}
	c.order = nil
}

// Items returns the lines in the order they were first added.
func (c *Cart) Items() []orders.CartItem {
	out := make([]orders.CartItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, orders.CartItem{ProductID: id, Qty: c.qty[id]})
	}
	return out
}

func (c *Cart) Quantity(productID int64) int { return c.qty[productID] }

func (c *Cart) Len() int { return len(c.order) }

func (c *Cart) IsEmpty() bool { return len(c.order) == 0 }
