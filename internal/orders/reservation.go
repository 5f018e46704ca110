package orders

import (
	"context"
	"time"
)

// Lock reserves qty units of a product for an order inside tx. The product row
// is locked before the active reservations are summed, so the check and the
// insert are atomic against any other Lock on the same product.
func Lock(ctx context.Context, tx Tx, productID int64, orderID string, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return err
	}
	locked, err := tx.LockedQuantity(ctx, productID)
	if err != nil {
		return err
	}
	if avail := p.Quantity - locked; qty > avail {
		if avail < 0 {
			avail = 0
		}
		return &StockError{ProductID: productID, Requested: qty, Available: avail}
	}
	return tx.InsertReservation(ctx, Reservation{
		ProductID: productID,
		OrderID:   orderID,
		Qty:       qty,
		LockedAt:  now,
	})
}

// Unlock drops the reservation. A missing row is not an error; it returns
// false to say the stock was already released.
func Unlock(ctx context.Context, tx Tx, productID int64, orderID string) (bool, error) {
	return tx.DeleteReservation(ctx, productID, orderID)
}
