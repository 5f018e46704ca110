package orders

import "context"

// Reservation rows for PgStore. Lock holds the product row (FOR UPDATE)
// before summing, which is what makes check-then-insert atomic.

func (t *pgTx) LockedQuantity(ctx context.Context, productID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM reservations WHERE product_id=$1`, productID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertReservation(ctx context.Context, r Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations(product_id, order_id, qty, locked_at)
		VALUES ($1, $2, $3, $4)`, r.ProductID, r.OrderID, r.Qty, r.LockedAt)
	return err
}

func (t *pgTx) DeleteReservation(ctx context.Context, productID int64, orderID string) (bool, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE product_id=$1 AND order_id=$2`, productID, orderID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) ListReservations(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT product_id, order_id, qty, locked_at FROM reservations
		WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ProductID, &r.OrderID, &r.Qty, &r.LockedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
