package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres Store. Row locks (SELECT ... FOR UPDATE) taken
// inside a transaction serialize concurrent work on the same product,
// account or order.
type PgStore struct{ DB *pgxpool.Pool }

func (s *PgStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

const productCols = `id, seller, name, category, detail, price_cents, discount_percent, quantity`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p   Product
		cat string
	)
	err := row.Scan(&p.ID, &p.Seller, &p.Name, &cat, &p.Detail, &p.PriceCents, &p.DiscountPercent, &p.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	p.Category = Category(cat)
	return p, err
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (t *pgTx) LockProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) DecrementStock(ctx context.Context, id int64, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at = now()
		WHERE id=$1 AND quantity >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := t.GetProduct(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (t *pgTx) BalanceForUpdate(ctx context.Context, username string) (int64, error) {
	var b int64
	err := t.tx.QueryRow(ctx, `SELECT balance_cents FROM accounts WHERE username=$1 FOR UPDATE`, username).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return b, err
}

func (t *pgTx) AdjustBalance(ctx context.Context, username string, delta int64) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $2
		WHERE username=$1 AND balance_cents + $2 >= 0`, username, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var one int
	err = t.tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE username=$1`, username).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	return ErrNegativeBalance
}

func (t *pgTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, buyer, status, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Buyer, string(o.Status), o.TotalCents, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	for i, it := range o.Items {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, qty, unit_price_cents, seller)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, i, it.ProductID, it.Qty, it.UnitPriceCents, it.Seller)
		if err != nil {
			return err
		}
	}
	return nil
}

const orderCols = `id, buyer, status, total_cents, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o Order
		s string
	)
	err := row.Scan(&o.ID, &o.Buyer, &s, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	o.Status = Status(s)
	return o, err
}

func (t *pgTx) getOrder(ctx context.Context, q, id string) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, q, id))
	if err != nil {
		return Order{}, err
	}
	items, err := t.orderItems(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (Order, error) {
	return t.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id)
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (Order, error) {
	return t.getOrder(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) orderItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, product_id, qty, unit_price_cents, seller
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			oid string
			it  OrderItem
		)
		if err := rows.Scan(&oid, &it.ProductID, &it.Qty, &it.UnitPriceCents, &it.Seller); err != nil {
			return nil, err
		}
		out[oid] = append(out[oid], it)
	}
	return out, rows.Err()
}

func (t *pgTx) SetOrderStatus(ctx context.Context, id string, status Status, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) ListOrdersByBuyer(ctx context.Context, buyer string) ([]Order, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE buyer=$1 ORDER BY created_at DESC, id`, buyer)
	if err != nil {
		return nil, err
	}
	var (
		out []Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	items, err := t.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (t *pgTx) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]PendingOrder, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, buyer, created_at FROM orders
		WHERE status=$1 AND created_at < $2
		ORDER BY created_at LIMIT $3`, string(StatusPending), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingOrder
	for rows.Next() {
		var p PendingOrder
		if err := rows.Scan(&p.ID, &p.Buyer, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
