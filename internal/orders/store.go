package orders

import (
	"context"
	"time"
)

// Store opens transactions. Implementations must make concurrent transactions
// that touch the same product, account or order row serializable.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single store transaction. Reads ending in ForUpdate (and LockProduct)
// hold the row until Commit or Rollback. Rollback after Commit is a no-op.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// catalog
	GetProduct(ctx context.Context, id int64) (Product, error)
	LockProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	// DecrementStock subtracts qty unless the result would be negative, in
	// which case it returns false and leaves the row alone.
	DecrementStock(ctx context.Context, id int64, qty int) (bool, error)

	// reservations
	LockedQuantity(ctx context.Context, productID int64) (int, error)
	InsertReservation(ctx context.Context, r Reservation) error
	DeleteReservation(ctx context.Context, productID int64, orderID string) (bool, error)
	ListReservations(ctx context.Context, orderID string) ([]Reservation, error)

	// accounts
	BalanceForUpdate(ctx context.Context, username string) (int64, error)
	// AdjustBalance adds delta and returns ErrNegativeBalance if the result
	// would drop below zero.
	AdjustBalance(ctx context.Context, username string, delta int64) error

	// orders
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (Order, error)
	SetOrderStatus(ctx context.Context, id string, status Status, at time.Time) error
	ListOrdersByBuyer(ctx context.Context, buyer string) ([]Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]PendingOrder, error)
}

// readTx runs fn in a transaction that is always rolled back.
func readTx(ctx context.Context, s Store, op string, fn func(Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return wrapOp(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return wrapOp(op, fn(tx))
}
