package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrCartFull             = errors.New("cart is full")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrItemNotInCart        = errors.New("item not in cart")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInvalidOrderState    = errors.New("invalid order state")
	ErrStockInconsistency   = errors.New("stock inconsistency")
	ErrOrderNotFound        = errors.New("order not found")
	ErrNotOwner             = errors.New("order belongs to another buyer")
	ErrProductNotFound      = errors.New("product not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrNegativeBalance      = errors.New("balance would go negative")
	ErrOrderOperationFailed = errors.New("order operation failed")
)

type StockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type BalanceError struct {
	Username string
	Balance  int64
	Required int64
}

func (e *BalanceError) Shortfall() int64 { return e.Required - e.Balance }

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: have %d, need %d (short %d)", e.Username, e.Balance, e.Required, e.Shortfall())
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }

// InconsistencyError means a reserved quantity was no longer owned at payment time.
type InconsistencyError struct {
	ProductID int64
	Owned     int
	Requested int
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("stock inconsistency on product %d: owned %d, reserved %d", e.ProductID, e.Owned, e.Requested)
}

func (e *InconsistencyError) Unwrap() error { return ErrStockInconsistency }

type StateError struct {
	OrderID string
	Status  Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("order %s is %s, expected %s", e.OrderID, e.Status, StatusPending)
}

func (e *StateError) Unwrap() error { return ErrInvalidOrderState }

// OpError wraps a store-level failure. It matches both ErrOrderOperationFailed
// and the underlying cause.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("%s: %v: %v", e.Op, ErrOrderOperationFailed, e.Err) }

func (e *OpError) Unwrap() []error { return []error{ErrOrderOperationFailed, e.Err} }

var domainErrors = []error{
	ErrInvalidQuantity, ErrCartFull, ErrEmptyCart, ErrItemNotInCart,
	ErrInsufficientStock, ErrInsufficientBalance, ErrInvalidOrderState,
	ErrStockInconsistency, ErrOrderNotFound, ErrNotOwner,
	ErrProductNotFound, ErrAccountNotFound, ErrNegativeBalance,
}

// IsDomain reports whether err is one of the expected business outcomes, as
// opposed to a store failure.
func IsDomain(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// wrapOp leaves domain errors alone and marks everything else as a failed operation.
func wrapOp(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
