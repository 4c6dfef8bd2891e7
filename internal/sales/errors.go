package sales

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is the root of every lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrSaleNotFound is returned when a sale with the given ID is not found.
	ErrSaleNotFound = errors.Wrap(ErrNotFound, "sale")
	// ErrCustomerNotFound is returned when the referenced customer does not exist.
	ErrCustomerNotFound = errors.Wrap(ErrNotFound, "customer")
	// ErrProductNotFound is returned when the referenced product does not exist.
	ErrProductNotFound = errors.Wrap(ErrNotFound, "product")
	// ErrUserNotFound is returned when the referenced seller does not exist.
	ErrUserNotFound = errors.Wrap(ErrNotFound, "user")

	// Error para stock insuficiente
	ErrInsufficientStock = errors.New("insufficient stock")

	// Error para transiciones inválidas
	ErrInvalidTransition = errors.New("invalid status transition")

	// Error para estados inválidos
	ErrInvalidStatus = errors.New("invalid status value")

	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidInput     = errors.New("invalid input")

	// ErrTransactionFailure marks a storage-level abort. The whole operation
	// was rolled back and may be retried.
	ErrTransactionFailure = errors.New("transaction failure")

	// ErrEmptyID is returned when trying to store a record with an empty ID.
	ErrEmptyID = errors.New("empty ID")
)

// InsufficientStockError reports which product could not cover a reservation.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product: %s", e.ProductName)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// TransitionError is a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// OperationError is an operation refused because of the sale's current state.
type OperationError struct {
	Reason string
}

func (e *OperationError) Error() string {
	return e.Reason
}

func (e *OperationError) Is(target error) bool {
	return target == ErrInvalidOperation
}
