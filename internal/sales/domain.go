package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known sale states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo checks the sale state machine. Staying in the same state is
// always allowed so that notes can be edited. A cancelled sale has released
// its stock and cannot leave that state.
func (s Status) CanTransitionTo(next Status) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	if s == next {
		return nil
	}
	switch {
	case s == StatusPending && next == StatusCompleted,
		s == StatusPending && next == StatusCancelled,
		s == StatusCompleted && next == StatusCancelled,
		s == StatusCompleted && next == StatusPending:
		return nil
	}
	return &TransitionError{From: s, To: next}
}

// Product is the stock-carrying catalog entry. Stock must never go negative.
type Product struct {
	ID        string              `json:"id" db:"id"`
	Name      string              `json:"name" db:"name"`
	Price     decimal.Decimal     `json:"price" db:"price"`
	Cost      decimal.NullDecimal `json:"cost" db:"cost"`
	Stock     int                 `json:"stock" db:"stock"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}

// UnitCost returns the product cost, or zero when it is unknown.
func (p *Product) UnitCost() decimal.Decimal {
	if p == nil || !p.Cost.Valid {
		return decimal.Zero
	}
	return p.Cost.Decimal
}

// Customer is the buyer a sale is recorded against.
type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// User is the seller who registered a sale.
type User struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Sale represents a sales transaction in the system.
type Sale struct {
	ID          string          `json:"id" db:"id"`
	CustomerID  string          `json:"customer_id" db:"customer_id"`
	Customer    *Customer       `json:"customer,omitempty" db:"-"`
	UserID      string          `json:"user_id" db:"user_id"`
	User        *User           `json:"user,omitempty" db:"-"`
	Status      Status          `json:"status" db:"status"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	Notes       string          `json:"notes,omitempty" db:"notes"`
	Items       []SaleItem      `json:"items" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Version     int             `json:"version" db:"version"`
}

// ItemsTotal sums the line totals of every item.
func (s *Sale) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// Quantity returns the number of units across all items.
func (s *Sale) Quantity() int {
	n := 0
	for _, item := range s.Items {
		n += item.Quantity
	}
	return n
}

// SaleItem is a line of a sale. Items only exist as part of their sale.
type SaleItem struct {
	ID         string          `json:"id" db:"id"`
	SaleID     string          `json:"sale_id" db:"sale_id"`
	ProductID  string          `json:"product_id" db:"product_id"`
	Product    *Product        `json:"product,omitempty" db:"-"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
}

// MoneyPlaces is the scale amounts are stored with. Prices at this scale keep
// line totals and sale totals exact.
const MoneyPlaces = 2

// LineTotal is quantity times unit price.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
