package sales

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// StockLedger moves product stock inside the caller's transaction. Changes
// become visible only when that transaction commits.
type StockLedger struct {
	products ProductRepository
	now      func() time.Time
}

// NewStockLedger binds a ledger to the product repository of a transaction.
func NewStockLedger(products ProductRepository, now func() time.Time) *StockLedger {
	if now == nil {
		now = time.Now
	}
	return &StockLedger{products: products, now: now}
}

// Reserve takes quantity units of the product, failing with an
// InsufficientStockError when stock cannot cover it.
func (l *StockLedger) Reserve(ctx context.Context, productID string, quantity int) (*Product, error) {
	if quantity <= 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "reserve quantity must be positive, got %d", quantity)
	}
	return l.change(ctx, productID, -quantity)
}

// Release gives quantity units back. There is no upper bound: whatever was
// taken is restored even if the product was edited meanwhile.
func (l *StockLedger) Release(ctx context.Context, productID string, quantity int) (*Product, error) {
	if quantity <= 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "release quantity must be positive, got %d", quantity)
	}
	return l.change(ctx, productID, quantity)
}

func (l *StockLedger) change(ctx context.Context, productID string, amount int) (*Product, error) {
	product, err := l.products.FindForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock+amount < 0 {
		return nil, &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   -amount,
			Available:   product.Stock,
		}
	}

	product.Stock += amount
	product.UpdatedAt = l.now().UTC()
	if err := l.products.Save(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}
