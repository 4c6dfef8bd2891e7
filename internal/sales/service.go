package sales

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service provides high-level sales management operations on a Storage backend.
type Service struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// ItemRequest is one requested line of a new sale. UnitPrice overrides the
// product's current price when set.
type ItemRequest struct {
	ProductID string
	Quantity  int
	UnitPrice *decimal.Decimal
}

// UpdateRequest carries the optional fields of a sale update.
type UpdateRequest struct {
	Status *Status
	Notes  *string
}

// NewService creates a new Service.
func NewService(storage Storage, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	return &Service{
		storage: storage,
		logger:  logger,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		newID: uuid.NewString,
	}
}

// CreateSale registers a pending sale for customerID on behalf of sellerID,
// reserving stock for every item. Either the sale, all its items and all
// reservations are committed together, or nothing is.
func (s *Service) CreateSale(ctx context.Context, customerID, sellerID string, items []ItemRequest, notes string) (*Sale, error) {
	if err := validateCreate(customerID, sellerID, items); err != nil {
		return nil, err
	}

	var saleID string
	err := s.storage.Execute(ctx, func(ctx context.Context, repos Repositories) error {
		customer, err := repos.Customers().FindByID(ctx, customerID)
		if err != nil {
			return err
		}

		now := s.now()
		sale := &Sale{
			ID:          s.newID(),
			CustomerID:  customer.ID,
			UserID:      sellerID,
			Status:      StatusPending,
			TotalAmount: decimal.Zero,
			Notes:       notes,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     1,
		}
		if err := repos.Sales().Create(ctx, sale); err != nil {
			return err
		}

		ledger := NewStockLedger(repos.Products(), s.now)
		total := decimal.Zero
		for _, req := range items {
			product, err := ledger.Reserve(ctx, req.ProductID, req.Quantity)
			if err != nil {
				return err
			}

			unitPrice := product.Price
			if req.UnitPrice != nil {
				unitPrice = *req.UnitPrice
			}

			item := &SaleItem{
				ID:         s.newID(),
				SaleID:     sale.ID,
				ProductID:  product.ID,
				Quantity:   req.Quantity,
				UnitPrice:  unitPrice,
				TotalPrice: LineTotal(req.Quantity, unitPrice),
			}
			if err := repos.Sales().CreateItem(ctx, item); err != nil {
				return err
			}
			total = total.Add(item.TotalPrice)
		}

		sale.TotalAmount = total
		if err := repos.Sales().Update(ctx, sale); err != nil {
			return err
		}
		saleID = sale.ID
		return nil
	})
	if err != nil {
		s.logFailure("failed to create sale", err,
			zap.String("customer_id", customerID),
			zap.String("user_id", sellerID),
			zap.Int("items", len(items)),
		)
		return nil, err
	}

	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("customer_id", sale.CustomerID),
		zap.String("user_id", sale.UserID),
		zap.String("total_amount", sale.TotalAmount.String()),
	)
	return sale, nil
}

// UpdateSale changes the status and/or notes of a sale. Cancelling a sale
// that is not already cancelled gives the stock of every item back in the
// same transaction as the status change.
func (s *Service) UpdateSale(ctx context.Context, id string, req UpdateRequest) (*Sale, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", *req.Status)
	}

	var from, to Status
	err := s.storage.Execute(ctx, func(ctx context.Context, repos Repositories) error {
		sale, err := repos.Sales().FindForUpdate(ctx, id)
		if err != nil {
			return err
		}

		from, to = sale.Status, sale.Status
		if req.Status != nil {
			to = *req.Status
		}
		if err := from.CanTransitionTo(to); err != nil {
			return err
		}

		if to == StatusCancelled && from != StatusCancelled {
			if err := s.releaseItems(ctx, repos, sale); err != nil {
				return err
			}
		}

		sale.Status = to
		if req.Notes != nil {
			sale.Notes = *req.Notes
		}
		sale.UpdatedAt = s.now()
		sale.Version++
		return repos.Sales().Update(ctx, sale)
	})
	if err != nil {
		s.logFailure("failed to update sale", err, zap.String("sale_id", id))
		return nil, err
	}

	s.logger.Info("sale updated",
		zap.String("sale_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return s.GetSale(ctx, id)
}

// UpdateSaleStatus is UpdateSale with a mandatory status.
func (s *Service) UpdateSaleStatus(ctx context.Context, id string, status Status, notes *string) (*Sale, error) {
	return s.UpdateSale(ctx, id, UpdateRequest{Status: &status, Notes: notes})
}

// RemoveSale deletes a pending sale with its items and restores their stock.
func (s *Service) RemoveSale(ctx context.Context, id string) error {
	err := s.storage.Execute(ctx, func(ctx context.Context, repos Repositories) error {
		sale, err := repos.Sales().FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != StatusPending {
			return &OperationError{Reason: "only pending sales can be deleted"}
		}

		if err := s.releaseItems(ctx, repos, sale); err != nil {
			return err
		}
		if err := repos.Sales().DeleteItems(ctx, sale.ID); err != nil {
			return err
		}
		return repos.Sales().Delete(ctx, sale.ID)
	})
	if err != nil {
		s.logFailure("failed to delete sale", err, zap.String("sale_id", id))
		return err
	}

	s.logger.Info("sale deleted", zap.String("sale_id", id))
	return nil
}

// GetSale reads a committed sale with its relations.
func (s *Service) GetSale(ctx context.Context, id string) (*Sale, error) {
	sale, err := s.storage.Sales().FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to read sale", zap.String("sale_id", id), zap.Error(err))
		}
		return nil, err
	}
	return sale, nil
}

// releaseItems gives back the stock of every item. A product that no longer
// exists aborts the transaction.
func (s *Service) releaseItems(ctx context.Context, repos Repositories, sale *Sale) error {
	ledger := NewStockLedger(repos.Products(), s.now)
	for _, item := range sale.Items {
		if _, err := ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return errors.WithMessagef(err, "release item %s of sale %s", item.ID, sale.ID)
		}
	}
	return nil
}

func (s *Service) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if IsBusinessError(err) {
		s.logger.Warn(msg, fields...)
		return
	}
	s.logger.Error(msg, fields...)
}

// IsBusinessError reports whether err is a rule violation the caller can
// fix, as opposed to a storage failure.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrInsufficientStock,
		ErrInvalidTransition,
		ErrInvalidOperation,
		ErrInvalidStatus,
		ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validateCreate(customerID, sellerID string, items []ItemRequest) error {
	if strings.TrimSpace(customerID) == "" {
		return errors.Wrap(ErrInvalidInput, "customer id is required")
	}
	if strings.TrimSpace(sellerID) == "" {
		return errors.Wrap(ErrInvalidInput, "seller id is required")
	}
	if len(items) == 0 {
		return errors.Wrap(ErrInvalidInput, "sale must have at least one item")
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return errors.Wrapf(ErrInvalidInput, "item %d: product id is required", i)
		}
		if item.Quantity < 1 {
			return errors.Wrapf(ErrInvalidInput, "item %d: quantity must be at least 1", i)
		}
		if item.UnitPrice != nil {
			if !item.UnitPrice.IsPositive() {
				return errors.Wrapf(ErrInvalidInput, "item %d: unit price must be positive", i)
			}
			if !item.UnitPrice.Equal(item.UnitPrice.Round(MoneyPlaces)) {
				return errors.Wrapf(ErrInvalidInput, "item %d: unit price has more than %d decimal places", i, MoneyPlaces)
			}
		}
	}
	return nil
}
