package sales

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultTake = 10
	maxTake     = 50
)

// ListQuery is a page request over sales. StartDate and EndDate are calendar
// days; EndDate covers its whole day.
type ListQuery struct {
	Status     Status
	CustomerID string
	UserID     string
	ProductID  string
	StartDate  *time.Time
	EndDate    *time.Time
	Search     string
	Sort       SortField
	Order      SortOrder
	Page       int
	Take       int
}

// PageMeta describes where a page sits in the full result.
type PageMeta struct {
	Page            int  `json:"page"`
	Take            int  `json:"take"`
	ItemCount       int  `json:"item_count"`
	PageCount       int  `json:"page_count"`
	HasPreviousPage bool `json:"has_previous_page"`
	HasNextPage     bool `json:"has_next_page"`
}

// Page is one page of sales.
type Page struct {
	Data []*Sale  `json:"data"`
	Meta PageMeta `json:"meta"`
}

func newPageMeta(page, take, itemCount int) PageMeta {
	pageCount := (itemCount + take - 1) / take
	return PageMeta{
		Page:            page,
		Take:            take,
		ItemCount:       itemCount,
		PageCount:       pageCount,
		HasPreviousPage: page > 1,
		HasNextPage:     page < pageCount,
	}
}

// Filter converts the query into a storage filter.
func (q ListQuery) Filter() (SaleFilter, error) {
	if q.Status != "" && !q.Status.Valid() {
		return SaleFilter{}, errors.Wrapf(ErrInvalidStatus, "%q", q.Status)
	}

	page, take := q.Page, q.Take
	if page < 1 {
		page = 1
	}
	if take < 1 {
		take = defaultTake
	}
	if take > maxTake {
		take = maxTake
	}

	sortField := q.Sort
	switch sortField {
	case SortByCreatedAt, SortByStatus, SortByName:
	case "":
		sortField = SortByCreatedAt
	default:
		return SaleFilter{}, errors.Wrapf(ErrInvalidInput, "unknown sort field %q", q.Sort)
	}

	order := q.Order
	switch order {
	case OrderAsc, OrderDesc:
	case "":
		order = OrderDesc
	default:
		return SaleFilter{}, errors.Wrapf(ErrInvalidInput, "unknown sort order %q", q.Order)
	}

	f := SaleFilter{
		Status:     q.Status,
		CustomerID: q.CustomerID,
		UserID:     q.UserID,
		ProductID:  q.ProductID,
		From:       q.StartDate,
		Search:     q.Search,
		Sort:       sortField,
		Order:      order,
		Offset:     (page - 1) * take,
		Limit:      take,
	}
	if q.EndDate != nil {
		end := EndOfDay(*q.EndDate)
		f.To = &end
	}
	return f, nil
}

// ListSales returns one page of sales matching the query.
func (s *Service) ListSales(ctx context.Context, q ListQuery) (*Page, error) {
	filter, err := q.Filter()
	if err != nil {
		s.logger.Warn("invalid sales query", zap.Error(err))
		return nil, err
	}

	list, total, err := s.storage.Sales().List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list sales", zap.Error(err))
		return nil, errors.Wrap(err, "failed to retrieve sales")
	}

	page := filter.Offset/filter.Limit + 1
	meta := newPageMeta(page, filter.Limit, total)

	s.logger.Debug("sales search completed",
		zap.String("status_filter", string(q.Status)),
		zap.String("user_filter", q.UserID),
		zap.Int("results_count", len(list)),
		zap.Int("item_count", total),
	)
	return &Page{Data: list, Meta: meta}, nil
}
