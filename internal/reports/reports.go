// Package reports derives summary statistics from completed sales. Every
// report is a pure fold over one bulk read; nothing here writes.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sales_management/internal/sales"
)

// DefaultTopCustomers is the top-customers limit when none is given.
const DefaultTopCustomers = 10

var hundred = decimal.NewFromInt(100)

// Granularity selects the calendar bucket of time-based reports.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ErrInvalidGranularity is returned for an unknown bucket size.
var ErrInvalidGranularity = errors.Wrap(sales.ErrInvalidInput, "unknown report granularity")

// Filter narrows the completed sales a report is computed over. StartDate
// and EndDate are calendar days, both inclusive.
type Filter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	UserID     string
	ProductID  string // per-product report only
	CustomerID string
}

func (f Filter) saleFilter() sales.SaleFilter {
	sf := sales.SaleFilter{
		Status:     sales.StatusCompleted,
		UserID:     f.UserID,
		CustomerID: f.CustomerID,
		From:       f.StartDate,
	}
	if f.EndDate != nil {
		end := sales.EndOfDay(*f.EndDate)
		sf.To = &end
	}
	return sf
}

// Summary is the overall performance of the filtered sales.
type Summary struct {
	TotalSales        int             `json:"total_sales"`
	TotalProductsSold int             `json:"total_products_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	ProfitMargin      decimal.Decimal `json:"profit_margin"`
}

// ProductSales is the per-product rollup.
type ProductSales struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	QuantitySold int             `json:"quantity_sold"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
}

// SellerPerformance is the per-seller rollup.
type SellerPerformance struct {
	UserID            string          `json:"user_id"`
	SellerName        string          `json:"seller_name"`
	TotalSales        int             `json:"total_sales"`
	TotalProductsSold int             `json:"total_products_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AverageSaleValue  decimal.Decimal `json:"average_sale_value"`
}

// TimeBucket is one calendar period of a time-based report. Growth is the
// revenue change against the previous bucket, in percent.
type TimeBucket struct {
	Period     string          `json:"period"`
	SalesCount int             `json:"sales_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	Growth     decimal.Decimal `json:"growth"`
}

// CustomerSpend is the per-customer rollup of the top-customers report.
type CustomerSpend struct {
	CustomerID     string          `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	TotalPurchases int             `json:"total_purchases"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
}

// Service answers report queries from the read path of a sales storage.
type Service struct {
	sales  sales.SaleRepository
	logger *zap.Logger
}

// NewService creates a report service reading from repos.
func NewService(repos sales.Repositories, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{sales: repos.Sales(), logger: logger}
}

func (s *Service) load(ctx context.Context, report string, sf sales.SaleFilter) ([]*sales.Sale, error) {
	list, _, err := s.sales.List(ctx, sf)
	if err != nil {
		s.logger.Error("failed to load sales for report", zap.String("report", report), zap.Error(err))
		return nil, errors.Wrapf(err, "load sales for %s report", report)
	}
	s.logger.Debug("report computed", zap.String("report", report), zap.Int("sales", len(list)))
	return list, nil
}

// GetSalesSummary folds the filtered sales into totals.
func (s *Service) GetSalesSummary(ctx context.Context, f Filter) (*Summary, error) {
	list, err := s.load(ctx, "summary", f.saleFilter())
	if err != nil {
		return nil, err
	}
	summary := Summarize(list)
	return &summary, nil
}

// GetProductSales groups item revenue, cost and profit by product. It is the
// only report ProductID narrows.
func (s *Service) GetProductSales(ctx context.Context, f Filter) ([]ProductSales, error) {
	sf := f.saleFilter()
	sf.ProductID = f.ProductID
	list, err := s.load(ctx, "products", sf)
	if err != nil {
		return nil, err
	}
	return ByProduct(list, f.ProductID), nil
}

// GetSellerPerformance groups sales by the seller who created them.
func (s *Service) GetSellerPerformance(ctx context.Context, f Filter) ([]SellerPerformance, error) {
	list, err := s.load(ctx, "sellers", f.saleFilter())
	if err != nil {
		return nil, err
	}
	return BySeller(list), nil
}

// GetTimeBasedSales groups sales into calendar buckets.
func (s *Service) GetTimeBasedSales(ctx context.Context, f Filter, granularity Granularity) ([]TimeBucket, error) {
	if !granularity.valid() {
		return nil, errors.Wrapf(ErrInvalidGranularity, "%q", granularity)
	}
	list, err := s.load(ctx, string(granularity), f.saleFilter())
	if err != nil {
		return nil, err
	}
	return ByPeriod(list, granularity), nil
}

// GetTopCustomers ranks customers by amount spent. A limit below one uses
// DefaultTopCustomers.
func (s *Service) GetTopCustomers(ctx context.Context, f Filter, limit int) ([]CustomerSpend, error) {
	list, err := s.load(ctx, "top-customers", f.saleFilter())
	if err != nil {
		return nil, err
	}
	return TopCustomers(list, limit), nil
}

// Summarize computes the summary report. Cost uses the product's current
// cost; a product without cost counts as zero.
func Summarize(list []*sales.Sale) Summary {
	sum := Summary{
		TotalRevenue: decimal.Zero,
		TotalCost:    decimal.Zero,
	}
	for _, sale := range list {
		sum.TotalSales++
		sum.TotalRevenue = sum.TotalRevenue.Add(sale.TotalAmount)
		for _, item := range sale.Items {
			sum.TotalProductsSold += item.Quantity
			sum.TotalCost = sum.TotalCost.Add(itemCost(item))
		}
	}
	sum.GrossProfit = sum.TotalRevenue.Sub(sum.TotalCost)
	sum.ProfitMargin = percent(sum.GrossProfit, sum.TotalRevenue)
	return sum
}

// ByProduct computes the per-product report, most units sold first. When
// productID is set only that product's lines are counted.
func ByProduct(list []*sales.Sale, productID string) []ProductSales {
	acc := map[string]*ProductSales{}
	for _, sale := range list {
		for _, item := range sale.Items {
			if productID != "" && item.ProductID != productID {
				continue
			}
			row, ok := acc[item.ProductID]
			if !ok {
				row = &ProductSales{
					ProductID: item.ProductID,
					Revenue:   decimal.Zero,
					Cost:      decimal.Zero,
				}
				if item.Product != nil {
					row.ProductName = item.Product.Name
				}
				acc[item.ProductID] = row
			}
			row.QuantitySold += item.Quantity
			row.Revenue = row.Revenue.Add(sales.LineTotal(item.Quantity, item.UnitPrice))
			row.Cost = row.Cost.Add(itemCost(item))
		}
	}

	out := make([]ProductSales, 0, len(acc))
	for _, row := range acc {
		row.Profit = row.Revenue.Sub(row.Cost)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuantitySold != out[j].QuantitySold {
			return out[i].QuantitySold > out[j].QuantitySold
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// BySeller computes the per-seller report, highest revenue first.
func BySeller(list []*sales.Sale) []SellerPerformance {
	acc := map[string]*SellerPerformance{}
	for _, sale := range list {
		row, ok := acc[sale.UserID]
		if !ok {
			row = &SellerPerformance{
				UserID:       sale.UserID,
				SellerName:   "Unknown",
				TotalRevenue: decimal.Zero,
			}
			if sale.User != nil && sale.User.Name != "" {
				row.SellerName = sale.User.Name
			}
			acc[sale.UserID] = row
		}
		row.TotalSales++
		row.TotalProductsSold += sale.Quantity()
		row.TotalRevenue = row.TotalRevenue.Add(sale.TotalAmount)
	}

	out := make([]SellerPerformance, 0, len(acc))
	for _, row := range acc {
		row.AverageSaleValue = decimal.Zero
		if row.TotalSales > 0 {
			row.AverageSaleValue = row.TotalRevenue.Div(decimal.NewFromInt(int64(row.TotalSales)))
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalRevenue.Cmp(out[j].TotalRevenue); c != 0 {
			return c > 0
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ByPeriod computes the time-based report in ascending period order.
func ByPeriod(list []*sales.Sale, granularity Granularity) []TimeBucket {
	acc := map[string]*TimeBucket{}
	for _, sale := range list {
		key := granularity.key(sale.CreatedAt)
		row, ok := acc[key]
		if !ok {
			row = &TimeBucket{Period: key, Revenue: decimal.Zero}
			acc[key] = row
		}
		row.SalesCount++
		row.Revenue = row.Revenue.Add(sale.TotalAmount)
	}

	out := make([]TimeBucket, 0, len(acc))
	for _, row := range acc {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })

	for i := range out {
		out[i].Growth = decimal.Zero
		if i == 0 {
			continue
		}
		prev := out[i-1].Revenue
		if prev.IsPositive() {
			out[i].Growth = percent(out[i].Revenue.Sub(prev), prev)
		}
	}
	return out
}

// TopCustomers ranks customers by total spent and keeps the first limit.
func TopCustomers(list []*sales.Sale, limit int) []CustomerSpend {
	if limit < 1 {
		limit = DefaultTopCustomers
	}

	acc := map[string]*CustomerSpend{}
	for _, sale := range list {
		if sale.Customer == nil {
			continue
		}
		row, ok := acc[sale.CustomerID]
		if !ok {
			row = &CustomerSpend{
				CustomerID:   sale.CustomerID,
				CustomerName: sale.Customer.Name,
				TotalSpent:   decimal.Zero,
			}
			acc[sale.CustomerID] = row
		}
		row.TotalPurchases++
		row.TotalSpent = row.TotalSpent.Add(sale.TotalAmount)
	}

	out := make([]CustomerSpend, 0, len(acc))
	for _, row := range acc {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalSpent.Cmp(out[j].TotalSpent); c != 0 {
			return c > 0
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (g Granularity) valid() bool {
	switch g {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// key buckets t in UTC. Weeks start on Sunday.
func (g Granularity) key(t time.Time) string {
	t = t.UTC()
	switch g {
	case Daily:
		return t.Format("2006-01-02")
	case Weekly:
		return t.AddDate(0, 0, -int(t.Weekday())).Format("2006-01-02")
	default:
		return t.Format("2006-01")
	}
}

func itemCost(item sales.SaleItem) decimal.Decimal {
	return item.Product.UnitCost().Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// percent is 100*part/whole rounded to two places, or zero when whole is zero.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
