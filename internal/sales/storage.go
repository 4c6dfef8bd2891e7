package sales

import (
	"context"
	"strings"
	"time"
)

// ProductRepository reads and writes products, including their stock.
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	FindByID(ctx context.Context, id string) (*Product, error)
	// FindForUpdate reads a product and holds its row until the enclosing
	// transaction ends. Outside a transaction it behaves like FindByID.
	FindForUpdate(ctx context.Context, id string) (*Product, error)
	Save(ctx context.Context, product *Product) error
}

// CustomerRepository resolves customers.
type CustomerRepository interface {
	Create(ctx context.Context, customer *Customer) error
	FindByID(ctx context.Context, id string) (*Customer, error)
}

// UserRepository resolves sellers.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
}

// SaleRepository persists sales and their items. Reads return sales with
// customer, user, items and item products resolved.
type SaleRepository interface {
	Create(ctx context.Context, sale *Sale) error
	CreateItem(ctx context.Context, item *SaleItem) error
	Update(ctx context.Context, sale *Sale) error
	DeleteItems(ctx context.Context, saleID string) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Sale, error)
	// FindForUpdate is FindByID holding the sale row until the enclosing
	// transaction ends.
	FindForUpdate(ctx context.Context, id string) (*Sale, error)
	// List returns the sales matching filter and the number of matches
	// before Offset/Limit are applied.
	List(ctx context.Context, filter SaleFilter) ([]*Sale, int, error)
}

// Repositories groups the stores a unit of work needs.
type Repositories interface {
	Products() ProductRepository
	Customers() CustomerRepository
	Users() UserRepository
	Sales() SaleRepository
}

// Storage is the main interface for our sales storage layer. The embedded
// Repositories are the non-transactional read path; Execute runs fn inside
// a transaction and commits only if fn returns nil. Any error, panic or
// context cancellation rolls back every write made through repos.
type Storage interface {
	Repositories
	Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// SortField selects the ordering of sale listings.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByStatus    SortField = "status"
	SortByName      SortField = "name"
)

// SortOrder is ASC or DESC.
type SortOrder string

const (
	OrderAsc  SortOrder = "ASC"
	OrderDesc SortOrder = "DESC"
)

// SaleFilter narrows sale queries. Zero values mean "no constraint";
// Limit 0 returns every match.
type SaleFilter struct {
	Status     Status
	CustomerID string
	UserID     string
	ProductID  string
	From       *time.Time // inclusive
	To         *time.Time // inclusive
	Search     string
	Sort       SortField
	Order      SortOrder
	Offset     int
	Limit      int
}

// Matches applies every constraint except ordering and pagination.
func (f SaleFilter) Matches(s *Sale) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.CustomerID != "" && s.CustomerID != f.CustomerID {
		return false
	}
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.From != nil && s.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && s.CreatedAt.After(*f.To) {
		return false
	}
	if f.ProductID != "" && !s.hasProduct(f.ProductID) {
		return false
	}
	if f.Search != "" && !s.mentions(f.Search) {
		return false
	}
	return true
}

func (s *Sale) hasProduct(productID string) bool {
	for _, item := range s.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *Sale) mentions(term string) bool {
	term = strings.ToLower(term)
	contains := func(v string) bool { return strings.Contains(strings.ToLower(v), term) }

	if contains(s.Notes) {
		return true
	}
	if s.Customer != nil && contains(s.Customer.Name) {
		return true
	}
	if s.User != nil && contains(s.User.Name) {
		return true
	}
	for _, item := range s.Items {
		if item.Product != nil && contains(item.Product.Name) {
			return true
		}
	}
	return false
}

// EndOfDay returns the last instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
