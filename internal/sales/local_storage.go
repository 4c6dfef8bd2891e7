package sales

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// LocalStorage provides an in-memory implementation of Storage. Transactions
// are serialised behind one lock and rolled back by restoring a snapshot
// taken when they began.
type LocalStorage struct {
	mu    sync.RWMutex
	state *localState
}

// NewLocalStorage instantiates a new, empty LocalStorage.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{state: newLocalState()}
}

type localState struct {
	products  map[string]Product
	customers map[string]Customer
	users     map[string]User
	sales     map[string]Sale
	items     map[string][]SaleItem // by sale ID, in insertion order
}

func newLocalState() *localState {
	return &localState{
		products:  map[string]Product{},
		customers: map[string]Customer{},
		users:     map[string]User{},
		sales:     map[string]Sale{},
		items:     map[string][]SaleItem{},
	}
}

func (st *localState) clone() *localState {
	c := newLocalState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.customers {
		c.customers[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.sales {
		c.sales[k] = v
	}
	for k, v := range st.items {
		c.items[k] = append([]SaleItem(nil), v...)
	}
	return c
}

// Execute runs fn against the live state and restores the snapshot unless fn
// returns nil and ctx is still alive.
func (l *LocalStorage) Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrTransactionFailure, err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.state.clone()
	committed := false
	defer func() {
		if !committed {
			l.state = snapshot
		}
	}()

	if err := fn(ctx, localRepos{st: l.state}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrTransactionFailure, err.Error())
	}
	committed = true
	return nil
}

func (l *LocalStorage) read(fn func(repos localRepos) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(localRepos{st: l.state})
}

func (l *LocalStorage) write(fn func(repos localRepos) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(localRepos{st: l.state})
}

func (l *LocalStorage) Products() ProductRepository   { return sharedProducts{l} }
func (l *LocalStorage) Customers() CustomerRepository { return sharedCustomers{l} }
func (l *LocalStorage) Users() UserRepository         { return sharedUsers{l} }
func (l *LocalStorage) Sales() SaleRepository         { return sharedSales{l} }

// localRepos operates on a state without locking; the caller holds the lock.
type localRepos struct {
	st *localState
}

func (r localRepos) Products() ProductRepository   { return localProducts(r) }
func (r localRepos) Customers() CustomerRepository { return localCustomers(r) }
func (r localRepos) Users() UserRepository         { return localUsers(r) }
func (r localRepos) Sales() SaleRepository         { return localSales(r) }

type localProducts localRepos

func (r localProducts) Create(_ context.Context, p *Product) error {
	if p.ID == "" {
		return ErrEmptyID
	}
	r.st.products[p.ID] = *p
	return nil
}

func (r localProducts) FindByID(_ context.Context, id string) (*Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, errors.Wrapf(ErrProductNotFound, "id %s", id)
	}
	return &p, nil
}

func (r localProducts) FindForUpdate(ctx context.Context, id string) (*Product, error) {
	return r.FindByID(ctx, id)
}

func (r localProducts) Save(_ context.Context, p *Product) error {
	if _, ok := r.st.products[p.ID]; !ok {
		return errors.Wrapf(ErrProductNotFound, "id %s", p.ID)
	}
	r.st.products[p.ID] = *p
	return nil
}

type localCustomers localRepos

func (r localCustomers) Create(_ context.Context, c *Customer) error {
	if c.ID == "" {
		return ErrEmptyID
	}
	r.st.customers[c.ID] = *c
	return nil
}

func (r localCustomers) FindByID(_ context.Context, id string) (*Customer, error) {
	c, ok := r.st.customers[id]
	if !ok {
		return nil, errors.Wrapf(ErrCustomerNotFound, "id %s", id)
	}
	return &c, nil
}

type localUsers localRepos

func (r localUsers) Create(_ context.Context, u *User) error {
	if u.ID == "" {
		return ErrEmptyID
	}
	r.st.users[u.ID] = *u
	return nil
}

func (r localUsers) FindByID(_ context.Context, id string) (*User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, errors.Wrapf(ErrUserNotFound, "id %s", id)
	}
	return &u, nil
}

type localSales localRepos

func (r localSales) Create(_ context.Context, s *Sale) error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if _, ok := r.st.customers[s.CustomerID]; !ok {
		return errors.Wrapf(ErrCustomerNotFound, "id %s", s.CustomerID)
	}
	row := *s
	row.Items, row.Customer, row.User = nil, nil, nil
	r.st.sales[s.ID] = row
	return nil
}

func (r localSales) CreateItem(_ context.Context, item *SaleItem) error {
	if item.ID == "" {
		return ErrEmptyID
	}
	if _, ok := r.st.sales[item.SaleID]; !ok {
		return errors.Wrapf(ErrSaleNotFound, "id %s", item.SaleID)
	}
	if _, ok := r.st.products[item.ProductID]; !ok {
		return errors.Wrapf(ErrProductNotFound, "id %s", item.ProductID)
	}
	row := *item
	row.Product = nil
	r.st.items[item.SaleID] = append(r.st.items[item.SaleID], row)
	return nil
}

func (r localSales) Update(_ context.Context, s *Sale) error {
	if _, ok := r.st.sales[s.ID]; !ok {
		return errors.Wrapf(ErrSaleNotFound, "id %s", s.ID)
	}
	row := *s
	row.Items, row.Customer, row.User = nil, nil, nil
	r.st.sales[s.ID] = row
	return nil
}

func (r localSales) DeleteItems(_ context.Context, saleID string) error {
	delete(r.st.items, saleID)
	return nil
}

func (r localSales) Delete(_ context.Context, id string) error {
	if _, ok := r.st.sales[id]; !ok {
		return errors.Wrapf(ErrSaleNotFound, "id %s", id)
	}
	if len(r.st.items[id]) > 0 {
		return errors.Errorf("sale %s still has items", id)
	}
	delete(r.st.sales, id)
	return nil
}

func (r localSales) FindByID(_ context.Context, id string) (*Sale, error) {
	row, ok := r.st.sales[id]
	if !ok {
		return nil, errors.Wrapf(ErrSaleNotFound, "id %s", id)
	}
	return r.resolve(row), nil
}

func (r localSales) FindForUpdate(ctx context.Context, id string) (*Sale, error) {
	return r.FindByID(ctx, id)
}

func (r localSales) List(_ context.Context, filter SaleFilter) ([]*Sale, int, error) {
	matched := make([]*Sale, 0, len(r.st.sales))
	for _, row := range r.st.sales {
		s := r.resolve(row)
		if filter.Matches(s) {
			matched = append(matched, s)
		}
	}

	sortSales(matched, filter.Sort, filter.Order)

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Sale{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (r localSales) resolve(row Sale) *Sale {
	s := row
	if c, ok := r.st.customers[s.CustomerID]; ok {
		s.Customer = &c
	}
	if u, ok := r.st.users[s.UserID]; ok {
		s.User = &u
	}
	items := r.st.items[s.ID]
	s.Items = make([]SaleItem, 0, len(items))
	for _, item := range items {
		if p, ok := r.st.products[item.ProductID]; ok {
			item.Product = &p
		}
		s.Items = append(s.Items, item)
	}
	return &s
}

func sortSales(list []*Sale, field SortField, order SortOrder) {
	less := func(a, b *Sale) bool {
		switch field {
		case SortByStatus:
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		case SortByName:
			an, bn := customerName(a), customerName(b)
			if an != bn {
				return an < bn
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.SliceStable(list, func(i, j int) bool {
		if order == OrderDesc {
			return less(list[j], list[i])
		}
		return less(list[i], list[j])
	})
}

func customerName(s *Sale) string {
	if s.Customer == nil {
		return ""
	}
	return s.Customer.Name
}

// The shared* repositories serve the non-transactional path, taking the
// storage lock per call.

type sharedProducts struct{ l *LocalStorage }

func (r sharedProducts) Create(ctx context.Context, p *Product) error {
	return r.l.write(func(repos localRepos) error { return repos.Products().Create(ctx, p) })
}

func (r sharedProducts) FindByID(ctx context.Context, id string) (p *Product, err error) {
	err = r.l.read(func(repos localRepos) error {
		p, err = repos.Products().FindByID(ctx, id)
		return err
	})
	return p, err
}

func (r sharedProducts) FindForUpdate(ctx context.Context, id string) (*Product, error) {
	return r.FindByID(ctx, id)
}

func (r sharedProducts) Save(ctx context.Context, p *Product) error {
	return r.l.write(func(repos localRepos) error { return repos.Products().Save(ctx, p) })
}

type sharedCustomers struct{ l *LocalStorage }

func (r sharedCustomers) Create(ctx context.Context, c *Customer) error {
	return r.l.write(func(repos localRepos) error { return repos.Customers().Create(ctx, c) })
}

func (r sharedCustomers) FindByID(ctx context.Context, id string) (c *Customer, err error) {
	err = r.l.read(func(repos localRepos) error {
		c, err = repos.Customers().FindByID(ctx, id)
		return err
	})
	return c, err
}

type sharedUsers struct{ l *LocalStorage }

func (r sharedUsers) Create(ctx context.Context, u *User) error {
	return r.l.write(func(repos localRepos) error { return repos.Users().Create(ctx, u) })
}

func (r sharedUsers) FindByID(ctx context.Context, id string) (u *User, err error) {
	err = r.l.read(func(repos localRepos) error {
		u, err = repos.Users().FindByID(ctx, id)
		return err
	})
	return u, err
}

type sharedSales struct{ l *LocalStorage }

func (r sharedSales) Create(ctx context.Context, s *Sale) error {
	return r.l.write(func(repos localRepos) error { return repos.Sales().Create(ctx, s) })
}

func (r sharedSales) CreateItem(ctx context.Context, item *SaleItem) error {
	return r.l.write(func(repos localRepos) error { return repos.Sales().CreateItem(ctx, item) })
}

func (r sharedSales) Update(ctx context.Context, s *Sale) error {
	return r.l.write(func(repos localRepos) error { return repos.Sales().Update(ctx, s) })
}

func (r sharedSales) DeleteItems(ctx context.Context, saleID string) error {
	return r.l.write(func(repos localRepos) error { return repos.Sales().DeleteItems(ctx, saleID) })
}

func (r sharedSales) Delete(ctx context.Context, id string) error {
	return r.l.write(func(repos localRepos) error { return repos.Sales().Delete(ctx, id) })
}

func (r sharedSales) FindByID(ctx context.Context, id string) (s *Sale, err error) {
	err = r.l.read(func(repos localRepos) error {
		s, err = repos.Sales().FindByID(ctx, id)
		return err
	})
	return s, err
}

func (r sharedSales) FindForUpdate(ctx context.Context, id string) (*Sale, error) {
	return r.FindByID(ctx, id)
}

func (r sharedSales) List(ctx context.Context, filter SaleFilter) (list []*Sale, total int, err error) {
	err = r.l.read(func(repos localRepos) error {
		list, total, err = repos.Sales().List(ctx, filter)
		return err
	})
	return list, total, err
}

var (
	_ Storage      = (*LocalStorage)(nil)
	_ Repositories = localRepos{}
)
