package sales

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testCustomer = "customer-1"
	testSeller   = "seller-1"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, storage Storage) *Service {
	t.Helper()
	svc := NewService(storage, zaptest.NewLogger(t))

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}

func seed(t *testing.T, st *LocalStorage) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Customers().Create(ctx, &Customer{ID: testCustomer, Name: "Ada"}))
	require.NoError(t, st.Users().Create(ctx, &User{ID: testSeller, Name: "Sam Seller"}))
}

func seedProduct(t *testing.T, st *LocalStorage, id, price string, stock int) {
	t.Helper()
	require.NoError(t, st.Products().Create(context.Background(), &Product{
		ID:    id,
		Name:  "Product " + id,
		Price: dec(price),
		Stock: stock,
	}))
}

func stockOf(t *testing.T, st *LocalStorage, id string) int {
	t.Helper()
	p, err := st.Products().FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func countSales(t *testing.T, st *LocalStorage) int {
	t.Helper()
	_, total, err := st.Sales().List(context.Background(), SaleFilter{})
	require.NoError(t, err)
	return total
}

func TestNewService(t *testing.T) {
	svc := NewService(NewLocalStorage(), zaptest.NewLogger(t))

	require.NotNil(t, svc)
	assert.NotNil(t, svc.storage)
	assert.NotNil(t, svc.logger)

	svc = NewService(NewLocalStorage(), nil)
	assert.NotNil(t, svc.logger, "nil logger falls back to a production logger")
}

func TestCreateSale(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	seedProduct(t, st, "p2", "5", 3)
	svc := newTestService(t, st)

	sale, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}, "cash payment")
	require.NoError(t, err)

	assert.NotEmpty(t, sale.ID)
	assert.Equal(t, StatusPending, sale.Status)
	assert.Equal(t, testSeller, sale.UserID)
	assert.Equal(t, "cash payment", sale.Notes)
	assert.Equal(t, 1, sale.Version)
	assert.True(t, dec("25").Equal(sale.TotalAmount), "total was %s", sale.TotalAmount)
	require.NotNil(t, sale.Customer)
	assert.Equal(t, "Ada", sale.Customer.Name)

	require.Len(t, sale.Items, 2)
	assert.Equal(t, "p1", sale.Items[0].ProductID)
	assert.True(t, dec("10").Equal(sale.Items[0].UnitPrice))
	assert.True(t, dec("20").Equal(sale.Items[0].TotalPrice))
	require.NotNil(t, sale.Items[0].Product)
	assert.Equal(t, "p2", sale.Items[1].ProductID)
	assert.True(t, sale.ItemsTotal().Equal(sale.TotalAmount))

	assert.Equal(t, 3, stockOf(t, st, "p1"))
	assert.Equal(t, 2, stockOf(t, st, "p2"))
}

func TestCreateSale_UnitPriceOverride(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	svc := newTestService(t, st)

	override := dec("7.25")
	sale, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 4, UnitPrice: &override},
	}, "")
	require.NoError(t, err)

	require.Len(t, sale.Items, 1)
	assert.True(t, override.Equal(sale.Items[0].UnitPrice))
	assert.True(t, dec("29").Equal(sale.TotalAmount))
	assert.True(t, dec("10").Equal(sale.Items[0].Product.Price), "product price is untouched")
}

func TestCreateSale_CentPriceOverrideKeepsTotalsExact(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	svc := newTestService(t, st)

	price := dec("0.010")
	sale, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 1, UnitPrice: &price},
		{ProductID: "p1", Quantity: 3, UnitPrice: &price},
	}, "")
	require.NoError(t, err, "trailing zeros are still whole cents")

	assert.True(t, dec("0.04").Equal(sale.TotalAmount))
	assert.True(t, sale.ItemsTotal().Equal(sale.TotalAmount))
	for _, item := range sale.Items {
		assert.True(t, item.TotalPrice.Equal(item.TotalPrice.Round(MoneyPlaces)))
	}
}

func TestCreateSale_CustomerNotFound(t *testing.T) {
	st := NewLocalStorage()
	seedProduct(t, st, "p1", "10", 5)
	svc := newTestService(t, st)

	sale, err := svc.CreateSale(context.Background(), "nobody", testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 1},
	}, "")

	require.Error(t, err)
	assert.Nil(t, sale)
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, stockOf(t, st, "p1"))
	assert.Equal(t, 0, countSales(t, st))
}

func TestCreateSale_InsufficientStockRollsBackEverything(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	seedProduct(t, st, "p2", "5", 10)
	seedProduct(t, st, "p3", "1", 1)
	svc := newTestService(t, st)

	_, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", Quantity: 2},
		{ProductID: "p3", Quantity: 2},
		{ProductID: "p1", Quantity: 1},
	}, "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Product p3", stockErr.ProductName)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, "insufficient stock for product: Product p3", err.Error())

	assert.Equal(t, 5, stockOf(t, st, "p1"))
	assert.Equal(t, 10, stockOf(t, st, "p2"))
	assert.Equal(t, 1, stockOf(t, st, "p3"))
	assert.Equal(t, 0, countSales(t, st))
	assert.Empty(t, st.state.items)
}

func TestCreateSale_SameProductTwiceCountsAgainstStock(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	svc := newTestService(t, st)

	_, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p1", Quantity: 3},
	}, "")

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 5, stockOf(t, st, "p1"))
}

func TestCreateSale_ProductNotFoundRollsBack(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	svc := newTestService(t, st)

	_, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "ghost", Quantity: 1},
	}, "")

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 5, stockOf(t, st, "p1"))
	assert.Equal(t, 0, countSales(t, st))
}

var errWriteFailed = errors.New("disk on fire")

// faultyStorage fails CreateItem once okItems items were written.
type faultyStorage struct {
	*LocalStorage
	okItems int
	written int
}

func (f *faultyStorage) Execute(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return f.LocalStorage.Execute(ctx, func(ctx context.Context, repos Repositories) error {
		return fn(ctx, faultyRepos{Repositories: repos, f: f})
	})
}

type faultyRepos struct {
	Repositories
	f *faultyStorage
}

func (r faultyRepos) Sales() SaleRepository {
	return faultySales{SaleRepository: r.Repositories.Sales(), f: r.f}
}

type faultySales struct {
	SaleRepository
	f *faultyStorage
}

func (s faultySales) CreateItem(ctx context.Context, item *SaleItem) error {
	if s.f.written >= s.f.okItems {
		return errWriteFailed
	}
	s.f.written++
	return s.SaleRepository.CreateItem(ctx, item)
}

func TestCreateSale_WriteFailureRollsBack(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	seedProduct(t, st, "p2", "5", 5)
	svc := newTestService(t, &faultyStorage{LocalStorage: st, okItems: 1})

	_, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
	}, "")

	assert.ErrorIs(t, err, errWriteFailed, "the original error is returned unchanged")
	assert.False(t, IsBusinessError(err))
	assert.Equal(t, 5, stockOf(t, st, "p1"))
	assert.Equal(t, 5, stockOf(t, st, "p2"))
	assert.Equal(t, 0, countSales(t, st))
}

func TestCreateSale_InvalidInput(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "10", 5)
	svc := newTestService(t, st)

	zero := decimal.Zero
	halfCent := dec("0.005")
	tenthCent := dec("0.001")
	tests := []struct {
		name     string
		customer string
		seller   string
		items    []ItemRequest
	}{
		{"no items", testCustomer, testSeller, nil},
		{"missing customer", "", testSeller, []ItemRequest{{ProductID: "p1", Quantity: 1}}},
		{"missing seller", testCustomer, " ", []ItemRequest{{ProductID: "p1", Quantity: 1}}},
		{"missing product", testCustomer, testSeller, []ItemRequest{{Quantity: 1}}},
		{"zero quantity", testCustomer, testSeller, []ItemRequest{{ProductID: "p1", Quantity: 0}}},
		{"zero price override", testCustomer, testSeller, []ItemRequest{{ProductID: "p1", Quantity: 1, UnitPrice: &zero}}},
		{"half-cent price override", testCustomer, testSeller, []ItemRequest{
			{ProductID: "p1", Quantity: 1, UnitPrice: &halfCent},
			{ProductID: "p1", Quantity: 1, UnitPrice: &halfCent},
		}},
		{"price override rounding to zero", testCustomer, testSeller, []ItemRequest{{ProductID: "p1", Quantity: 1, UnitPrice: &tenthCent}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSale(context.Background(), tt.customer, tt.seller, tt.items, "")
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Equal(t, 5, stockOf(t, st, "p1"))
}

func createTwoItemSale(t *testing.T, svc *Service) *Sale {
	t.Helper()
	sale, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
		{ProductID: "a", Quantity: 3},
		{ProductID: "b", Quantity: 2},
	}, "")
	require.NoError(t, err)
	return sale
}

func lifecycleFixture(t *testing.T) (*Service, *LocalStorage) {
	t.Helper()
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "a", "4", 5)
	seedProduct(t, st, "b", "6", 10)
	return newTestService(t, st), st
}

func TestUpdateSale_CancelPendingRestoresStock(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)
	require.Equal(t, 2, stockOf(t, st, "a"))
	require.Equal(t, 8, stockOf(t, st, "b"))

	updated, err := svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCancelled, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, 2, updated.Version)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.Equal(t, 5, stockOf(t, st, "a"))
	assert.Equal(t, 10, stockOf(t, st, "b"))
}

func TestUpdateSale_CancelCompletedRestoresStock(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)

	_, err := svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, st, "a"), "completing does not touch stock")

	_, err = svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, st, "a"))
	assert.Equal(t, 10, stockOf(t, st, "b"))
}

func TestUpdateSale_CancelledCannotComplete(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)
	_, err := svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCancelled, nil)
	require.NoError(t, err)

	_, err = svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCompleted, nil)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, 5, stockOf(t, st, "a"))
}

func TestUpdateSale_CompletedBackToPendingKeepsStock(t *testing.T) {
	svc, st := lifecycleFixture(t)
	ctx := context.Background()
	sale := createTwoItemSale(t, svc)
	_, err := svc.UpdateSaleStatus(ctx, sale.ID, StatusCompleted, nil)
	require.NoError(t, err)

	reopened, err := svc.UpdateSaleStatus(ctx, sale.ID, StatusPending, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reopened.Status)
	assert.Equal(t, 2, stockOf(t, st, "a"), "reopening does not touch stock")
	assert.Equal(t, 8, stockOf(t, st, "b"))
}

func TestUpdateSale_CancelledCannotReturnToPending(t *testing.T) {
	svc, st := lifecycleFixture(t)
	ctx := context.Background()
	sale := createTwoItemSale(t, svc)
	_, err := svc.UpdateSaleStatus(ctx, sale.ID, StatusCancelled, nil)
	require.NoError(t, err)

	_, err = svc.UpdateSaleStatus(ctx, sale.ID, StatusPending, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 5, stockOf(t, st, "a"))
}

func TestUpdateSale_CancelTwiceReleasesOnce(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)
	_, err := svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCancelled, nil)
	require.NoError(t, err)

	notes := "customer changed their mind"
	updated, err := svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCancelled, &notes)
	require.NoError(t, err)

	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, 5, stockOf(t, st, "a"))
	assert.Equal(t, 10, stockOf(t, st, "b"))
}

func TestUpdateSale_NotesOnly(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)

	notes := "deliver on friday"
	updated, err := svc.UpdateSale(context.Background(), sale.ID, UpdateRequest{Notes: &notes})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, notes, updated.Notes)
	assert.True(t, sale.TotalAmount.Equal(updated.TotalAmount))
	assert.Equal(t, 2, stockOf(t, st, "a"))
}

func TestUpdateSale_InvalidStatus(t *testing.T) {
	svc, _ := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)

	_, err := svc.UpdateSaleStatus(context.Background(), sale.ID, Status("approved"), nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateSale_NotFound(t *testing.T) {
	svc, _ := lifecycleFixture(t)

	_, err := svc.UpdateSaleStatus(context.Background(), "missing", StatusCompleted, nil)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestUpdateSale_MissingProductAbortsCancellation(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)
	delete(st.state.products, "b")

	_, err := svc.UpdateSaleStatus(context.Background(), sale.ID, StatusCancelled, nil)

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 2, stockOf(t, st, "a"), "no partial release")
	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestRemoveSale_Pending(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)

	require.NoError(t, svc.RemoveSale(context.Background(), sale.ID))

	_, err := svc.GetSale(context.Background(), sale.ID)
	assert.ErrorIs(t, err, ErrSaleNotFound)
	assert.Empty(t, st.state.items[sale.ID])
	assert.Equal(t, 5, stockOf(t, st, "a"))
	assert.Equal(t, 10, stockOf(t, st, "b"))
}

func TestRemoveSale_OnlyPending(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			svc, st := lifecycleFixture(t)
			sale := createTwoItemSale(t, svc)
			_, err := svc.UpdateSaleStatus(context.Background(), sale.ID, status, nil)
			require.NoError(t, err)
			before := stockOf(t, st, "a")

			err = svc.RemoveSale(context.Background(), sale.ID)

			assert.ErrorIs(t, err, ErrInvalidOperation)
			assert.EqualError(t, err, "only pending sales can be deleted")
			_, err = svc.GetSale(context.Background(), sale.ID)
			assert.NoError(t, err)
			assert.Equal(t, before, stockOf(t, st, "a"))
		})
	}
}

func TestRemoveSale_MissingProductAbortsDeletion(t *testing.T) {
	svc, st := lifecycleFixture(t)
	sale := createTwoItemSale(t, svc)
	delete(st.state.products, "b")

	err := svc.RemoveSale(context.Background(), sale.ID)

	assert.ErrorIs(t, err, ErrProductNotFound)
	got, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, 2, stockOf(t, st, "a"))
}

func TestCreateSale_ConcurrentBuyersNeverOversell(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	seedProduct(t, st, "p1", "1", 10)
	svc := newTestService(t, st)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(context.Background(), testCustomer, testSeller, []ItemRequest{
				{ProductID: "p1", Quantity: 1},
			}, "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, stockOf(t, st, "p1"))
}

func TestInvariants_RandomOperations(t *testing.T) {
	st := NewLocalStorage()
	seed(t, st)
	initial := map[string]int{"a": 7, "b": 4, "c": 12}
	for id, stock := range initial {
		seedProduct(t, st, id, "3.5", stock)
	}
	svc := newTestService(t, st)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c"}

	var open []string
	for i := 0; i < 200; i++ {
		switch op := rng.Intn(4); {
		case op <= 1 || len(open) == 0:
			n := rng.Intn(3) + 1
			items := make([]ItemRequest, 0, n)
			for j := 0; j < n; j++ {
				items = append(items, ItemRequest{ProductID: ids[rng.Intn(len(ids))], Quantity: rng.Intn(4) + 1})
			}
			sale, err := svc.CreateSale(ctx, testCustomer, testSeller, items, "")
			if err == nil {
				open = append(open, sale.ID)
			} else {
				require.ErrorIs(t, err, ErrInsufficientStock)
			}
		case op == 2:
			id := open[rng.Intn(len(open))]
			status := []Status{StatusCompleted, StatusCancelled}[rng.Intn(2)]
			if _, err := svc.UpdateSaleStatus(ctx, id, status, nil); err != nil {
				require.ErrorIs(t, err, ErrInvalidTransition)
			}
		default:
			idx := rng.Intn(len(open))
			if err := svc.RemoveSale(ctx, open[idx]); err == nil {
				open = append(open[:idx], open[idx+1:]...)
			} else {
				require.ErrorIs(t, err, ErrInvalidOperation)
			}
		}

		held := map[string]int{}
		all, _, err := st.Sales().List(ctx, SaleFilter{})
		require.NoError(t, err)
		for _, sale := range all {
			require.True(t, sale.ItemsTotal().Equal(sale.TotalAmount), "sale %s total drifted", sale.ID)
			if sale.Status == StatusCancelled {
				continue
			}
			for _, item := range sale.Items {
				held[item.ProductID] += item.Quantity
			}
		}
		for _, id := range ids {
			stock := stockOf(t, st, id)
			require.GreaterOrEqual(t, stock, 0)
			require.Equal(t, initial[id], stock+held[id], fmt.Sprintf("stock of %s is not conserved", id))
		}
	}
}
