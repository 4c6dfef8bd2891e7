package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DemoData is the reference data SeedDemoData writes.
type DemoData struct {
	Customers []Customer
	Users     []User
	Products  []Product
}

// NewDemoData returns a small catalog with fixed IDs so a fresh in-memory
// server can take orders right away.
func NewDemoData(now time.Time) DemoData {
	price := decimal.RequireFromString
	cost := func(v string) decimal.NullDecimal { return decimal.NewNullDecimal(price(v)) }

	return DemoData{
		Customers: []Customer{
			{ID: "customer-1", Name: "Ada Lovelace", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now},
			{ID: "customer-2", Name: "Grace Hopper", Email: "grace@example.com", CreatedAt: now, UpdatedAt: now},
		},
		Users: []User{
			{ID: "user-1", Name: "Sam Seller"},
		},
		Products: []Product{
			{ID: "product-1", Name: "Widget", Price: price("10.00"), Cost: cost("4.00"), Stock: 100, CreatedAt: now, UpdatedAt: now},
			{ID: "product-2", Name: "Gadget", Price: price("25.50"), Cost: cost("12.00"), Stock: 20, CreatedAt: now, UpdatedAt: now},
			{ID: "product-3", Name: "Gizmo", Price: price("5.00"), Stock: 5, CreatedAt: now, UpdatedAt: now},
		},
	}
}

// SeedDemoData writes data in one transaction.
func SeedDemoData(ctx context.Context, storage Storage, data DemoData) error {
	return storage.Execute(ctx, func(ctx context.Context, repos Repositories) error {
		for i := range data.Customers {
			if err := repos.Customers().Create(ctx, &data.Customers[i]); err != nil {
				return err
			}
		}
		for i := range data.Users {
			if err := repos.Users().Create(ctx, &data.Users[i]); err != nil {
				return err
			}
		}
		for i := range data.Products {
			if err := repos.Products().Create(ctx, &data.Products[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
