package mysql

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"sales_management/internal/sales"
)

const productColumns = `p.id, p.name, p.price, p.cost, p.stock, p.created_at, p.updated_at`

type products repos

func (r products) Create(ctx context.Context, p *sales.Product) error {
	if p.ID == "" {
		return sales.ErrEmptyID
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (id, name, price, cost, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Price, p.Cost, p.Stock, p.CreatedAt, p.UpdatedAt)
	return errors.Wrap(err, "insert product")
}

func (r products) FindByID(ctx context.Context, id string) (*sales.Product, error) {
	return r.find(ctx, id, "")
}

func (r products) FindForUpdate(ctx context.Context, id string) (*sales.Product, error) {
	return r.find(ctx, id, repos(r).lockClause("p"))
}

func (r products) find(ctx context.Context, id, lock string) (*sales.Product, error) {
	var p sales.Product
	err := sqlx.GetContext(ctx, r.q, &p, `SELECT `+productColumns+` FROM products p WHERE p.id = ?`+lock, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(sales.ErrProductNotFound, "id %s", id)
		}
		return nil, errors.Wrap(err, "select product")
	}
	return &p, nil
}

func (r products) Save(ctx context.Context, p *sales.Product) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = ?, price = ?, cost = ?, stock = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Price, p.Cost, p.Stock, p.UpdatedAt, p.ID)
	return errors.Wrap(err, "update product")
}

type customers repos

func (r customers) Create(ctx context.Context, c *sales.Customer) error {
	if c.ID == "" {
		return sales.ErrEmptyID
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Email, c.Phone, c.CreatedAt, c.UpdatedAt)
	return errors.Wrap(err, "insert customer")
}

func (r customers) FindByID(ctx context.Context, id string) (*sales.Customer, error) {
	var c sales.Customer
	err := sqlx.GetContext(ctx, r.q, &c, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM customers
		WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(sales.ErrCustomerNotFound, "id %s", id)
		}
		return nil, errors.Wrap(err, "select customer")
	}
	return &c, nil
}

type users repos

func (r users) Create(ctx context.Context, u *sales.User) error {
	if u.ID == "" {
		return sales.ErrEmptyID
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO users (id, name) VALUES (?, ?)`, u.ID, u.Name)
	return errors.Wrap(err, "insert user")
}

func (r users) FindByID(ctx context.Context, id string) (*sales.User, error) {
	var u sales.User
	err := sqlx.GetContext(ctx, r.q, &u, `SELECT id, name FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(sales.ErrUserNotFound, "id %s", id)
		}
		return nil, errors.Wrap(err, "select user")
	}
	return &u, nil
}
