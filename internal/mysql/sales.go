package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"sales_management/internal/sales"
)

const saleSelect = `
	SELECT s.id, s.customer_id, s.user_id, s.status, s.total_amount, s.notes,
	       s.version, s.created_at, s.updated_at,
	       c.name AS customer_name, c.email AS customer_email, c.phone AS customer_phone,
	       c.created_at AS customer_created_at, c.updated_at AS customer_updated_at,
	       u.name AS user_name
	FROM sales s
	JOIN customers c ON c.id = s.customer_id
	LEFT JOIN users u ON u.id = s.user_id`

const saleCount = `
	SELECT COUNT(*)
	FROM sales s
	JOIN customers c ON c.id = s.customer_id
	LEFT JOIN users u ON u.id = s.user_id`

const itemSelect = `
	SELECT si.id, si.sale_id, si.product_id, si.quantity, si.unit_price, si.total_price,
	       p.name AS product_name, p.price AS product_price, p.cost AS product_cost,
	       p.stock AS product_stock, p.created_at AS product_created_at,
	       p.updated_at AS product_updated_at
	FROM sale_items si
	JOIN products p ON p.id = si.product_id`

type saleRow struct {
	sales.Sale
	CustomerName      string         `db:"customer_name"`
	CustomerEmail     string         `db:"customer_email"`
	CustomerPhone     string         `db:"customer_phone"`
	CustomerCreatedAt time.Time      `db:"customer_created_at"`
	CustomerUpdatedAt time.Time      `db:"customer_updated_at"`
	UserName          sql.NullString `db:"user_name"`
}

func (r *saleRow) sale() *sales.Sale {
	s := r.Sale
	s.Customer = &sales.Customer{
		ID:        s.CustomerID,
		Name:      r.CustomerName,
		Email:     r.CustomerEmail,
		Phone:     r.CustomerPhone,
		CreatedAt: r.CustomerCreatedAt,
		UpdatedAt: r.CustomerUpdatedAt,
	}
	if r.UserName.Valid {
		s.User = &sales.User{ID: s.UserID, Name: r.UserName.String}
	}
	s.Items = []sales.SaleItem{}
	return &s
}

type itemRow struct {
	sales.SaleItem
	ProductName      string              `db:"product_name"`
	ProductPrice     decimal.Decimal     `db:"product_price"`
	ProductCost      decimal.NullDecimal `db:"product_cost"`
	ProductStock     int                 `db:"product_stock"`
	ProductCreatedAt time.Time           `db:"product_created_at"`
	ProductUpdatedAt time.Time           `db:"product_updated_at"`
}

func (r *itemRow) item() sales.SaleItem {
	it := r.SaleItem
	it.Product = &sales.Product{
		ID:        it.ProductID,
		Name:      r.ProductName,
		Price:     r.ProductPrice,
		Cost:      r.ProductCost,
		Stock:     r.ProductStock,
		CreatedAt: r.ProductCreatedAt,
		UpdatedAt: r.ProductUpdatedAt,
	}
	return it
}

type saleStore repos

func (r saleStore) Create(ctx context.Context, s *sales.Sale) error {
	if s.ID == "" {
		return sales.ErrEmptyID
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, user_id, status, total_amount, notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.CustomerID, s.UserID, string(s.Status), s.TotalAmount, s.Notes, s.Version, s.CreatedAt, s.UpdatedAt)
	return errors.Wrap(err, "insert sale")
}

func (r saleStore) CreateItem(ctx context.Context, it *sales.SaleItem) error {
	if it.ID == "" {
		return sales.ErrEmptyID
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, total_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`, it.ID, it.SaleID, it.ProductID, it.Quantity, it.UnitPrice, it.TotalPrice)
	return errors.Wrap(err, "insert sale item")
}

func (r saleStore) Update(ctx context.Context, s *sales.Sale) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE sales
		SET status = ?, total_amount = ?, notes = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, string(s.Status), s.TotalAmount, s.Notes, s.Version, s.UpdatedAt, s.ID)
	return errors.Wrap(err, "update sale")
}

func (r saleStore) DeleteItems(ctx context.Context, saleID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, saleID)
	return errors.Wrap(err, "delete sale items")
}

func (r saleStore) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete sale")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete sale")
	}
	if n == 0 {
		return errors.Wrapf(sales.ErrSaleNotFound, "id %s", id)
	}
	return nil
}

func (r saleStore) FindByID(ctx context.Context, id string) (*sales.Sale, error) {
	return r.find(ctx, id, "")
}

func (r saleStore) FindForUpdate(ctx context.Context, id string) (*sales.Sale, error) {
	return r.find(ctx, id, repos(r).lockClause("s"))
}

func (r saleStore) find(ctx context.Context, id, lock string) (*sales.Sale, error) {
	var row saleRow
	if err := sqlx.GetContext(ctx, r.q, &row, saleSelect+` WHERE s.id = ?`+lock, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(sales.ErrSaleNotFound, "id %s", id)
		}
		return nil, errors.Wrap(err, "select sale")
	}
	s := row.sale()
	if err := r.attachItems(ctx, []*sales.Sale{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r saleStore) List(ctx context.Context, f sales.SaleFilter) ([]*sales.Sale, int, error) {
	where, args := saleWhere(f)

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, saleCount+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "count sales")
	}

	query := saleSelect + where + saleOrder(f)
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	var rows []saleRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "select sales")
	}

	list := make([]*sales.Sale, 0, len(rows))
	for i := range rows {
		list = append(list, rows[i].sale())
	}
	if err := r.attachItems(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r saleStore) attachItems(ctx context.Context, list []*sales.Sale) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	byID := make(map[string]*sales.Sale, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
		byID[s.ID] = s
	}

	query, args, err := sqlx.In(itemSelect+` WHERE si.sale_id IN (?) ORDER BY si.seq`, ids)
	if err != nil {
		return errors.Wrap(err, "build item query")
	}
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "select sale items")
	}
	for i := range rows {
		s := byID[rows[i].SaleID]
		s.Items = append(s.Items, rows[i].item())
	}
	return nil
}

func saleWhere(f sales.SaleFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Status != "" {
		conds = append(conds, `s.status = ?`)
		args = append(args, string(f.Status))
	}
	if f.CustomerID != "" {
		conds = append(conds, `s.customer_id = ?`)
		args = append(args, f.CustomerID)
	}
	if f.UserID != "" {
		conds = append(conds, `s.user_id = ?`)
		args = append(args, f.UserID)
	}
	if f.From != nil {
		conds = append(conds, `s.created_at >= ?`)
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		// DATETIME(6) stores microseconds.
		conds = append(conds, `s.created_at <= ?`)
		args = append(args, f.To.UTC().Truncate(time.Microsecond))
	}
	if f.ProductID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM sale_items fi WHERE fi.sale_id = s.id AND fi.product_id = ?)`)
		args = append(args, f.ProductID)
	}
	if f.Search != "" {
		like := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		conds = append(conds, `(LOWER(s.notes) LIKE ? OR LOWER(c.name) LIKE ? OR LOWER(u.name) LIKE ?
			OR EXISTS (SELECT 1 FROM sale_items si2 JOIN products p2 ON p2.id = si2.product_id
			           WHERE si2.sale_id = s.id AND LOWER(p2.name) LIKE ?))`)
		args = append(args, like, like, like, like)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func saleOrder(f sales.SaleFilter) string {
	dir := `ASC`
	if f.Order == sales.OrderDesc {
		dir = `DESC`
	}
	col := `s.created_at`
	switch f.Sort {
	case sales.SortByStatus:
		col = `s.status`
	case sales.SortByName:
		col = `c.name`
	}
	return ` ORDER BY ` + col + ` ` + dir + `, s.created_at ` + dir + `, s.id ` + dir
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
