// Package mysql implements the sales storage ports on MySQL 8. Stock and
// sale rows touched by a transaction are read with SELECT ... FOR UPDATE so
// concurrent reservations of the same product serialise on its row.
package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sales_management/internal/config"
	"sales_management/internal/sales"
)

// Storage is a sales.Storage backed by a MySQL database.
type Storage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New wraps an open database handle.
func New(db *sqlx.DB, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{db: db, logger: logger}
}

// Open connects to MySQL and applies the pool settings from cfg.
func Open(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) (*Storage, error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(pingCtx, "mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect to mysql")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return New(db, logger), nil
}

// NormalizeDSN forces the driver options the adapter relies on: DATETIME
// columns scanned as time.Time in UTC.
func NormalizeDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse mysql dsn")
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle, mostly for tests.
func (s *Storage) DB() *sqlx.DB {
	return s.db
}

func (s *Storage) Products() sales.ProductRepository   { return repos{q: s.db}.Products() }
func (s *Storage) Customers() sales.CustomerRepository { return repos{q: s.db}.Customers() }
func (s *Storage) Users() sales.UserRepository         { return repos{q: s.db}.Users() }
func (s *Storage) Sales() sales.SaleRepository         { return repos{q: s.db}.Sales() }

// Execute runs fn inside a READ COMMITTED transaction. Row locks taken by
// FindForUpdate provide the isolation stock updates need.
func (s *Storage) Execute(ctx context.Context, fn func(ctx context.Context, repos sales.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrapf(sales.ErrTransactionFailure, "begin: %v", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repos{q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(sales.ErrTransactionFailure, "commit: %v", err)
	}
	return nil
}

// repos binds the repositories to either the pool or one transaction.
type repos struct {
	q    sqlx.ExtContext
	inTx bool
}

func (r repos) Products() sales.ProductRepository   { return products(r) }
func (r repos) Customers() sales.CustomerRepository { return customers(r) }
func (r repos) Users() sales.UserRepository         { return users(r) }
func (r repos) Sales() sales.SaleRepository         { return saleStore(r) }

func (r repos) lockClause(table string) string {
	if !r.inTx {
		return ""
	}
	return " FOR UPDATE OF " + table
}

var (
	_ sales.Storage      = (*Storage)(nil)
	_ sales.Repositories = repos{}
)
