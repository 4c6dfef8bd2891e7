package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sales_management/api"
	"sales_management/internal/config"
	"sales_management/internal/mysql"
	"sales_management/internal/reports"
	"sales_management/internal/sales"
)

func main() {
	app := &cli.App{
		Name:  "sales",
		Usage: "sales order processing and reporting service",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "seed", Usage: "load demo customers, sellers and products into the memory store"},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply the MySQL schema migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "revert every migration instead"},
				},
				Action: migrateSchema,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	if cfg.Storage == config.StorageMemory {
		if cfg.Seed || c.Bool("seed") {
			if err := sales.SeedDemoData(ctx, storage, sales.NewDemoData(time.Now().UTC())); err != nil {
				return errors.Wrap(err, "seed demo data")
			}
			logger.Info("memory store seeded with demo data",
				zap.Strings("customers", []string{"customer-1", "customer-2"}),
				zap.String("seller", "user-1"),
				zap.Strings("products", []string{"product-1", "product-2", "product-3"}),
			)
		} else {
			logger.Warn("memory store starts empty; run with --seed or SALES_SEED=true to load demo data")
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.InitRoutes(r,
		sales.NewService(storage, logger.Named("sales")),
		reports.NewService(storage, logger.Named("reports")),
		logger.Named("http"),
		api.Options{TopCustomersLimit: cfg.TopCustomersLimit},
	)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "error trying to start server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStorage returns the configured backend and its cleanup function.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sales.Storage, func(), error) {
	if cfg.Storage != config.StorageMySQL {
		return sales.NewLocalStorage(), func() {}, nil
	}

	st, err := mysql.Open(ctx, cfg.MySQL, logger.Named("mysql"))
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing mysql", zap.Error(err))
		}
	}, nil
}

func migrateSchema(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.MySQL.DSN == "" {
		return errors.New("SALES_MYSQL_DSN is required to run migrations")
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dir := mysql.Up
	if c.Bool("down") {
		dir = mysql.Down
	}
	return mysql.Migrate(cfg.MySQL.DSN, dir, logger)
}
