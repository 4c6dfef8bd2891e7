package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sales_management/internal/reports"
	"sales_management/internal/sales"
)

// Options carries the transport settings that come from configuration.
type Options struct {
	TopCustomersLimit int
}

// InitRoutes registers the sales and report endpoints on the given Gin engine.
func InitRoutes(e *gin.Engine, salesService *sales.Service, reportsService *reports.Service, logger *zap.Logger, opts Options) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.Use(requestLogger(logger))

	salesHandler := NewSalesHandler(salesService, logger)
	reportsHandler := NewReportsHandler(reportsService, opts.TopCustomersLimit, logger)

	e.POST("/sales", salesHandler.handleCreateSale)
	e.GET("/sales", salesHandler.handleListSales)
	e.GET("/sales/:id", salesHandler.handleGetSale)
	e.PUT("/sales/:id", salesHandler.handleUpdateSale)
	e.PATCH("/sales/:id", salesHandler.handleUpdateSale)
	e.DELETE("/sales/:id", salesHandler.handleDeleteSale)

	r := e.Group("/reports")
	r.GET("/summary", reportsHandler.handleSummary)
	r.GET("/products", reportsHandler.handleProducts)
	r.GET("/sellers", reportsHandler.handleSellers)
	r.GET("/daily", reportsHandler.handleTimeBased(reports.Daily))
	r.GET("/weekly", reportsHandler.handleTimeBased(reports.Weekly))
	r.GET("/monthly", reportsHandler.handleTimeBased(reports.Monthly))
	r.GET("/top-customers", reportsHandler.handleTopCustomers)

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
