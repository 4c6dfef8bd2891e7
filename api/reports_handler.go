package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sales_management/internal/reports"
)

// reportsHandler exposes the read-only report aggregations.
type reportsHandler struct {
	reportsService    *reports.Service
	topCustomersLimit int
	logger            *zap.Logger
}

func NewReportsHandler(reportsService *reports.Service, topCustomersLimit int, logger *zap.Logger) *reportsHandler {
	if topCustomersLimit < 1 {
		topCustomersLimit = reports.DefaultTopCustomers
	}
	return &reportsHandler{
		reportsService:    reportsService,
		topCustomersLimit: topCustomersLimit,
		logger:            logger,
	}
}

type reportQuery struct {
	StartDate  string `form:"startDate"`
	EndDate    string `form:"endDate"`
	UserID     string `form:"userId"`
	ProductID  string `form:"productId"`
	CustomerID string `form:"customerId"`
	Limit      int    `form:"limit" binding:"omitempty,min=1"`
}

// bindFilter parses the common report query. It writes the error response
// itself and reports whether the handler may continue.
func (h *reportsHandler) bindFilter(ctx *gin.Context) (reports.Filter, reportQuery, bool) {
	var q reportQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return reports.Filter{}, q, false
	}
	start, err := parseDate(q.StartDate)
	if err != nil {
		writeError(ctx, h.logger, "invalid startDate", err)
		return reports.Filter{}, q, false
	}
	end, err := parseDate(q.EndDate)
	if err != nil {
		writeError(ctx, h.logger, "invalid endDate", err)
		return reports.Filter{}, q, false
	}
	return reports.Filter{
		StartDate:  start,
		EndDate:    end,
		UserID:     q.UserID,
		ProductID:  q.ProductID,
		CustomerID: q.CustomerID,
	}, q, true
}

func (h *reportsHandler) handleSummary(ctx *gin.Context) {
	f, _, ok := h.bindFilter(ctx)
	if !ok {
		return
	}
	summary, err := h.reportsService.GetSalesSummary(ctx.Request.Context(), f)
	if err != nil {
		writeError(ctx, h.logger, "failed to build sales summary", err)
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

func (h *reportsHandler) handleProducts(ctx *gin.Context) {
	f, _, ok := h.bindFilter(ctx)
	if !ok {
		return
	}
	rows, err := h.reportsService.GetProductSales(ctx.Request.Context(), f)
	if err != nil {
		writeError(ctx, h.logger, "failed to build product report", err)
		return
	}
	ctx.JSON(http.StatusOK, rows)
}

func (h *reportsHandler) handleSellers(ctx *gin.Context) {
	f, _, ok := h.bindFilter(ctx)
	if !ok {
		return
	}
	rows, err := h.reportsService.GetSellerPerformance(ctx.Request.Context(), f)
	if err != nil {
		writeError(ctx, h.logger, "failed to build seller report", err)
		return
	}
	ctx.JSON(http.StatusOK, rows)
}

// handleTimeBased returns the handler for one bucket size.
func (h *reportsHandler) handleTimeBased(granularity reports.Granularity) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		f, _, ok := h.bindFilter(ctx)
		if !ok {
			return
		}
		rows, err := h.reportsService.GetTimeBasedSales(ctx.Request.Context(), f, granularity)
		if err != nil {
			writeError(ctx, h.logger, "failed to build time report", err)
			return
		}
		ctx.JSON(http.StatusOK, rows)
	}
}

func (h *reportsHandler) handleTopCustomers(ctx *gin.Context) {
	f, q, ok := h.bindFilter(ctx)
	if !ok {
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = h.topCustomersLimit
	}
	rows, err := h.reportsService.GetTopCustomers(ctx.Request.Context(), f, limit)
	if err != nil {
		writeError(ctx, h.logger, "failed to build top customers report", err)
		return
	}
	ctx.JSON(http.StatusOK, rows)
}
