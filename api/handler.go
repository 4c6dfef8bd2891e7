package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sales_management/internal/sales"
)

const (
	dateLayout   = "2006-01-02"
	sellerHeader = "X-User-ID"
)

// salesHandler holds the sales service and implements HTTP handlers for sales operations.
type salesHandler struct {
	salesService *sales.Service
	logger       *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(salesService *sales.Service, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

type createItemRequest struct {
	ProductID string           `json:"product_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type createSaleRequest struct {
	CustomerID string              `json:"customer_id" binding:"required"`
	Items      []createItemRequest `json:"items" binding:"required,min=1,dive"`
	Notes      string              `json:"notes"`
}

type updateSaleRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type listSalesQuery struct {
	Status     string `form:"status"`
	CustomerID string `form:"customerId"`
	UserID     string `form:"userId"`
	ProductID  string `form:"productId"`
	StartDate  string `form:"startDate"`
	EndDate    string `form:"endDate"`
	Search     string `form:"search"`
	Sort       string `form:"sort"`
	Order      string `form:"order"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	Take       int    `form:"take" binding:"omitempty,min=1"`
}

// handleCreateSale handles the POST /sales endpoint.
func (h *salesHandler) handleCreateSale(ctx *gin.Context) {
	sellerID := ctx.GetHeader(sellerHeader)
	if sellerID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing " + sellerHeader + " header"})
		return
	}

	var req createSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	items := make([]sales.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, sales.ItemRequest{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	sale, err := h.salesService.CreateSale(ctx.Request.Context(), req.CustomerID, sellerID, items, req.Notes)
	if err != nil {
		writeError(ctx, h.logger, "failed to create sale", err)
		return
	}

	ctx.JSON(http.StatusCreated, sale)
}

func (h *salesHandler) handleListSales(ctx *gin.Context) {
	var q listSalesQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	start, err := parseDate(q.StartDate)
	if err != nil {
		writeError(ctx, h.logger, "invalid startDate", err)
		return
	}
	end, err := parseDate(q.EndDate)
	if err != nil {
		writeError(ctx, h.logger, "invalid endDate", err)
		return
	}

	page, err := h.salesService.ListSales(ctx.Request.Context(), sales.ListQuery{
		Status:     sales.Status(q.Status),
		CustomerID: q.CustomerID,
		UserID:     q.UserID,
		ProductID:  q.ProductID,
		StartDate:  start,
		EndDate:    end,
		Search:     q.Search,
		Sort:       sales.SortField(q.Sort),
		Order:      sales.SortOrder(strings.ToUpper(q.Order)),
		Page:       q.Page,
		Take:       q.Take,
	})
	if err != nil {
		writeError(ctx, h.logger, "failed to list sales", err)
		return
	}

	ctx.JSON(http.StatusOK, page)
}

func (h *salesHandler) handleGetSale(ctx *gin.Context) {
	sale, err := h.salesService.GetSale(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.logger, "failed to get sale", err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

// handleUpdateSale serves both PUT and PATCH; absent fields are left as they are.
func (h *salesHandler) handleUpdateSale(ctx *gin.Context) {
	var req updateSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	update := sales.UpdateRequest{Notes: req.Notes}
	if req.Status != nil {
		status := sales.Status(*req.Status)
		update.Status = &status
	}

	updated, err := h.salesService.UpdateSale(ctx.Request.Context(), ctx.Param("id"), update)
	if err != nil {
		writeError(ctx, h.logger, "failed to update sale", err)
		return
	}

	ctx.JSON(http.StatusOK, updated)
}

func (h *salesHandler) handleDeleteSale(ctx *gin.Context) {
	if err := h.salesService.RemoveSale(ctx.Request.Context(), ctx.Param("id")); err != nil {
		writeError(ctx, h.logger, "failed to delete sale", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// parseDate reads an optional YYYY-MM-DD query value as a UTC day.
func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return nil, errors.Wrapf(sales.ErrInvalidInput, "date %q must be YYYY-MM-DD", v)
	}
	return &t, nil
}
