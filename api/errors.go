package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sales_management/internal/sales"
)

// statusFor maps the sales error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sales.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sales.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, sales.ErrInsufficientStock),
		errors.Is(err, sales.ErrInvalidOperation),
		errors.Is(err, sales.ErrInvalidInput),
		errors.Is(err, sales.ErrInvalidStatus):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": ...}. Internal failures are logged and
// hidden from the client.
func writeError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	logger.Warn(msg, zap.Error(err), zap.Int("status", status))
	body := gin.H{"error": err.Error()}

	var stockErr *sales.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["product_id"] = stockErr.ProductID
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	}
	c.JSON(status, body)
}
