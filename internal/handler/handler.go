package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/cieslarmichal/bookstore/internal/cache"
	"github.com/cieslarmichal/bookstore/internal/database"
	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/cieslarmichal/bookstore/internal/telemetry"
	"github.com/cieslarmichal/bookstore/internal/uow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const customerIDHeader = "X-Customer-ID"

type Deps struct {
	DB        database.Service
	Isolation sql.IsolationLevel
	Carts     service.CartService
	Orders    service.OrderService
	Inventory service.InventoryService
	Cache     cache.CartCache
	Metrics   *telemetry.Metrics
	Logger    zerolog.Logger
}

type Handler struct {
	db        database.Service
	isolation sql.IsolationLevel
	carts     service.CartService
	orders    service.OrderService
	inventory service.InventoryService
	cache     cache.CartCache
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

func New(deps Deps) *Handler {
	c := deps.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &Handler{
		db:        deps.DB,
		isolation: deps.Isolation,
		carts:     deps.Carts,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		cache:     c,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "http").Logger(),
	}
}

// inTransaction runs fn in a fresh unit of work bound to the request context.
func inTransaction[T any](c *gin.Context, h *Handler, fn func(ctx context.Context, store service.Store) (T, error)) (T, error) {
	start := time.Now()
	u := uow.New(h.db.DB(), h.logger, uow.WithIsolation(h.isolation))

	result, err := uow.RunInTransaction(c.Request.Context(), u, func(ctx context.Context, u *uow.UnitOfWork) (T, error) {
		return fn(ctx, u)
	})

	outcome := "committed"
	if err != nil {
		outcome = "rolled_back"
	}
	h.metrics.TransactionsTotal.WithLabelValues(outcome).Inc()
	h.metrics.TransactionDuration.Observe(time.Since(start).Seconds())

	return result, err
}

func (h *Handler) customerID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader(customerIDHeader)
	if raw == "" {
		return uuid.Nil, &domain.Error{Code: domain.EUNAUTHORIZED, Op: "http.customer", Message: customerIDHeader + " header is required"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Invalid("http.customer", customerIDHeader+" header must be a UUID")
	}
	return id, nil
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, domain.Invalid("http.param", name+" must be a UUID")
	}
	return id, nil
}

func (h *Handler) invalidateCart(c *gin.Context, cartID uuid.UUID) {
	if err := h.cache.Delete(c.Request.Context(), cartID); err != nil {
		h.logger.Warn().Err(err).Stringer("cart_id", cartID).Msg("cart cache invalidation failed")
	}
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// requestError marks a request that could not be decoded or failed binding
// validation.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func bindError(err error) error {
	return &requestError{err: err}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = "failed on " + fe.Tag()
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{
			Code:    domain.EINVALID,
			Message: "request validation failed",
			Fields:  fields,
		}})
		return
	}

	var re *requestError
	if errors.As(err, &re) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{
			Code:    domain.EINVALID,
			Message: "malformed request: " + re.Error(),
		}})
		return
	}

	code := domain.ErrorCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{
		Code:    code,
		Message: domain.ErrorMessage(err),
		Details: errorDetails(err),
	}})
}

func statusFor(code string) int {
	switch code {
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.EINVALID:
		return http.StatusUnprocessableEntity
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ECONFLICT:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails exposes the structured context of checkout errors.
func errorDetails(err error) map[string]any {
	var (
		outOfStock *domain.LineItemOutOfInventoryError
		totalPrice *domain.InvalidTotalPriceError
		mismatch   *domain.OrderCreatorMismatchError
	)
	switch {
	case errors.As(err, &outOfStock):
		return map[string]any{
			"bookId":    outOfStock.BookID,
			"requested": outOfStock.Requested,
			"available": outOfStock.Available,
		}
	case errors.As(err, &totalPrice):
		return map[string]any{
			"cartId":   totalPrice.CartID,
			"expected": totalPrice.Expected,
			"actual":   totalPrice.Actual,
		}
	case errors.As(err, &mismatch):
		return map[string]any{
			"customerId":     mismatch.CustomerID,
			"orderCreatorId": mismatch.OrderCreatorID,
		}
	}
	return nil
}
