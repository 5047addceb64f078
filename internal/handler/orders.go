package handler

import (
	"context"
	"net/http"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createOrderRequest struct {
	CartID        uuid.UUID `json:"cartId" binding:"required"`
	PaymentMethod string    `json:"paymentMethod" binding:"required,payment_method"`
}

type findOrdersQuery struct {
	CustomerID string `form:"customerId" binding:"omitempty,uuid"`
	Page       int    `form:"page,default=1"`
	Limit      int    `form:"limit,default=10"`
}

type ordersResponse struct {
	Data  []domain.Order `json:"data"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// createOrder checks out a cart. The cart, its inventories and the new order
// change together or not at all.
func (h *Handler) createOrder(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	h.metrics.CheckoutStarted.Inc()

	draft := service.CreateOrderDraft{
		CartID:         req.CartID,
		PaymentMethod:  domain.PaymentMethod(req.PaymentMethod),
		OrderCreatorID: customerID,
	}
	order, err := inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Order, error) {
		return h.orders.CreateOrder(ctx, store, draft)
	})
	if err != nil {
		h.metrics.CheckoutFailed.WithLabelValues(domain.ErrorCode(err)).Inc()
		h.writeError(c, err)
		return
	}

	h.metrics.CheckoutCompleted.Inc()
	h.invalidateCart(c, req.CartID)
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) findOrders(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var q findOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	if q.CustomerID != "" && q.CustomerID != customerID.String() {
		h.writeError(c, &domain.Error{
			Code:    domain.EFORBIDDEN,
			Op:      "order.find_many",
			Message: "orders of other customers cannot be listed",
		})
		return
	}

	page, err := domain.Pagination{Page: q.Page, Limit: q.Limit}.Normalize()
	if err != nil {
		h.writeError(c, err)
		return
	}

	orders, err := inTransaction(c, h, func(ctx context.Context, store service.Store) ([]domain.Order, error) {
		return h.orders.FindOrders(ctx, store, customerID, page)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	c.JSON(http.StatusOK, ordersResponse{Data: orders, Page: page.Page, Limit: page.Limit})
}

func (h *Handler) findOrder(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	orderID, err := uuidParam(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	order, err := inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Order, error) {
		return h.orders.FindOrder(ctx, store, orderID, customerID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
