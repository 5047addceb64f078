package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/cieslarmichal/bookstore/internal/cache"
	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createCartRequest struct {
	BillingAddressID  *uuid.UUID `json:"billingAddressId"`
	ShippingAddressID *uuid.UUID `json:"shippingAddressId"`
	DeliveryMethod    *string    `json:"deliveryMethod" binding:"omitempty,delivery_method"`
}

type updateCartRequest struct {
	Status            *string    `json:"status" binding:"omitempty,oneof=active inactive"`
	BillingAddressID  *uuid.UUID `json:"billingAddressId"`
	ShippingAddressID *uuid.UUID `json:"shippingAddressId"`
	DeliveryMethod    *string    `json:"deliveryMethod" binding:"omitempty,delivery_method"`
}

type addLineItemRequest struct {
	BookID   uuid.UUID       `json:"bookId" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"money"`
	Quantity int             `json:"quantity" binding:"required,gt=0"`
}

type removeLineItemQuery struct {
	Quantity int `form:"quantity" binding:"required,gt=0"`
}

func (h *Handler) createCart(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req createCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	draft := service.CreateCartDraft{
		CustomerID:        customerID,
		BillingAddressID:  req.BillingAddressID,
		ShippingAddressID: req.ShippingAddressID,
	}
	if req.DeliveryMethod != nil {
		m := domain.DeliveryMethod(*req.DeliveryMethod)
		draft.DeliveryMethod = &m
	}

	cart, err := inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Cart, error) {
		return h.carts.CreateCart(ctx, store, draft)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

// findCart serves committed carts from the cache and fills it on a miss.
// Cached carts of other customers are reported as not found.
func (h *Handler) findCart(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	cartID, err := uuidParam(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	cart, err := h.cache.Get(ctx, cartID)
	if err == nil {
		if cart.CustomerID != customerID {
			h.writeError(c, &domain.CartNotFoundError{CartID: cartID})
			return
		}
		c.JSON(http.StatusOK, cart)
		return
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		h.logger.Warn().Err(err).Stringer("cart_id", cartID).Msg("cart cache read failed")
	}

	cart, err = inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Cart, error) {
		return h.carts.FindCart(ctx, store, cartID, customerID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.cache.Set(ctx, cart); err != nil {
		h.logger.Warn().Err(err).Stringer("cart_id", cartID).Msg("cart cache write failed")
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) updateCart(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	cartID, err := uuidParam(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req updateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	draft := service.UpdateCartDraft{
		BillingAddressID:  req.BillingAddressID,
		ShippingAddressID: req.ShippingAddressID,
	}
	if req.Status != nil {
		s := domain.CartStatus(*req.Status)
		draft.Status = &s
	}
	if req.DeliveryMethod != nil {
		m := domain.DeliveryMethod(*req.DeliveryMethod)
		draft.DeliveryMethod = &m
	}

	h.mutateCart(c, http.StatusOK, cartID, func(ctx context.Context, store service.Store) (*domain.Cart, error) {
		return h.carts.UpdateCart(ctx, store, cartID, customerID, draft)
	})
}

func (h *Handler) addLineItem(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	cartID, err := uuidParam(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req addLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	draft := service.AddLineItemDraft{BookID: req.BookID, Price: req.Price, Quantity: req.Quantity}
	h.mutateCart(c, http.StatusCreated, cartID, func(ctx context.Context, store service.Store) (*domain.Cart, error) {
		return h.carts.AddLineItem(ctx, store, cartID, customerID, draft)
	})
}

func (h *Handler) removeLineItem(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	cartID, err := uuidParam(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}
	lineItemID, err := uuidParam(c, "lineItemId")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var q removeLineItemQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	draft := service.RemoveLineItemDraft{LineItemID: lineItemID, Quantity: q.Quantity}
	h.mutateCart(c, http.StatusOK, cartID, func(ctx context.Context, store service.Store) (*domain.Cart, error) {
		return h.carts.RemoveLineItem(ctx, store, cartID, customerID, draft)
	})
}

func (h *Handler) deleteCart(c *gin.Context) {
	customerID, err := h.customerID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	cartID, err := uuidParam(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	_, err = inTransaction(c, h, func(ctx context.Context, store service.Store) (struct{}, error) {
		return struct{}{}, h.carts.DeleteCart(ctx, store, cartID, customerID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCart(c, cartID)
	c.Status(http.StatusNoContent)
}

// mutateCart runs a cart mutation and drops the cached copy once it committed.
func (h *Handler) mutateCart(c *gin.Context, status int, cartID uuid.UUID, fn func(ctx context.Context, store service.Store) (*domain.Cart, error)) {
	cart, err := inTransaction(c, h, fn)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCart(c, cartID)
	c.JSON(status, cart)
}
