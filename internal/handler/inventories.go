package handler

import (
	"context"
	"net/http"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type createInventoryRequest struct {
	BookID   uuid.UUID `json:"bookId" binding:"required"`
	Quantity *int      `json:"quantity" binding:"required,gte=0"`
}

type updateInventoryRequest struct {
	Quantity *int `json:"quantity" binding:"required,gte=0"`
}

func (h *Handler) createInventory(c *gin.Context) {
	var req createInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	inventory, err := inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Inventory, error) {
		return h.inventory.CreateInventory(ctx, store, req.BookID, *req.Quantity)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inventory)
}

func (h *Handler) findInventory(c *gin.Context) {
	bookID, err := uuidParam(c, "bookId")
	if err != nil {
		h.writeError(c, err)
		return
	}

	inventory, err := inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Inventory, error) {
		return h.inventory.FindInventory(ctx, store, bookID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory)
}

func (h *Handler) updateInventory(c *gin.Context) {
	bookID, err := uuidParam(c, "bookId")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req updateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	inventory, err := inTransaction(c, h, func(ctx context.Context, store service.Store) (*domain.Inventory, error) {
		return h.inventory.UpdateInventory(ctx, store, bookID, *req.Quantity)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventory)
}
