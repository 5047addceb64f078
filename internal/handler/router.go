package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine. metrics serves the Prometheus scrape
// endpoint and may be nil.
func NewRouter(h *Handler, metrics http.Handler) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", customerIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", h.health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	carts := r.Group("/carts")
	carts.POST("", h.createCart)
	carts.GET("/:id", h.findCart)
	carts.PATCH("/:id", h.updateCart)
	carts.DELETE("/:id", h.deleteCart)
	carts.POST("/:id/line-items", h.addLineItem)
	carts.DELETE("/:id/line-items/:lineItemId", h.removeLineItem)

	inventories := r.Group("/inventories")
	inventories.POST("", h.createInventory)
	inventories.GET("/:bookId", h.findInventory)
	inventories.PATCH("/:bookId", h.updateInventory)

	orders := r.Group("/orders")
	orders.POST("", h.createOrder)
	orders.GET("", h.findOrders)
	orders.GET("/:id", h.findOrder)

	return r, nil
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		h.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))

		event := h.logger.Info()
		if status >= http.StatusInternalServerError {
			event = h.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request handled")
	}
}
