package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cieslarmichal/bookstore/internal/cache"
	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/cieslarmichal/bookstore/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeDB struct {
	db     *sql.DB
	health map[string]string
}

func (f *fakeDB) Health(context.Context) map[string]string { return f.health }
func (f *fakeDB) DB() *sql.DB                              { return f.db }
func (f *fakeDB) Close() error                             { return nil }

type mockOrders struct{ mock.Mock }

func (m *mockOrders) CreateOrder(_ context.Context, _ service.Store, draft service.CreateOrderDraft) (*domain.Order, error) {
	args := m.Called(draft)
	order, _ := args.Get(0).(*domain.Order)
	return order, args.Error(1)
}

func (m *mockOrders) FindOrders(_ context.Context, _ service.Store, customerID uuid.UUID, page domain.Pagination) ([]domain.Order, error) {
	args := m.Called(customerID, page)
	orders, _ := args.Get(0).([]domain.Order)
	return orders, args.Error(1)
}

func (m *mockOrders) FindOrder(_ context.Context, _ service.Store, orderID, customerID uuid.UUID) (*domain.Order, error) {
	args := m.Called(orderID, customerID)
	order, _ := args.Get(0).(*domain.Order)
	return order, args.Error(1)
}

type mockCarts struct{ mock.Mock }

func (m *mockCarts) CreateCart(_ context.Context, _ service.Store, draft service.CreateCartDraft) (*domain.Cart, error) {
	args := m.Called(draft)
	cart, _ := args.Get(0).(*domain.Cart)
	return cart, args.Error(1)
}

func (m *mockCarts) FindCart(_ context.Context, _ service.Store, cartID, customerID uuid.UUID) (*domain.Cart, error) {
	args := m.Called(cartID, customerID)
	cart, _ := args.Get(0).(*domain.Cart)
	return cart, args.Error(1)
}

func (m *mockCarts) UpdateCart(_ context.Context, _ service.Store, cartID, customerID uuid.UUID, draft service.UpdateCartDraft) (*domain.Cart, error) {
	args := m.Called(cartID, customerID, draft)
	cart, _ := args.Get(0).(*domain.Cart)
	return cart, args.Error(1)
}

func (m *mockCarts) AddLineItem(_ context.Context, _ service.Store, cartID, customerID uuid.UUID, draft service.AddLineItemDraft) (*domain.Cart, error) {
	args := m.Called(cartID, customerID, draft)
	cart, _ := args.Get(0).(*domain.Cart)
	return cart, args.Error(1)
}

func (m *mockCarts) RemoveLineItem(_ context.Context, _ service.Store, cartID, customerID uuid.UUID, draft service.RemoveLineItemDraft) (*domain.Cart, error) {
	args := m.Called(cartID, customerID, draft)
	cart, _ := args.Get(0).(*domain.Cart)
	return cart, args.Error(1)
}

func (m *mockCarts) DeleteCart(_ context.Context, _ service.Store, cartID, customerID uuid.UUID) error {
	return m.Called(cartID, customerID).Error(0)
}

type mockInventory struct{ mock.Mock }

func (m *mockInventory) CreateInventory(_ context.Context, _ service.Store, bookID uuid.UUID, quantity int) (*domain.Inventory, error) {
	args := m.Called(bookID, quantity)
	inv, _ := args.Get(0).(*domain.Inventory)
	return inv, args.Error(1)
}

func (m *mockInventory) FindInventory(_ context.Context, _ service.Store, bookID uuid.UUID) (*domain.Inventory, error) {
	args := m.Called(bookID)
	inv, _ := args.Get(0).(*domain.Inventory)
	return inv, args.Error(1)
}

func (m *mockInventory) UpdateInventory(_ context.Context, _ service.Store, bookID uuid.UUID, quantity int) (*domain.Inventory, error) {
	args := m.Called(bookID, quantity)
	inv, _ := args.Get(0).(*domain.Inventory)
	return inv, args.Error(1)
}

type memCache struct {
	carts   map[uuid.UUID]*domain.Cart
	deleted []uuid.UUID
}

func (c *memCache) Get(_ context.Context, id uuid.UUID) (*domain.Cart, error) {
	if cart, ok := c.carts[id]; ok {
		return cart, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *memCache) Set(_ context.Context, cart *domain.Cart) error {
	c.carts[cart.ID] = cart
	return nil
}

func (c *memCache) Delete(_ context.Context, id uuid.UUID) error {
	c.deleted = append(c.deleted, id)
	delete(c.carts, id)
	return nil
}

type testServer struct {
	router    *gin.Engine
	sql       sqlmock.Sqlmock
	db        *fakeDB
	orders    *mockOrders
	carts     *mockCarts
	inventory *mockInventory
	cache     *memCache
	metrics   *telemetry.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)

	ts := &testServer{
		sql:       sqlMock,
		db:        &fakeDB{db: db, health: map[string]string{"status": "up"}},
		orders:    &mockOrders{},
		carts:     &mockCarts{},
		inventory: &mockInventory{},
		cache:     &memCache{carts: map[uuid.UUID]*domain.Cart{}},
		metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
	}

	h := New(Deps{
		DB:        ts.db,
		Isolation: sql.LevelReadCommitted,
		Carts:     ts.carts,
		Orders:    ts.orders,
		Inventory: ts.inventory,
		Cache:     ts.cache,
		Metrics:   ts.metrics,
		Logger:    zerolog.Nop(),
	})
	ts.router, err = NewRouter(h, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		ts.orders.AssertExpectations(t)
		ts.carts.AssertExpectations(t)
		ts.inventory.AssertExpectations(t)
	})
	return ts
}

func (ts *testServer) do(method, path string, body any, customerID *uuid.UUID) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if customerID != nil {
		req.Header.Set(customerIDHeader, customerID.String())
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreateOrder_Success(t *testing.T) {
	ts := newTestServer(t)
	customer, cartID := uuid.New(), uuid.New()
	order := &domain.Order{
		ID:            uuid.New(),
		CustomerID:    customer,
		CartID:        cartID,
		OrderNumber:   "ORD-01J0000000000000000000000",
		PaymentMethod: domain.PaymentCard,
		Status:        domain.OrderCreated,
	}

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.orders.On("CreateOrder", service.CreateOrderDraft{
		CartID:         cartID,
		PaymentMethod:  domain.PaymentCard,
		OrderCreatorID: customer,
	}).Return(order, nil)

	rec := ts.do(http.MethodPost, "/orders", gin.H{"cartId": cartID, "paymentMethod": "card"}, &customer)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.Equal(t, []uuid.UUID{cartID}, ts.cache.deleted)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.CheckoutCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.TransactionsTotal.WithLabelValues("committed")))
}

func TestCreateOrder_OutOfInventoryRollsBack(t *testing.T) {
	ts := newTestServer(t)
	customer, cartID, bookID := uuid.New(), uuid.New(), uuid.New()

	ts.sql.ExpectBegin()
	ts.sql.ExpectRollback()
	ts.orders.On("CreateOrder", mock.Anything).
		Return(nil, &domain.LineItemOutOfInventoryError{BookID: bookID, Requested: 3, Available: 1})

	rec := ts.do(http.MethodPost, "/orders", gin.H{"cartId": cartID, "paymentMethod": "bank_transfer"}, &customer)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, domain.ECONFLICT, body.Code)
	assert.Equal(t, bookID.String(), body.Details["bookId"])
	assert.EqualValues(t, 3, body.Details["requested"])
	assert.EqualValues(t, 1, body.Details["available"])

	assert.Empty(t, ts.cache.deleted)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.CheckoutFailed.WithLabelValues(domain.ECONFLICT)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.metrics.TransactionsTotal.WithLabelValues("rolled_back")))
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"cart missing", &domain.CartNotFoundError{CartID: uuid.New()}, http.StatusNotFound, domain.ENOTFOUND},
		{"not the owner", &domain.OrderCreatorMismatchError{CustomerID: uuid.New(), OrderCreatorID: uuid.New()}, http.StatusForbidden, domain.EFORBIDDEN},
		{"incomplete cart", &domain.DeliveryMethodNotProvidedError{CartID: uuid.New()}, http.StatusUnprocessableEntity, domain.EINVALID},
		{"database down", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, domain.EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			customer := uuid.New()

			ts.sql.ExpectBegin()
			ts.sql.ExpectRollback()
			ts.orders.On("CreateOrder", mock.Anything).Return(nil, tt.err)

			rec := ts.do(http.MethodPost, "/orders", gin.H{"cartId": uuid.New(), "paymentMethod": "card"}, &customer)

			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			if tt.code == domain.EINTERNAL {
				assert.NotContains(t, body.Message, "connection refused")
			}
		})
	}
}

func TestCreateOrder_RejectsRequestBeforeTransaction(t *testing.T) {
	customer := uuid.New()

	t.Run("missing customer header", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodPost, "/orders", gin.H{"cartId": uuid.New(), "paymentMethod": "card"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown payment method", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodPost, "/orders", gin.H{"cartId": uuid.New(), "paymentMethod": "crypto"}, &customer)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "failed on payment_method", body.Fields["PaymentMethod"])
	})

	t.Run("missing cart id", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodPost, "/orders", gin.H{"paymentMethod": "card"}, &customer)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Fields, "CartID")
	})

	t.Run("malformed json", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{"))
		req.Header.Set(customerIDHeader, customer.String())
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFindOrders(t *testing.T) {
	customer := uuid.New()

	t.Run("own orders", func(t *testing.T) {
		ts := newTestServer(t)
		ts.sql.ExpectBegin()
		ts.sql.ExpectCommit()
		ts.orders.On("FindOrders", customer, domain.Pagination{Page: 2, Limit: 5}).
			Return([]domain.Order{{ID: uuid.New(), CustomerID: customer}}, nil)

		rec := ts.do(http.MethodGet, "/orders?customerId="+customer.String()+"&page=2&limit=5", nil, &customer)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ordersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Data, 1)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, 5, resp.Limit)
	})

	t.Run("limit is capped", func(t *testing.T) {
		ts := newTestServer(t)
		ts.sql.ExpectBegin()
		ts.sql.ExpectCommit()
		ts.orders.On("FindOrders", customer, domain.Pagination{Page: 1, Limit: domain.MaxPageLimit}).
			Return(nil, nil)

		rec := ts.do(http.MethodGet, "/orders?limit=1000", nil, &customer)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[],"page":1,"limit":100}`, rec.Body.String())
	})

	t.Run("another customer", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodGet, "/orders?customerId="+uuid.NewString(), nil, &customer)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("page zero", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodGet, "/orders?page=0", nil, &customer)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestFindCart_UsesCache(t *testing.T) {
	ts := newTestServer(t)
	customer := uuid.New()
	cart := domain.NewCart(customer)

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.carts.On("FindCart", cart.ID, customer).Return(cart, nil).Once()

	first := ts.do(http.MethodGet, "/carts/"+cart.ID.String(), nil, &customer)
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.do(http.MethodGet, "/carts/"+cart.ID.String(), nil, &customer)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	stranger := uuid.New()
	third := ts.do(http.MethodGet, "/carts/"+cart.ID.String(), nil, &stranger)
	require.Equal(t, http.StatusNotFound, third.Code)
	assert.Equal(t, domain.ENOTFOUND, decodeError(t, third).Code)
}

func TestFindCart_InvalidID(t *testing.T) {
	ts := newTestServer(t)
	customer := uuid.New()
	rec := ts.do(http.MethodGet, "/carts/not-a-uuid", nil, &customer)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAddLineItem_InvalidatesCache(t *testing.T) {
	ts := newTestServer(t)
	customer := uuid.New()
	cart := domain.NewCart(customer)
	bookID := uuid.New()
	ts.cache.carts[cart.ID] = cart

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.carts.On("AddLineItem", cart.ID, customer, service.AddLineItemDraft{
		BookID:   bookID,
		Price:    decimal.RequireFromString("12.50"),
		Quantity: 2,
	}).Return(cart, nil)

	rec := ts.do(http.MethodPost, "/carts/"+cart.ID.String()+"/line-items",
		gin.H{"bookId": bookID, "price": "12.50", "quantity": 2}, &customer)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []uuid.UUID{cart.ID}, ts.cache.deleted)
	assert.NotContains(t, ts.cache.carts, cart.ID)
}

func TestAddLineItem_RejectsNegativePrice(t *testing.T) {
	ts := newTestServer(t)
	customer := uuid.New()
	rec := ts.do(http.MethodPost, "/carts/"+uuid.NewString()+"/line-items",
		gin.H{"bookId": uuid.New(), "price": "-1", "quantity": 1}, &customer)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "Price")
}

func TestRemoveLineItem(t *testing.T) {
	ts := newTestServer(t)
	customer, cartID, lineItemID := uuid.New(), uuid.New(), uuid.New()

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.carts.On("RemoveLineItem", cartID, customer, service.RemoveLineItemDraft{LineItemID: lineItemID, Quantity: 2}).
		Return(domain.NewCart(customer), nil)

	rec := ts.do(http.MethodDelete, "/carts/"+cartID.String()+"/line-items/"+lineItemID.String()+"?quantity=2", nil, &customer)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/carts/"+cartID.String()+"/line-items/"+lineItemID.String(), nil, &customer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartRoutes_RequireCustomer(t *testing.T) {
	cartID, lineItemID := uuid.New(), uuid.New()
	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"find", http.MethodGet, "/carts/" + cartID.String(), nil},
		{"update", http.MethodPatch, "/carts/" + cartID.String(), gin.H{"status": "inactive"}},
		{"add line item", http.MethodPost, "/carts/" + cartID.String() + "/line-items", gin.H{"bookId": uuid.New(), "price": "1.00", "quantity": 1}},
		{"remove line item", http.MethodDelete, "/carts/" + cartID.String() + "/line-items/" + lineItemID.String() + "?quantity=1", nil},
		{"delete", http.MethodDelete, "/carts/" + cartID.String(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(tt.method, tt.path, tt.body, nil)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, domain.EUNAUTHORIZED, decodeError(t, rec).Code)
			assert.Empty(t, ts.cache.deleted)
		})
	}
}

func TestCartRoutes_OtherCustomersCart(t *testing.T) {
	stranger, cartID := uuid.New(), uuid.New()
	notFound := &domain.CartNotFoundError{CartID: cartID}

	t.Run("update", func(t *testing.T) {
		ts := newTestServer(t)
		inactive := domain.CartInactive
		ts.sql.ExpectBegin()
		ts.sql.ExpectRollback()
		ts.carts.On("UpdateCart", cartID, stranger, service.UpdateCartDraft{Status: &inactive}).Return(nil, notFound)

		rec := ts.do(http.MethodPatch, "/carts/"+cartID.String(), gin.H{"status": "inactive"}, &stranger)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, ts.cache.deleted)
	})

	t.Run("delete", func(t *testing.T) {
		ts := newTestServer(t)
		ts.sql.ExpectBegin()
		ts.sql.ExpectRollback()
		ts.carts.On("DeleteCart", cartID, stranger).Return(notFound)

		rec := ts.do(http.MethodDelete, "/carts/"+cartID.String(), nil, &stranger)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, ts.cache.deleted)
	})
}

func TestDeleteCart(t *testing.T) {
	ts := newTestServer(t)
	customer := uuid.New()
	cart := domain.NewCart(customer)
	ts.cache.carts[cart.ID] = cart

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.carts.On("DeleteCart", cart.ID, customer).Return(nil)

	rec := ts.do(http.MethodDelete, "/carts/"+cart.ID.String(), nil, &customer)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uuid.UUID{cart.ID}, ts.cache.deleted)
}

func TestCreateCart(t *testing.T) {
	ts := newTestServer(t)
	customer := uuid.New()
	express := domain.DeliveryExpress

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.carts.On("CreateCart", service.CreateCartDraft{CustomerID: customer, DeliveryMethod: &express}).
		Return(domain.NewCart(customer), nil)

	rec := ts.do(http.MethodPost, "/carts", gin.H{"deliveryMethod": "express"}, &customer)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/carts", gin.H{"deliveryMethod": "drone"}, &customer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInventoryRoutes(t *testing.T) {
	ts := newTestServer(t)
	bookID := uuid.New()
	inv := &domain.Inventory{ID: uuid.New(), BookID: bookID, Quantity: 0}

	ts.sql.ExpectBegin()
	ts.sql.ExpectCommit()
	ts.inventory.On("CreateInventory", bookID, 0).Return(inv, nil)

	rec := ts.do(http.MethodPost, "/inventories", gin.H{"bookId": bookID, "quantity": 0}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/inventories", gin.H{"bookId": bookID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.sql.ExpectBegin()
	ts.sql.ExpectRollback()
	ts.inventory.On("UpdateInventory", bookID, 5).Return(nil, &domain.InventoryNotFoundError{BookID: bookID})

	rec = ts.do(http.MethodPatch, "/inventories/"+bookID.String(), gin.H{"quantity": 5}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.db.health = map[string]string{"status": "down", "error": "db down"}
	rec = ts.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
