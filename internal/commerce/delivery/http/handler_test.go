package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/tair/commerce-ledger/docs"
	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/storetest"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/query"
	"github.com/tair/commerce-ledger/pkg/auth"
	"github.com/tair/commerce-ledger/pkg/cache"
)

func newTestRouter(t *testing.T) (*mux.Router, domain.Store) {
	t.Helper()
	return newLimitedRouter(t, nil)
}

func newLimitedRouter(t *testing.T, limiter *cache.RateLimiter) (*mux.Router, domain.Store) {
	t.Helper()
	auth.SetSecret("handler-test-secret")

	store := storetest.NewStore(t)
	storetest.Staff(t, store, domain.RoleManager)

	policy := command.Policy{DefaultVarianceThreshold: storetest.D("5")}
	ledger := command.NewStockLedger(policy)
	verifier := command.NewSafePINVerifier()
	adjust := command.NewAdjustStockHandler(store, ledger, nil)

	cmds := Commands{
		ProcessSale:       command.NewProcessSaleHandler(store, ledger, policy, nil, nil),
		AdjustStock:       adjust,
		RecordWaste:       command.NewRecordWasteHandler(adjust),
		ReceivePurchase:   command.NewReceivePurchaseHandler(adjust),
		CreateProduct:     command.NewCreateProductHandler(store, nil),
		CreateIngredient:  command.NewCreateIngredientHandler(store, nil),
		SetRecipe:         command.NewSetRecipeHandler(store, nil),
		DeleteItem:        command.NewDeleteItemHandler(store, nil),
		OpenRegister:      command.NewOpenRegisterHandler(store, policy, nil),
		RecordTransaction: command.NewRecordTransactionHandler(store, nil),
		CloseRegister:     command.NewCloseRegisterHandler(store, verifier, policy, nil, nil),
		Transfer:          command.NewTransferHandler(store, verifier, nil, nil),
		SetSafePin:        command.NewSetSafePinHandler(store),
		SetThreshold:      command.NewSetVarianceThresholdHandler(store),
		RegisterStaff:     command.NewRegisterStaffHandler(store),
		CreateProgram:     command.NewCreateLoyaltyProgramHandler(store),
		RecomputeSummary:  command.NewRecomputeMonthlySummaryHandler(store, nil),
	}
	qrys := Queries{
		ListStock:       query.NewListStockHandler(store, nil),
		ListMenu:        query.NewListMenuHandler(store, nil),
		VerifyLedger:    query.NewVerifyLedgerHandler(store),
		ListStockMoves:  query.NewListStockMovesHandler(store),
		WalletBalance:   query.NewWalletBalanceHandler(store, nil),
		ListTransfers:   query.NewListTransfersHandler(store),
		GetRegister:     query.NewGetRegisterHandler(store),
		CurrentRegister: query.NewCurrentRegisterHandler(store, nil),
		MonthlySummary:  query.NewGetMonthlySummaryHandler(store, nil),
		DailySales:      query.NewGetDailySalesHandler(store),
	}

	router := mux.NewRouter()
	NewLedgerHandler(cmds, qrys, store, limiter).RegisterRoutes(router)
	return router, store
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(storetest.UserID, storetest.TenantID, storetest.OutletID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, router http.Handler, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := do(t, router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, _ := do(t, router, "GET", "/api/stock", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, router, "GET", "/api/stock", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unscoped, err := auth.GenerateToken(storetest.UserID, storetest.TenantID, 0, "manager", time.Hour)
	require.NoError(t, err)
	rec, _ = do(t, router, "GET", "/api/stock", unscoped, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSaleFlow_OverHTTP(t *testing.T) {
	router, store := newTestRouter(t)
	tok := token(t, "manager")

	rec, resp := do(t, router, "POST", "/api/products", tok, map[string]interface{}{
		"name": "Cola", "price": "40", "initial_stock": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)
	product := resp.Data.(map[string]interface{})
	productID := uint(product["id"].(float64))

	sale := map[string]interface{}{
		"external_id":  "pos-1",
		"items":        []map[string]interface{}{{"product_id": productID, "name": "Cola", "quantity": "3", "unit_price": "40"}},
		"subtotal":     "120",
		"total":        "120",
		"payment_mode": "cash",
		"created_at":   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	rec, resp = do(t, router, "POST", "/api/sales", tok, sale)
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)

	rec, resp = do(t, router, "POST", "/api/sales", tok, sale)
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	items, err := store.Repos().Stock.ListItems(context.Background(), storetest.TenantID, storetest.OutletID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "7", items[0].CurrentStock.String())

	rec, resp = do(t, router, "GET", "/api/stock/verify", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp.Data.(map[string]interface{})["balanced"])

	rec, _ = do(t, router, "GET", "/api/summaries/2026-03", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStockErrors_MapToStatus(t *testing.T) {
	router, store := newTestRouter(t)
	tok := token(t, "staff")
	cola := storetest.Product(t, store, "Cola", "40", "2")

	rec, resp := do(t, router, "POST", "/api/stock/adjust", tok, map[string]interface{}{
		"item":  map[string]interface{}{"kind": "product", "id": cola.ID},
		"delta": "-5",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = do(t, router, "POST", "/api/stock/adjust", tok, map[string]interface{}{
		"item":  map[string]interface{}{"kind": "product", "id": 999},
		"delta": "1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, router, "POST", "/api/stock/waste", tok, map[string]interface{}{
		"item":     map[string]interface{}{"kind": "product", "id": cola.ID},
		"quantity": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterClose_RequiresExplanationOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	tok := token(t, "manager")

	rec, resp := do(t, router, "POST", "/api/registers/open", tok, map[string]interface{}{
		"business_date": "2026-03-14", "opening_cash": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)
	reg := resp.Data.(map[string]interface{})["register"].(map[string]interface{})
	closePath := fmt.Sprintf("/api/registers/%d/close", uint(reg["id"].(float64)))

	rec, _ = do(t, router, "POST", closePath, tok, map[string]interface{}{"actual_cash": "80"})
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec, resp = do(t, router, "POST", closePath, tok, map[string]interface{}{"actual_cash": "98"})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)

	rec, _ = do(t, router, "POST", closePath, tok, map[string]interface{}{"actual_cash": "98"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadyOpen, http.StatusConflict},
		{domain.ErrRegisterClosed, http.StatusUnprocessableEntity},
		{&domain.InsufficientStockError{}, http.StatusUnprocessableEntity},
		{&domain.VarianceError{}, http.StatusPreconditionRequired},
		{domain.ErrPinNotConfigured, http.StatusPreconditionRequired},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrMissingAttributionTarget, http.StatusUnprocessableEntity},
		{domain.ErrLockTimeout, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestRateLimit_PerActor(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter := cache.NewRateLimiter(cache.NewWithClient(client, time.Minute), 2, time.Minute)

	router, _ := newLimitedRouter(t, limiter)
	tok := token(t, "staff")

	for i := 0; i < 2; i++ {
		rec, _ := do(t, router, "GET", "/api/stock", tok, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec, resp := do(t, router, "GET", "/api/stock", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec, _ = do(t, router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSwaggerDocs_CoverEveryRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	RegisterSwaggerDocs(router, httpSwagger.WrapHandler)

	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc.Paths["/api/sales"], "post")

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil || !strings.HasPrefix(path, "/api/") {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			return nil
		}
		for _, m := range methods {
			assert.Contains(t, doc.Paths[path], strings.ToLower(m), "undocumented route %s %s", m, path)
		}
		return nil
	})
	require.NoError(t, err)
}
