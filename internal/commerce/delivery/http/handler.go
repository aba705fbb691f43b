package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/query"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// Commands groups the write-side handlers served over HTTP
type Commands struct {
	ProcessSale       *command.ProcessSaleHandler
	AdjustStock       *command.AdjustStockHandler
	RecordWaste       *command.RecordWasteHandler
	ReceivePurchase   *command.ReceivePurchaseHandler
	CreateProduct     *command.CreateProductHandler
	CreateIngredient  *command.CreateIngredientHandler
	SetRecipe         *command.SetRecipeHandler
	DeleteItem        *command.DeleteItemHandler
	OpenRegister      *command.OpenRegisterHandler
	RecordTransaction *command.RecordTransactionHandler
	CloseRegister     *command.CloseRegisterHandler
	Transfer          *command.TransferHandler
	SetSafePin        *command.SetSafePinHandler
	SetThreshold      *command.SetVarianceThresholdHandler
	RegisterStaff     *command.RegisterStaffHandler
	CreateProgram     *command.CreateLoyaltyProgramHandler
	RecomputeSummary  *command.RecomputeMonthlySummaryHandler
}

// Queries groups the read-side handlers served over HTTP
type Queries struct {
	ListStock       *query.ListStockHandler
	ListMenu        *query.ListMenuHandler
	VerifyLedger    *query.VerifyLedgerHandler
	ListStockMoves  *query.ListStockMovesHandler
	WalletBalance   *query.WalletBalanceHandler
	ListTransfers   *query.ListTransfersHandler
	GetRegister     *query.GetRegisterHandler
	CurrentRegister *query.CurrentRegisterHandler
	MonthlySummary  *query.GetMonthlySummaryHandler
	DailySales      *query.GetDailySalesHandler
}

// LedgerHandler handles HTTP requests for the commerce ledger
type LedgerHandler struct {
	cmd     Commands
	qry     Queries
	store   domain.Store
	limiter *cache.RateLimiter
}

// NewLedgerHandler creates a new ledger handler. A nil limiter disables rate limiting.
func NewLedgerHandler(cmd Commands, qry Queries, store domain.Store, limiter *cache.RateLimiter) *LedgerHandler {
	return &LedgerHandler{cmd: cmd, qry: qry, store: store, limiter: limiter}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// metricsMiddleware wraps handlers with Prometheus metrics
func metricsMiddleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		metrics.HTTPRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.statusCode)).Inc()
		metrics.HTTPLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// RegisterRoutes mounts every ledger endpoint on router
func (h *LedgerHandler) RegisterRoutes(router *mux.Router) {
	route := func(path, method string, fn func(http.ResponseWriter, *http.Request, domain.RequestContext)) {
		router.HandleFunc(path, metricsMiddleware(path, AuthMiddleware(RateLimitMiddleware(h.limiter, h.scoped(fn))))).Methods(method)
	}

	router.HandleFunc("/health", h.Health).Methods("GET")

	route("/api/sales", "POST", h.ProcessSale)

	route("/api/stock", "GET", h.ListStock)
	route("/api/stock/verify", "GET", h.VerifyLedger)
	route("/api/stock/moves", "GET", h.ListStockMoves)
	route("/api/stock/adjust", "POST", h.AdjustStock)
	route("/api/stock/waste", "POST", h.RecordWaste)
	route("/api/stock/purchase", "POST", h.ReceivePurchase)

	route("/api/menu", "GET", h.ListMenu)
	route("/api/products", "POST", h.CreateProduct)
	route("/api/products/{id}", "DELETE", h.deleteItem(domain.KindProduct))
	route("/api/products/{id}/recipe", "PUT", h.SetRecipe)
	route("/api/ingredients", "POST", h.CreateIngredient)
	route("/api/ingredients/{id}", "DELETE", h.deleteItem(domain.KindIngredient))

	route("/api/registers/open", "POST", h.OpenRegister)
	route("/api/registers/current", "GET", h.CurrentRegister)
	route("/api/registers/{id}", "GET", h.GetRegister)
	route("/api/registers/{id}/transactions", "POST", h.RecordTransaction)
	route("/api/registers/{id}/close", "POST", h.CloseRegister)

	route("/api/wallets/transfer", "POST", h.Transfer)
	route("/api/wallets/transfers", "GET", h.ListTransfers)
	route("/api/wallets/pin", "PUT", h.SetSafePin)
	route("/api/wallets/{type}/balance", "GET", h.WalletBalance)

	route("/api/summaries/{month}", "GET", h.MonthlySummary)
	route("/api/summaries/{month}/recompute", "POST", h.RecomputeSummary)
	route("/api/daily-sales/{date}", "GET", h.DailySales)

	route("/api/settings/variance-threshold", "PUT", h.SetVarianceThreshold)
	route("/api/staff", "POST", h.RegisterStaff)
	route("/api/loyalty/programs", "POST", h.CreateLoyaltyProgram)
}

func (h *LedgerHandler) scoped(fn func(http.ResponseWriter, *http.Request, domain.RequestContext)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, ok := RequestContextFrom(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "Unauthenticated request")
			return
		}
		fn(w, r, rc)
	}
}

// Health godoc
// @Summary Service health
// @Tags Health
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health [get]
func (h *LedgerHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "database unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
}

type saleLineRequest struct {
	ProductID *uint           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type saleRequest struct {
	ExternalID    string            `json:"external_id"`
	Items         []saleLineRequest `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Discount      decimal.Decimal   `json:"discount"`
	Total         decimal.Decimal   `json:"total"`
	PaymentMode   string            `json:"payment_mode"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	CustomerPhone string            `json:"customer_phone"`
	CustomerName  string            `json:"customer_name"`
	RedeemReward  bool              `json:"redeem_reward"`
}

// ProcessSale godoc
// @Summary Record a completed or pending sale
// @Tags Sales
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body saleRequest true "Sale"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 422 {object} Response
// @Failure 503 {object} Response
// @Router /api/sales [post]
func (h *LedgerHandler) ProcessSale(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req saleRequest
	if !decode(w, r, &req) {
		return
	}

	cmd := command.ProcessSaleCommand{
		ExternalID:   req.ExternalID,
		Subtotal:     req.Subtotal,
		Discount:     req.Discount,
		Total:        req.Total,
		PaymentMode:  domain.PaymentMode(strings.ToUpper(req.PaymentMode)),
		Status:       domain.OrderStatus(strings.ToUpper(req.Status)),
		CreatedAt:    req.CreatedAt,
		RedeemReward: req.RedeemReward,
	}
	for _, it := range req.Items {
		cmd.Lines = append(cmd.Lines, command.SaleLineInput(it))
	}
	if req.CustomerPhone != "" {
		cmd.Customer = &command.CustomerRef{Phone: req.CustomerPhone, Name: req.CustomerName}
	}

	res, err := h.cmd.ProcessSale.Handle(r.Context(), rc, cmd)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Redelivered {
		status = http.StatusOK
	}
	respondJSON(w, status, Response{Success: true, Data: res})
}

type itemRefRequest struct {
	Kind string `json:"kind"`
	ID   uint   `json:"id"`
}

func (req itemRefRequest) ref() domain.ItemRef {
	return domain.ItemRef{Kind: domain.ItemKind(strings.ToUpper(req.Kind)), ID: req.ID}
}

// AdjustStock godoc
// @Summary Adjust stock by a signed delta
// @Tags Stock
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{item=itemRefRequest,delta=number,type=string,note=string} true "Adjustment"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 422 {object} Response
// @Failure 503 {object} Response
// @Router /api/stock/adjust [post]
func (h *LedgerHandler) AdjustStock(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		Item  itemRefRequest  `json:"item"`
		Delta decimal.Decimal `json:"delta"`
		Type  string          `json:"type"`
		Note  string          `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = string(domain.MoveAdjustment)
	}

	item, err := h.cmd.AdjustStock.Handle(r.Context(), rc, command.AdjustStockCommand{
		Ref:   req.Item.ref(),
		Delta: req.Delta,
		Type:  domain.MoveType(strings.ToUpper(req.Type)),
		Note:  req.Note,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: item})
}

type quantityRequest struct {
	Item     itemRefRequest  `json:"item"`
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note"`
}

// RecordWaste godoc
// @Summary Record wasted stock
// @Tags Stock
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body quantityRequest true "Waste"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 422 {object} Response
// @Failure 503 {object} Response
// @Router /api/stock/waste [post]
func (h *LedgerHandler) RecordWaste(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}

	item, err := h.cmd.RecordWaste.Handle(r.Context(), rc, command.RecordWasteCommand{
		Ref:      req.Item.ref(),
		Quantity: req.Quantity,
		Note:     req.Note,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: item})
}

// ReceivePurchase godoc
// @Summary Receive purchased stock
// @Tags Stock
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body quantityRequest true "Purchase"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 503 {object} Response
// @Router /api/stock/purchase [post]
func (h *LedgerHandler) ReceivePurchase(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}

	item, err := h.cmd.ReceivePurchase.Handle(r.Context(), rc, command.ReceivePurchaseCommand{
		Ref:      req.Item.ref(),
		Quantity: req.Quantity,
		Note:     req.Note,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: item})
}

// ListStock godoc
// @Summary List stock levels
// @Tags Stock
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /api/stock [get]
func (h *LedgerHandler) ListStock(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	items, err := h.qry.ListStock.Handle(r.Context(), rc)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: items})
}

// VerifyLedger godoc
// @Summary Compare stock levels with the move ledger
// @Tags Stock
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /api/stock/verify [get]
func (h *LedgerHandler) VerifyLedger(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	mismatches, err := h.qry.VerifyLedger.Handle(r.Context(), rc)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"balanced":   len(mismatches) == 0,
			"mismatches": mismatches,
		},
	})
}

// ListStockMoves godoc
// @Summary List stock moves for one item
// @Tags Stock
// @Security BearerAuth
// @Produce json
// @Param kind query string true "PRODUCT or INGREDIENT"
// @Param id query int true "Item ID"
// @Param limit query int false "Max rows"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/stock/moves [get]
func (h *LedgerHandler) ListStockMoves(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	q := r.URL.Query()
	id, err := strconv.ParseUint(q.Get("id"), 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	moves, err := h.qry.ListStockMoves.Handle(r.Context(), rc, query.ListStockMovesQuery{
		Ref:   itemRefRequest{Kind: q.Get("kind"), ID: uint(id)}.ref(),
		Limit: limit,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: moves})
}

// ListMenu godoc
// @Summary List products with recipes
// @Tags Menu
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /api/menu [get]
func (h *LedgerHandler) ListMenu(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	menu, err := h.qry.ListMenu.Handle(r.Context(), rc)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: menu})
}

// CreateProduct godoc
// @Summary Create a product
// @Tags Menu
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{name=string,sku=string,price=number,initial_stock=number,min_stock=number} true "Product"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/products [post]
func (h *LedgerHandler) CreateProduct(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		Name         string          `json:"name"`
		SKU          string          `json:"sku"`
		Price        decimal.Decimal `json:"price"`
		InitialStock decimal.Decimal `json:"initial_stock"`
		MinStock     decimal.Decimal `json:"min_stock"`
	}
	if !decode(w, r, &req) {
		return
	}

	product, err := h.cmd.CreateProduct.Handle(r.Context(), rc, command.CreateProductCommand(req))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Message: "Product created successfully", Data: product})
}

// CreateIngredient godoc
// @Summary Create an ingredient
// @Tags Menu
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{name=string,unit=string,initial_stock=number,min_stock=number} true "Ingredient"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/ingredients [post]
func (h *LedgerHandler) CreateIngredient(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		Name         string          `json:"name"`
		Unit         string          `json:"unit"`
		InitialStock decimal.Decimal `json:"initial_stock"`
		MinStock     decimal.Decimal `json:"min_stock"`
	}
	if !decode(w, r, &req) {
		return
	}

	ingredient, err := h.cmd.CreateIngredient.Handle(r.Context(), rc, command.CreateIngredientCommand(req))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Message: "Ingredient created successfully", Data: ingredient})
}

// SetRecipe godoc
// @Summary Replace a product recipe
// @Tags Menu
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param request body object{lines=[]object{ingredient_id=int,quantity=number}} true "Recipe"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/products/{id}/recipe [put]
func (h *LedgerHandler) SetRecipe(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Lines []struct {
			IngredientID uint            `json:"ingredient_id"`
			Quantity     decimal.Decimal `json:"quantity"`
		} `json:"lines"`
	}
	if !decode(w, r, &req) {
		return
	}

	cmd := command.SetRecipeCommand{ProductID: id}
	for _, l := range req.Lines {
		cmd.Lines = append(cmd.Lines, command.RecipeInput{IngredientID: l.IngredientID, Quantity: l.Quantity})
	}

	product, err := h.cmd.SetRecipe.Handle(r.Context(), rc, cmd)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: product})
}

func (h *LedgerHandler) deleteItem(kind domain.ItemKind) func(http.ResponseWriter, *http.Request, domain.RequestContext) {
	return func(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if err := h.cmd.DeleteItem.Handle(r.Context(), rc, domain.ItemRef{Kind: kind, ID: id}); err != nil {
			respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, Response{Success: true, Message: "Item deleted successfully"})
	}
}

// OpenRegister godoc
// @Summary Open the cash register for a business date
// @Tags Registers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{business_date=string,opening_cash=number,note=string} true "Opening"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/registers/open [post]
func (h *LedgerHandler) OpenRegister(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		BusinessDate string          `json:"business_date"`
		OpeningCash  decimal.Decimal `json:"opening_cash"`
		Note         string          `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.cmd.OpenRegister.Handle(r.Context(), rc, command.OpenRegisterCommand(req))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Message: res.Warning, Data: res})
}

// CurrentRegister godoc
// @Summary Get the open register
// @Tags Registers
// @Security BearerAuth
// @Produce json
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/registers/current [get]
func (h *LedgerHandler) CurrentRegister(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	view, err := h.qry.CurrentRegister.Handle(r.Context(), rc)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: view})
}

// GetRegister godoc
// @Summary Get a register with totals
// @Tags Registers
// @Security BearerAuth
// @Produce json
// @Param id path int true "Register ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/registers/{id} [get]
func (h *LedgerHandler) GetRegister(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.qry.GetRegister.Handle(r.Context(), rc, id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: view})
}

// RecordTransaction godoc
// @Summary Record a register cash movement
// @Tags Registers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Register ID"
// @Param request body object{type=string,amount=number,payment_mode=string,category=string,description=string} true "Transaction"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 422 {object} Response
// @Router /api/registers/{id}/transactions [post]
func (h *LedgerHandler) RecordTransaction(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Type        string          `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		PaymentMode string          `json:"payment_mode"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}

	txn, err := h.cmd.RecordTransaction.Handle(r.Context(), rc, command.RecordTransactionCommand{
		RegisterID:  id,
		Type:        domain.TransactionType(strings.ToUpper(req.Type)),
		Amount:      req.Amount,
		PaymentMode: domain.PaymentMode(strings.ToUpper(req.PaymentMode)),
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Data: txn})
}

// CloseRegister godoc
// @Summary Close a register and reconcile cash
// @Tags Registers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Register ID"
// @Param request body object{sales_breakdown=object{cash=number,upi=number,card=number,delivery=number},actual_cash=number,variance_note=string,manager_pin=string} true "Closing"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 422 {object} Response
// @Failure 428 {object} Response
// @Failure 503 {object} Response
// @Router /api/registers/{id}/close [post]
func (h *LedgerHandler) CloseRegister(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		SalesBreakdown domain.SalesBreakdown `json:"sales_breakdown"`
		ActualCash     decimal.Decimal       `json:"actual_cash"`
		VarianceNote   string                `json:"variance_note"`
		ManagerPIN     string                `json:"manager_pin"`
	}
	if !decode(w, r, &req) {
		return
	}

	reg, err := h.cmd.CloseRegister.Handle(r.Context(), rc, command.CloseRegisterCommand{
		RegisterID:   id,
		Breakdown:    req.SalesBreakdown,
		ActualCash:   req.ActualCash,
		VarianceNote: req.VarianceNote,
		ManagerPIN:   req.ManagerPIN,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Register closed", Data: reg})
}

// Transfer godoc
// @Summary Move money between wallets
// @Tags Wallets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{from=string,to=string,amount=number,pin=string,reason=string} true "Transfer"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 422 {object} Response
// @Failure 428 {object} Response
// @Failure 503 {object} Response
// @Router /api/wallets/transfer [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		From   string          `json:"from"`
		To     string          `json:"to"`
		Amount decimal.Decimal `json:"amount"`
		PIN    string          `json:"pin"`
		Reason string          `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}

	transfer, err := h.cmd.Transfer.Handle(r.Context(), rc, command.TransferCommand{
		From:   domain.WalletType(strings.ToUpper(req.From)),
		To:     domain.WalletType(strings.ToUpper(req.To)),
		Amount: req.Amount,
		PIN:    req.PIN,
		Reason: req.Reason,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Data: transfer})
}

// ListTransfers godoc
// @Summary List recent wallet transfers
// @Tags Wallets
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Max rows"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /api/wallets/transfers [get]
func (h *LedgerHandler) ListTransfers(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transfers, err := h.qry.ListTransfers.Handle(r.Context(), rc, limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: transfers})
}

// WalletBalance godoc
// @Summary Get a wallet balance
// @Tags Wallets
// @Security BearerAuth
// @Produce json
// @Param type path string true "REGISTER or MANAGER_SAFE"
// @Param recompute query bool false "Recompute from history"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/wallets/{type}/balance [get]
func (h *LedgerHandler) WalletBalance(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	recompute, _ := strconv.ParseBool(r.URL.Query().Get("recompute"))
	balance, err := h.qry.WalletBalance.Handle(r.Context(), rc, query.WalletBalanceQuery{
		Type:      domain.WalletType(strings.ToUpper(mux.Vars(r)["type"])),
		Recompute: recompute,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: balance})
}

// SetSafePin godoc
// @Summary Set the safe PIN
// @Tags Wallets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{pin=string,tenant_wide=bool} true "PIN"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /api/wallets/pin [put]
func (h *LedgerHandler) SetSafePin(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		PIN        string `json:"pin"`
		TenantWide bool   `json:"tenant_wide"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.cmd.SetSafePin.Handle(r.Context(), rc, command.SetSafePinCommand(req)); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Safe pin updated"})
}

// MonthlySummary godoc
// @Summary Get a monthly summary
// @Tags Summaries
// @Security BearerAuth
// @Produce json
// @Param month path string true "YYYY-MM"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/summaries/{month} [get]
func (h *LedgerHandler) MonthlySummary(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	summary, err := h.qry.MonthlySummary.Handle(r.Context(), rc, mux.Vars(r)["month"])
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: summary})
}

// RecomputeSummary godoc
// @Summary Rebuild a monthly summary from history
// @Tags Summaries
// @Security BearerAuth
// @Produce json
// @Param month path string true "YYYY-MM"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /api/summaries/{month}/recompute [post]
func (h *LedgerHandler) RecomputeSummary(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	if !rc.CanManage() {
		respondError(w, http.StatusForbidden, "Manager access required")
		return
	}
	summary, err := h.cmd.RecomputeSummary.Handle(r.Context(), rc, mux.Vars(r)["month"])
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: summary})
}

// DailySales godoc
// @Summary Get daily sales totals
// @Tags Summaries
// @Security BearerAuth
// @Produce json
// @Param date path string true "YYYY-MM-DD"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /api/daily-sales/{date} [get]
func (h *LedgerHandler) DailySales(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	daily, err := h.qry.DailySales.Handle(r.Context(), rc, mux.Vars(r)["date"])
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Data: daily})
}

// SetVarianceThreshold godoc
// @Summary Set the register variance threshold
// @Tags Settings
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{threshold=number,tenant_wide=bool} true "Threshold"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /api/settings/variance-threshold [put]
func (h *LedgerHandler) SetVarianceThreshold(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		Threshold  decimal.Decimal `json:"threshold"`
		TenantWide bool            `json:"tenant_wide"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.cmd.SetThreshold.Handle(r.Context(), rc, command.SetVarianceThresholdCommand(req)); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, Response{Success: true, Message: "Variance threshold updated"})
}

// RegisterStaff godoc
// @Summary Register a staff member
// @Tags Settings
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{external_user_id=int,name=string,role=string,tenant_wide=bool} true "Staff"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 409 {object} Response
// @Router /api/staff [post]
func (h *LedgerHandler) RegisterStaff(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	if !rc.CanManage() {
		respondError(w, http.StatusForbidden, "Manager access required")
		return
	}
	var req struct {
		ExternalUserID uint   `json:"external_user_id"`
		Name           string `json:"name"`
		Role           string `json:"role"`
		TenantWide     bool   `json:"tenant_wide"`
	}
	if !decode(w, r, &req) {
		return
	}

	staff, err := h.cmd.RegisterStaff.Handle(r.Context(), rc, command.RegisterStaffCommand{
		ExternalUserID: req.ExternalUserID,
		Name:           req.Name,
		Role:           domain.Role(strings.ToUpper(req.Role)),
		TenantWide:     req.TenantWide,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Data: staff})
}

// CreateLoyaltyProgram godoc
// @Summary Create a loyalty program
// @Tags Loyalty
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{min_spend=number,required_visits=int,tenant_wide=bool} true "Program"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/loyalty/programs [post]
func (h *LedgerHandler) CreateLoyaltyProgram(w http.ResponseWriter, r *http.Request, rc domain.RequestContext) {
	var req struct {
		MinSpend       decimal.Decimal `json:"min_spend"`
		RequiredVisits int             `json:"required_visits"`
		TenantWide     bool            `json:"tenant_wide"`
	}
	if !decode(w, r, &req) {
		return
	}

	program, err := h.cmd.CreateProgram.Handle(r.Context(), rc, command.CreateLoyaltyProgramCommand(req))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, Response{Success: true, Data: program})
}

func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// errorStatus maps domain error kinds to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrVarianceExplanationRequired),
		errors.Is(err, domain.ErrPinNotConfigured):
		return http.StatusPreconditionRequired
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrMissingAttributionTarget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	respondJSON(w, status, Response{Success: false, Error: message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, Response{Success: false, Error: message})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
