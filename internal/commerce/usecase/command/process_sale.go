package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

// SaleLineInput is one POS line as received. A nil ProductID marks an untracked line.
type SaleLineInput struct {
	ProductID *uint
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CustomerRef identifies the loyalty customer of a sale
type CustomerRef struct {
	Phone string
	Name  string
}

// ProcessSaleCommand represents a completed or pending POS sale
type ProcessSaleCommand struct {
	ExternalID   string
	Lines        []SaleLineInput
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	PaymentMode  domain.PaymentMode
	Status       domain.OrderStatus
	CreatedAt    time.Time
	Customer     *CustomerRef
	RedeemReward bool
}

// ProcessSaleResult reports what a delivery did
type ProcessSaleResult struct {
	Order       *domain.Order `json:"order"`
	Redelivered bool          `json:"redelivered"`
	// EffectsApplied is true when this delivery moved stock and loyalty
	EffectsApplied bool `json:"effects_applied"`
}

// ProcessSaleHandler handles process sale command
type ProcessSaleHandler struct {
	store     domain.Store
	ledger    *StockLedger
	policy    Policy
	inv       Invalidator
	publisher EventPublisher
}

// NewProcessSaleHandler creates a new process sale handler
func NewProcessSaleHandler(store domain.Store, ledger *StockLedger, policy Policy, inv Invalidator, publisher EventPublisher) *ProcessSaleHandler {
	return &ProcessSaleHandler{
		store:     store,
		ledger:    ledger,
		policy:    policy,
		inv:       inv,
		publisher: publisher,
	}
}

func (cmd *ProcessSaleCommand) normalize() error {
	cmd.ExternalID = strings.TrimSpace(cmd.ExternalID)
	if cmd.ExternalID == "" {
		return fmt.Errorf("%w: external_id is required", domain.ErrValidation)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: a sale needs at least one line", domain.ErrValidation)
	}
	if _, err := domain.ParsePaymentMode(string(cmd.PaymentMode)); err != nil {
		return err
	}
	if cmd.Status == "" {
		cmd.Status = domain.OrderCompleted
	}
	if cmd.Status != domain.OrderCompleted && cmd.Status != domain.OrderPending {
		return fmt.Errorf("%w: unsupported order status %q", domain.ErrValidation, cmd.Status)
	}
	if cmd.Total.IsNegative() || cmd.Subtotal.IsNegative() || cmd.Discount.IsNegative() {
		return fmt.Errorf("%w: totals cannot be negative", domain.ErrValidation)
	}
	if err := domain.CheckScales(
		domain.CheckAmount("subtotal", cmd.Subtotal),
		domain.CheckAmount("discount", cmd.Discount),
		domain.CheckAmount("total", cmd.Total),
	); err != nil {
		return err
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	for i, l := range cmd.Lines {
		if !l.Quantity.IsPositive() {
			return fmt.Errorf("%w: line %d quantity must be positive", domain.ErrValidation, i)
		}
		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price cannot be negative", domain.ErrValidation, i)
		}
		if err := domain.CheckScales(
			domain.CheckQuantity(fmt.Sprintf("line %d quantity", i), l.Quantity),
			domain.CheckAmount(fmt.Sprintf("line %d unit price", i), l.UnitPrice),
		); err != nil {
			return err
		}
		if l.ProductID == nil && strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("%w: line %d needs a product or a name", domain.ErrValidation, i)
		}
	}
	if cmd.Customer != nil {
		cmd.Customer.Phone = strings.TrimSpace(cmd.Customer.Phone)
		if cmd.Customer.Phone == "" {
			cmd.Customer = nil
		}
	}
	if cmd.RedeemReward && cmd.Customer == nil {
		return fmt.Errorf("%w: redeeming a reward needs a customer", domain.ErrValidation)
	}
	return nil
}

// Handle executes the process sale command. Redelivery of the same external
// id never re-applies stock or loyalty effects and books only the difference
// of changed totals into the rollups.
func (h *ProcessSaleHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd ProcessSaleCommand) (result *ProcessSaleResult, err error) {
	ctx, span := tracer.Start(ctx, "command.ProcessSale",
		trace.WithAttributes(
			attribute.String("sale.external_id", cmd.ExternalID),
			attribute.Int("sale.lines", len(cmd.Lines)),
		),
	)
	defer func() { endSpan(span, "process_sale", err) }()

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.normalize(); err != nil {
		return nil, err
	}

	var deductions []domain.Deduction
	err = h.store.InTx(ctx, domain.TxLocked, func(ctx context.Context, repos domain.Repositories) error {
		var txErr error
		result, deductions, txErr = h.process(ctx, repos, rc, cmd)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process sale: %w", err)
	}

	h.afterCommit(ctx, rc, result, deductions)
	return result, nil
}

func (h *ProcessSaleHandler) process(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, cmd ProcessSaleCommand) (*ProcessSaleResult, []domain.Deduction, error) {
	staff, err := h.attribute(ctx, repos, rc)
	if err != nil {
		return nil, nil, err
	}

	order := &domain.Order{
		TenantID:       rc.TenantID,
		OutletID:       rc.OutletID,
		ExternalID:     cmd.ExternalID,
		StaffID:        staff.ID,
		PaymentMode:    cmd.PaymentMode,
		Subtotal:       cmd.Subtotal,
		Discount:       cmd.Discount,
		TotalAmount:    cmd.Total,
		Status:         domain.OrderPending,
		BusinessDate:   h.policy.businessDate(cmd.CreatedAt),
		CreatedAt:      cmd.CreatedAt,
		EffectsApplied: false,
	}
	inserted, err := repos.Orders.InsertIfAbsent(ctx, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert order: %w", err)
	}

	order, err = repos.Orders.LockByExternalID(ctx, rc.TenantID, cmd.ExternalID)
	if err != nil {
		return nil, nil, err
	}
	if order.OutletID != rc.OutletID {
		return nil, nil, fmt.Errorf("%w: order %s belongs to another outlet", domain.ErrConflict, cmd.ExternalID)
	}

	var lines []domain.SaleLine
	if inserted {
		lines, err = h.resolveInputs(ctx, repos, rc, order.ID, cmd.Lines)
		if err != nil {
			return nil, nil, err
		}
		items := make([]domain.OrderItem, 0, len(lines))
		for _, l := range lines {
			items = append(items, l.OrderItem())
		}
		if err := repos.Orders.CreateItems(ctx, items); err != nil {
			return nil, nil, fmt.Errorf("failed to create order items: %w", err)
		}
	}

	var customerName string
	if cmd.Customer != nil {
		if customerName, err = h.ensureCustomer(ctx, repos, rc, cmd.Customer); err != nil {
			return nil, nil, err
		}
	}

	var prevDelta domain.SalesDelta
	if order.EffectsApplied {
		prevDelta = domain.SalesDeltaFor(order.PaymentMode, order.TotalAmount, order.Discount, 1)
	}

	order.PaymentMode = cmd.PaymentMode
	order.Subtotal = cmd.Subtotal
	order.Discount = cmd.Discount
	order.TotalAmount = cmd.Total
	if order.Status != domain.OrderCompleted {
		order.Status = cmd.Status
	}

	result := &ProcessSaleResult{Order: order, Redelivered: !inserted}
	var deductions []domain.Deduction

	if !order.EffectsApplied && order.Status == domain.OrderCompleted {
		if cmd.Customer != nil {
			if err := h.applyLoyalty(ctx, repos, rc, order, cmd, customerName); err != nil {
				return nil, nil, err
			}
		}

		if lines == nil {
			stored, err := repos.Orders.ListItems(ctx, order.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load order items: %w", err)
			}
			lines, err = h.resolveItems(ctx, repos, rc, stored)
			if err != nil {
				return nil, nil, err
			}
		}

		deductions = domain.AggregateDeductions(lines)
		orderID := order.ID
		for _, d := range deductions {
			if _, err := h.ledger.Apply(ctx, repos, rc, StockAdjustment{
				Ref:     d.Ref,
				Delta:   d.Quantity.Neg(),
				Type:    domain.MoveSale,
				Note:    "sale " + order.ExternalID,
				OrderID: &orderID,
				ActorID: staff.ExternalUserID,
			}); err != nil {
				return nil, nil, err
			}
		}

		order.EffectsApplied = true
		result.EffectsApplied = true
	}

	var newDelta domain.SalesDelta
	if order.EffectsApplied {
		newDelta = domain.SalesDeltaFor(order.PaymentMode, order.TotalAmount, order.Discount, 1)
	}
	if diff := newDelta.Sub(prevDelta); !diff.IsZero() {
		if err := applyRollups(ctx, repos, rc, order, diff); err != nil {
			return nil, nil, err
		}
	}

	if err := repos.Orders.UpdateState(ctx, order); err != nil {
		return nil, nil, fmt.Errorf("failed to update order: %w", err)
	}
	return result, deductions, nil
}

// attribute resolves the staff member the sale is booked against
func (h *ProcessSaleHandler) attribute(ctx context.Context, repos domain.Repositories, rc domain.RequestContext) (*domain.StaffMember, error) {
	if rc.ActorID != 0 {
		staff, err := repos.Staff.FindActiveByExternalID(ctx, rc.TenantID, rc.OutletID, rc.ActorID)
		if err == nil {
			return staff, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	staff, err := repos.Staff.FirstActive(ctx, rc.TenantID, rc.OutletID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrMissingAttributionTarget
		}
		return nil, err
	}
	return staff, nil
}

// ensureCustomer inserts the customer of a sale if the phone is new, whatever the order status
func (h *ProcessSaleHandler) ensureCustomer(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, ref *CustomerRef) (string, error) {
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		name = domain.PlaceholderCustomerName
	}
	if err := repos.Customers.EnsureByPhone(ctx, rc.TenantID, ref.Phone, name); err != nil {
		return "", fmt.Errorf("failed to ensure customer: %w", err)
	}
	return name, nil
}

func (h *ProcessSaleHandler) applyLoyalty(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, order *domain.Order, cmd ProcessSaleCommand, name string) error {
	customer, err := repos.Customers.LockByPhone(ctx, rc.TenantID, cmd.Customer.Phone)
	if err != nil {
		return err
	}
	if name != domain.PlaceholderCustomerName &&
		(customer.Name == "" || customer.Name == domain.PlaceholderCustomerName) {
		customer.Name = name
	}

	program, err := repos.Customers.ActiveProgram(ctx, rc.TenantID, rc.OutletID)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		program = nil
	}

	if cmd.RedeemReward {
		if program == nil {
			return fmt.Errorf("%w: no active loyalty program", domain.ErrInvalidState)
		}
		if customer.Stamps < program.RequiredVisits {
			return fmt.Errorf("%w: customer has %d of %d stamps", domain.ErrInvalidState, customer.Stamps, program.RequiredVisits)
		}
		customer.Stamps -= program.RequiredVisits
		order.RedeemedReward = true
	}
	if program != nil && order.TotalAmount.GreaterThanOrEqual(program.MinSpend) {
		customer.Stamps++
	}
	customer.Visits++
	customer.TotalSpend = customer.TotalSpend.Add(order.TotalAmount)

	if err := repos.Customers.UpdateLoyalty(ctx, customer); err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	order.CustomerID = &customer.ID
	return nil
}

// resolveInputs turns incoming lines into sale line variants, loading each product once
func (h *ProcessSaleHandler) resolveInputs(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, orderID uint, inputs []SaleLineInput) ([]domain.SaleLine, error) {
	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.OrderItem{
			OrderID:   orderID,
			ProductID: in.ProductID,
			Name:      strings.TrimSpace(in.Name),
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			LineTotal: in.UnitPrice.Mul(in.Quantity).Round(2),
		})
	}
	return h.resolveItems(ctx, repos, rc, items)
}

func (h *ProcessSaleHandler) resolveItems(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, items []domain.OrderItem) ([]domain.SaleLine, error) {
	products := make(map[uint]*domain.Product)
	lines := make([]domain.SaleLine, 0, len(items))

	for _, item := range items {
		if item.ProductID == nil {
			lines = append(lines, domain.UntrackedSaleLine{Item: item})
			continue
		}

		p, ok := products[*item.ProductID]
		if !ok {
			var err error
			p, err = repos.Catalog.FindProduct(ctx, rc.TenantID, rc.OutletID, *item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve line %q: %w", item.Name, err)
			}
			products[p.ID] = p
		}
		if item.Name == "" {
			item.Name = p.Name
		}

		if p.HasRecipe() {
			lines = append(lines, domain.RecipeSaleLine{Item: item, Recipe: p.Recipe})
		} else {
			lines = append(lines, domain.SimpleSaleLine{Item: item, Product: domain.ProductRef(p.ID)})
		}
	}
	return lines, nil
}

// applyRollups books d into the daily aggregate, the open register and the monthly summary, in that lock order
func applyRollups(ctx context.Context, repos domain.Repositories, rc domain.RequestContext, order *domain.Order, d domain.SalesDelta) error {
	daily, err := repos.Rollups.LockDaily(ctx, rc.TenantID, rc.OutletID, order.BusinessDate)
	if err != nil {
		return fmt.Errorf("failed to lock daily sales: %w", err)
	}
	daily.Apply(d)
	if err := repos.Rollups.SaveDaily(ctx, daily); err != nil {
		return fmt.Errorf("failed to save daily sales: %w", err)
	}

	register, err := repos.Registers.LockOpenByDate(ctx, rc.TenantID, rc.OutletID, order.BusinessDate)
	switch {
	case err == nil:
		register.ApplySales(d)
		if err := repos.Registers.Save(ctx, register); err != nil {
			return fmt.Errorf("failed to save register: %w", err)
		}
	case !isNotFound(err):
		return fmt.Errorf("failed to lock register: %w", err)
	}

	monthly, err := repos.Rollups.LockMonthly(ctx, rc.TenantID, rc.OutletID, order.Month())
	if err != nil {
		return fmt.Errorf("failed to lock monthly summary: %w", err)
	}
	monthly.Apply(d)
	if err := repos.Rollups.SaveMonthly(ctx, monthly); err != nil {
		return fmt.Errorf("failed to save monthly summary: %w", err)
	}
	return nil
}

func (h *ProcessSaleHandler) afterCommit(ctx context.Context, rc domain.RequestContext, result *ProcessSaleResult, deductions []domain.Deduction) {
	outcome := "new"
	if result.Redelivered {
		outcome = "redelivered"
	}
	metrics.SalesProcessed.WithLabelValues(outcome).Inc()
	if len(deductions) > 0 {
		metrics.StockAdjustments.WithLabelValues(string(domain.MoveSale)).Add(float64(len(deductions)))
	}

	invalidateAreas(ctx, h.inv, rc, cache.AreaStock, cache.AreaMenu, cache.AreaDashboard, cache.AreaRegister)

	order := result.Order
	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Uint("order_id", order.ID).
		Str("external_id", order.ExternalID).
		Str("total", order.TotalAmount.String()).
		Bool("redelivered", result.Redelivered).
		Bool("effects_applied", result.EffectsApplied).
		Msg("Sale processed")

	if h.publisher == nil {
		return
	}
	err := h.publisher.PublishSaleProcessed(ctx, kafka.SaleProcessedEvent{
		EventMeta:    meta(rc),
		OrderID:      order.ID,
		ExternalID:   order.ExternalID,
		TotalAmount:  order.TotalAmount,
		PaymentMode:  string(order.PaymentMode),
		BusinessDate: order.BusinessDate,
		Redelivered:  result.Redelivered,
	})
	if err != nil {
		logger.Error(ctx).Err(err).Str("external_id", order.ExternalID).Msg("Failed to publish sale event")
	}
}
