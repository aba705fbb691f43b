package command

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/auth"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// SetSafePinCommand stores the manager PIN that authorizes transfers and large variances
type SetSafePinCommand struct {
	PIN string
	// TenantWide stores the PIN as the tenant default instead of for the outlet
	TenantWide bool
}

// SetSafePinHandler handles set safe pin command
type SetSafePinHandler struct {
	store domain.Store
}

// NewSetSafePinHandler creates a new set safe pin handler
func NewSetSafePinHandler(store domain.Store) *SetSafePinHandler {
	return &SetSafePinHandler{store: store}
}

// Handle executes the set safe pin command
func (h *SetSafePinHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd SetSafePinCommand) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	if !rc.CanManage() {
		return fmt.Errorf("%w: only managers can set the safe pin", domain.ErrUnauthorized)
	}
	if cmd.TenantWide && rc.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only admins can set the tenant pin", domain.ErrUnauthorized)
	}
	if err := auth.ValidatePINFormat(cmd.PIN); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	hash, err := auth.HashPIN(cmd.PIN)
	if err != nil {
		return err
	}

	outletID := rc.OutletID
	if cmd.TenantWide {
		outletID = domain.TenantDefaultOutlet
	}
	if err := h.store.Repos().Settings.SetSafePin(ctx, rc.TenantID, outletID, hash, rc.ActorID); err != nil {
		return fmt.Errorf("failed to store safe pin: %w", err)
	}

	logger.Scoped(ctx, rc.TenantID, rc.OutletID, rc.ActorID).Info().
		Bool("tenant_wide", cmd.TenantWide).
		Msg("Safe pin updated")
	return nil
}

// SetVarianceThresholdCommand overrides the close variance threshold
type SetVarianceThresholdCommand struct {
	Threshold  decimal.Decimal
	TenantWide bool
}

// SetVarianceThresholdHandler handles set variance threshold command
type SetVarianceThresholdHandler struct {
	store domain.Store
}

// NewSetVarianceThresholdHandler creates a new set variance threshold handler
func NewSetVarianceThresholdHandler(store domain.Store) *SetVarianceThresholdHandler {
	return &SetVarianceThresholdHandler{store: store}
}

// Handle executes the set variance threshold command
func (h *SetVarianceThresholdHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd SetVarianceThresholdCommand) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	if !rc.CanManage() {
		return fmt.Errorf("%w: only managers can change the variance threshold", domain.ErrUnauthorized)
	}
	if cmd.Threshold.IsNegative() {
		return fmt.Errorf("%w: threshold cannot be negative", domain.ErrValidation)
	}
	if err := domain.CheckAmount("threshold", cmd.Threshold); err != nil {
		return err
	}

	outletID := rc.OutletID
	if cmd.TenantWide {
		outletID = domain.TenantDefaultOutlet
	}
	if err := h.store.Repos().Settings.SetVarianceThreshold(ctx, rc.TenantID, outletID, cmd.Threshold); err != nil {
		return fmt.Errorf("failed to store variance threshold: %w", err)
	}
	return nil
}

// RegisterStaffCommand links an external user to the outlet for sale attribution
type RegisterStaffCommand struct {
	ExternalUserID uint
	Name           string
	Role           domain.Role
	TenantWide     bool
}

// RegisterStaffHandler handles register staff command
type RegisterStaffHandler struct {
	store domain.Store
}

// NewRegisterStaffHandler creates a new register staff handler
func NewRegisterStaffHandler(store domain.Store) *RegisterStaffHandler {
	return &RegisterStaffHandler{store: store}
}

// Handle executes the register staff command
func (h *RegisterStaffHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd RegisterStaffCommand) (*domain.StaffMember, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if cmd.ExternalUserID == 0 {
		return nil, fmt.Errorf("%w: external_user_id is required", domain.ErrValidation)
	}
	switch cmd.Role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleStaff:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, cmd.Role)
	}

	staff := &domain.StaffMember{
		TenantID:       rc.TenantID,
		OutletID:       rc.OutletID,
		ExternalUserID: cmd.ExternalUserID,
		Name:           cmd.Name,
		Role:           cmd.Role,
		Active:         true,
	}
	if cmd.TenantWide {
		staff.OutletID = domain.TenantDefaultOutlet
	}
	if err := h.store.Repos().Staff.Create(ctx, staff); err != nil {
		return nil, fmt.Errorf("failed to register staff: %w", err)
	}
	return staff, nil
}

// CreateLoyaltyProgramCommand starts a stamp card program
type CreateLoyaltyProgramCommand struct {
	MinSpend       decimal.Decimal
	RequiredVisits int
	TenantWide     bool
}

// CreateLoyaltyProgramHandler handles create loyalty program command
type CreateLoyaltyProgramHandler struct {
	store domain.Store
}

// NewCreateLoyaltyProgramHandler creates a new create loyalty program handler
func NewCreateLoyaltyProgramHandler(store domain.Store) *CreateLoyaltyProgramHandler {
	return &CreateLoyaltyProgramHandler{store: store}
}

// Handle executes the create loyalty program command
func (h *CreateLoyaltyProgramHandler) Handle(ctx context.Context, rc domain.RequestContext, cmd CreateLoyaltyProgramCommand) (*domain.LoyaltyProgram, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if !rc.CanManage() {
		return nil, fmt.Errorf("%w: only managers can create loyalty programs", domain.ErrUnauthorized)
	}
	if cmd.RequiredVisits <= 0 {
		return nil, fmt.Errorf("%w: required_visits must be positive", domain.ErrValidation)
	}
	if cmd.MinSpend.IsNegative() {
		return nil, fmt.Errorf("%w: min_spend cannot be negative", domain.ErrValidation)
	}
	if err := domain.CheckAmount("min_spend", cmd.MinSpend); err != nil {
		return nil, err
	}

	program := &domain.LoyaltyProgram{
		TenantID:       rc.TenantID,
		OutletID:       rc.OutletID,
		MinSpend:       cmd.MinSpend,
		RequiredVisits: cmd.RequiredVisits,
		Active:         true,
	}
	if cmd.TenantWide {
		program.OutletID = domain.TenantDefaultOutlet
	}
	if err := h.store.Repos().Customers.CreateProgram(ctx, program); err != nil {
		return nil, fmt.Errorf("failed to create loyalty program: %w", err)
	}
	return program, nil
}
