package command

import (
	"context"
	"fmt"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/auth"
)

// PINVerifier checks a manager PIN and returns the id of the authorizing user
type PINVerifier interface {
	Verify(ctx context.Context, settings domain.SettingsRepository, rc domain.RequestContext, pin string) (uint, error)
}

// SafePINVerifier checks the bcrypt PIN of the outlet, falling back to the tenant default
type SafePINVerifier struct{}

// NewSafePINVerifier creates a new safe PIN verifier
func NewSafePINVerifier() *SafePINVerifier {
	return &SafePINVerifier{}
}

func (v *SafePINVerifier) Verify(ctx context.Context, settings domain.SettingsRepository, rc domain.RequestContext, pin string) (uint, error) {
	s, err := v.configured(ctx, settings, rc)
	if err != nil {
		return 0, err
	}
	if pin == "" {
		return 0, fmt.Errorf("%w: manager pin required", domain.ErrUnauthorized)
	}

	ok, err := auth.CheckPIN(*s.SafePinHash, pin)
	if err != nil {
		return 0, fmt.Errorf("failed to check pin: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: invalid manager pin", domain.ErrUnauthorized)
	}

	if s.SafePinHolderID != nil {
		return *s.SafePinHolderID, nil
	}
	return rc.ActorID, nil
}

func (v *SafePINVerifier) configured(ctx context.Context, settings domain.SettingsRepository, rc domain.RequestContext) (*domain.OutletSettings, error) {
	for _, outletID := range []uint{rc.OutletID, domain.TenantDefaultOutlet} {
		s, err := settings.Find(ctx, rc.TenantID, outletID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if s.SafePinHash != nil && *s.SafePinHash != "" {
			return s, nil
		}
	}
	return nil, domain.ErrPinNotConfigured
}
