package command

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/metrics"
)

var tracer = otel.Tracer("commerce-command")

// Invalidator drops cached listings after a write commits
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string)
	InvalidatePrefix(ctx context.Context, prefix string)
}

// EventPublisher announces committed ledger changes
type EventPublisher interface {
	PublishSaleProcessed(ctx context.Context, event kafka.SaleProcessedEvent) error
	PublishRegisterClosed(ctx context.Context, event kafka.RegisterClosedEvent) error
	PublishTransferRecorded(ctx context.Context, event kafka.TransferRecordedEvent) error
}

// Policy holds the configurable ledger rules
type Policy struct {
	BlockSaleOversell        bool
	DefaultVarianceThreshold decimal.Decimal
	Location                 *time.Location
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func (p Policy) businessDate(t time.Time) string {
	return t.In(p.location()).Format(domain.BusinessDateLayout)
}

func invalidateAreas(ctx context.Context, inv Invalidator, rc domain.RequestContext, areas ...cache.Area) {
	if inv == nil {
		return
	}
	for _, area := range areas {
		inv.InvalidatePrefix(ctx, cache.Prefix(rc.TenantID, rc.OutletID, area))
	}
}

// endSpan records err on the span, counts lock contention and ends the span
func endSpan(span trace.Span, operation string, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	if errors.Is(err, domain.ErrLockTimeout) {
		metrics.LockTimeouts.WithLabelValues(operation).Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func meta(rc domain.RequestContext) kafka.EventMeta {
	return kafka.EventMeta{TenantID: rc.TenantID, OutletID: rc.OutletID}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
