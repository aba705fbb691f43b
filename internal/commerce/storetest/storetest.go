// Package storetest builds ledger stores on in-memory SQLite for tests.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/repository"
)

const (
	TenantID uint = 1
	OutletID uint = 10
	UserID   uint = 100
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory database with the full schema. A single
// connection makes concurrent transactions serialize.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

// NewStore returns a store over a fresh database
func NewStore(t *testing.T) *repository.GormStore {
	t.Helper()
	return repository.NewGormStore(NewDB(t), repository.Options{})
}

// RC is the request context of the default test user
func RC(role domain.Role) domain.RequestContext {
	return domain.RequestContext{TenantID: TenantID, OutletID: OutletID, ActorID: UserID, Role: role}
}

// D parses a decimal literal
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Product inserts a product whose opening stock is backed by a ledger move
func Product(t *testing.T, store domain.Store, name, price, stock string) *domain.Product {
	t.Helper()
	p := &domain.Product{
		TenantID:     TenantID,
		OutletID:     OutletID,
		Name:         name,
		Price:        D(price),
		CurrentStock: D(stock),
	}
	require.NoError(t, store.InTx(context.Background(), domain.TxDefault, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Catalog.CreateProduct(ctx, p); err != nil {
			return err
		}
		return openingMove(ctx, repos, domain.ProductRef(p.ID), p.CurrentStock)
	}))
	return p
}

// Ingredient inserts an ingredient whose opening stock is backed by a ledger move
func Ingredient(t *testing.T, store domain.Store, name, stock string) *domain.Ingredient {
	t.Helper()
	i := &domain.Ingredient{
		TenantID:     TenantID,
		OutletID:     OutletID,
		Name:         name,
		Unit:         "kg",
		CurrentStock: D(stock),
	}
	require.NoError(t, store.InTx(context.Background(), domain.TxDefault, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Catalog.CreateIngredient(ctx, i); err != nil {
			return err
		}
		return openingMove(ctx, repos, domain.IngredientRef(i.ID), i.CurrentStock)
	}))
	return i
}

func openingMove(ctx context.Context, repos domain.Repositories, ref domain.ItemRef, qty decimal.Decimal) error {
	if qty.IsZero() {
		return nil
	}
	move := &domain.StockMove{
		TenantID: TenantID,
		OutletID: OutletID,
		Delta:    qty,
		Type:     domain.MoveAdjustment,
		Note:     "opening stock",
	}
	move.SetRef(ref)
	return repos.Stock.AppendMove(ctx, move)
}

// Staff registers the default test user as an active staff member
func Staff(t *testing.T, store domain.Store, role domain.Role) *domain.StaffMember {
	t.Helper()
	s := &domain.StaffMember{
		TenantID:       TenantID,
		OutletID:       OutletID,
		ExternalUserID: UserID,
		Name:           "Test " + string(role),
		Role:           role,
		Active:         true,
	}
	require.NoError(t, store.Repos().Staff.Create(context.Background(), s))
	return s
}
