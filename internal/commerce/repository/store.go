package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/database"
)

var tracer = otel.Tracer("commerce-repository")

// Options tune how units of work run
type Options struct {
	// LockTimeout bounds row-lock waits in locked and strict transactions (Postgres only)
	LockTimeout time.Duration
	// TxTimeout bounds the whole transaction; zero disables it
	TxTimeout time.Duration
	// Serializable runs strict transactions at SERIALIZABLE isolation
	Serializable bool
}

// GormStore implements domain.Store on gorm
type GormStore struct {
	db   *gorm.DB
	opts Options
}

// NewGormStore creates a new store
func NewGormStore(db *gorm.DB, opts Options) *GormStore {
	return &GormStore{db: db, opts: opts}
}

// Repos returns repositories bound to the connection pool
func (s *GormStore) Repos() domain.Repositories {
	return bind(s.db)
}

func bind(db *gorm.DB) domain.Repositories {
	return domain.Repositories{
		Stock:     &GormStockRepository{db: db},
		Catalog:   &GormCatalogRepository{db: db},
		Customers: &GormCustomerRepository{db: db},
		Staff:     &GormStaffRepository{db: db},
		Orders:    &GormOrderRepository{db: db},
		Rollups:   &GormRollupRepository{db: db},
		Registers: &GormRegisterRepository{db: db},
		Wallets:   &GormWalletRepository{db: db},
		Settings:  &GormSettingsRepository{db: db},
	}
}

// InTx runs fn inside one database transaction
func (s *GormStore) InTx(ctx context.Context, mode domain.TxMode, fn func(ctx context.Context, repos domain.Repositories) error) error {
	ctx, span := tracer.Start(ctx, "repository.InTx",
		trace.WithAttributes(
			attribute.String("tx.mode", mode.String()),
			attribute.String("db.system", s.db.Dialector.Name()),
		),
	)
	defer span.End()

	if s.opts.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TxTimeout)
		defer cancel()
	}

	var txOpts []*sql.TxOptions
	if s.isPostgres() {
		txOpts = s.txOptions(mode)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if stmt := s.lockTimeoutStmt(mode); stmt != "" && s.isPostgres() {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(ctx, bind(tx))
	}, txOpts...)

	if err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// txOptions picks the isolation level of mode. Only strict units run
// SERIALIZABLE; locked units rely on row locks at READ COMMITTED.
func (s *GormStore) txOptions(mode domain.TxMode) []*sql.TxOptions {
	switch mode {
	case domain.TxStrict:
		if s.opts.Serializable {
			return []*sql.TxOptions{{Isolation: sql.LevelSerializable}}
		}
		return []*sql.TxOptions{{Isolation: sql.LevelReadCommitted}}
	case domain.TxLocked:
		return []*sql.TxOptions{{Isolation: sql.LevelReadCommitted}}
	}
	return nil
}

func (s *GormStore) lockTimeoutStmt(mode domain.TxMode) string {
	if mode == domain.TxDefault || s.opts.LockTimeout <= 0 {
		return ""
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.LockTimeout.Milliseconds())
}

// Ping checks the database connection
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

var domainKinds = []error{
	domain.ErrValidation,
	domain.ErrNotFound,
	domain.ErrConflict,
	domain.ErrInsufficientStock,
	domain.ErrInvalidState,
	domain.ErrUnauthorized,
	domain.ErrPinNotConfigured,
	domain.ErrVarianceExplanationRequired,
	domain.ErrLockTimeout,
	domain.ErrMissingAttributionTarget,
}

// translate maps driver failures onto domain error kinds
func translate(err error) error {
	for _, kind := range domainKinds {
		if errors.Is(err, kind) {
			return err
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		database.IsContention(err),
		database.IsCanceled(err):
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func insertIgnore(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.OnConflict{DoNothing: true})
}

// Models lists every persistent entity
func Models() []interface{} {
	return []interface{}{
		&domain.Product{},
		&domain.Ingredient{},
		&domain.RecipeLine{},
		&domain.StockMove{},
		&domain.Customer{},
		&domain.LoyaltyProgram{},
		&domain.StaffMember{},
		&domain.Order{},
		&domain.OrderItem{},
		&domain.DailySale{},
		&domain.MonthlySummary{},
		&domain.Register{},
		&domain.RegisterTransaction{},
		&domain.DailyClosure{},
		&domain.Wallet{},
		&domain.Transfer{},
		&domain.OutletSettings{},
	}
}

// AutoMigrate creates the schema from the gorm models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
