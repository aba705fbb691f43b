package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// StockRepository reads and mutates stock-bearing rows and their ledger
type StockRepository interface {
	// LockItem loads the item under a row lock for the rest of the transaction
	LockItem(ctx context.Context, tenantID uint, ref ItemRef) (*StockItem, error)
	UpdateStock(ctx context.Context, ref ItemRef, newStock decimal.Decimal) error
	AppendMove(ctx context.Context, move *StockMove) error
	ListItems(ctx context.Context, tenantID, outletID uint) ([]StockItem, error)
	SumMoves(ctx context.Context, tenantID, outletID uint) (map[ItemRef]decimal.Decimal, error)
	ListMoves(ctx context.Context, tenantID, outletID uint, ref ItemRef, limit int) ([]StockMove, error)
}

// CatalogRepository manages products, ingredients and recipes
type CatalogRepository interface {
	CreateProduct(ctx context.Context, p *Product) error
	CreateIngredient(ctx context.Context, i *Ingredient) error
	FindProduct(ctx context.Context, tenantID, outletID, id uint) (*Product, error)
	FindIngredient(ctx context.Context, tenantID, outletID, id uint) (*Ingredient, error)
	ReplaceRecipe(ctx context.Context, productID uint, lines []RecipeLine) error
	SoftDelete(ctx context.Context, tenantID, outletID uint, ref ItemRef) error
	ListProducts(ctx context.Context, tenantID, outletID uint) ([]Product, error)
}

// CustomerRepository manages customers and their loyalty programs
type CustomerRepository interface {
	// EnsureByPhone inserts a customer if none exists; an existing row is left untouched
	EnsureByPhone(ctx context.Context, tenantID uint, phone, name string) error
	LockByPhone(ctx context.Context, tenantID uint, phone string) (*Customer, error)
	UpdateLoyalty(ctx context.Context, c *Customer) error
	ActiveProgram(ctx context.Context, tenantID, outletID uint) (*LoyaltyProgram, error)
	CreateProgram(ctx context.Context, p *LoyaltyProgram) error
}

// StaffRepository resolves sale attribution
type StaffRepository interface {
	Create(ctx context.Context, s *StaffMember) error
	FindActiveByExternalID(ctx context.Context, tenantID, outletID, externalUserID uint) (*StaffMember, error)
	FirstActive(ctx context.Context, tenantID, outletID uint) (*StaffMember, error)
}

// OrderRepository stores POS orders
type OrderRepository interface {
	// InsertIfAbsent inserts o unless (tenant, external id) exists and reports whether it did
	InsertIfAbsent(ctx context.Context, o *Order) (bool, error)
	LockByExternalID(ctx context.Context, tenantID uint, externalID string) (*Order, error)
	CreateItems(ctx context.Context, items []OrderItem) error
	ListItems(ctx context.Context, orderID uint) ([]OrderItem, error)
	UpdateState(ctx context.Context, o *Order) error
	CompletedTotals(ctx context.Context, tenantID, outletID uint, month string) (SalesDelta, error)
	// ListOutlets returns every outlet that has catalog rows or orders
	ListOutlets(ctx context.Context) ([]OutletKey, error)
}

// RollupRepository maintains the daily and monthly sales aggregates
type RollupRepository interface {
	LockDaily(ctx context.Context, tenantID, outletID uint, date string) (*DailySale, error)
	SaveDaily(ctx context.Context, s *DailySale) error
	FindDaily(ctx context.Context, tenantID, outletID uint, date string) (*DailySale, error)
	LockMonthly(ctx context.Context, tenantID, outletID uint, month string) (*MonthlySummary, error)
	SaveMonthly(ctx context.Context, s *MonthlySummary) error
	FindMonthly(ctx context.Context, tenantID, outletID uint, month string) (*MonthlySummary, error)
}

// RegisterRepository stores cash sessions and their movements
type RegisterRepository interface {
	Create(ctx context.Context, r *Register) error
	Lock(ctx context.Context, tenantID, outletID, id uint) (*Register, error)
	Find(ctx context.Context, tenantID, outletID, id uint) (*Register, error)
	FindByDate(ctx context.Context, tenantID, outletID uint, date string) (*Register, error)
	LockOpenByDate(ctx context.Context, tenantID, outletID uint, date string) (*Register, error)
	FindOpen(ctx context.Context, tenantID, outletID uint) (*Register, error)
	FindPrevious(ctx context.Context, tenantID, outletID uint, date string) (*Register, error)
	Save(ctx context.Context, r *Register) error
	AppendTransaction(ctx context.Context, t *RegisterTransaction) error
	ListTransactions(ctx context.Context, registerID uint) ([]RegisterTransaction, error)
	CashOutflows(ctx context.Context, registerID uint) (expenses, withdrawals decimal.Decimal, err error)
	CreateClosure(ctx context.Context, c *DailyClosure) error
}

// WalletRepository stores wallets and the transfer ledger
type WalletRepository interface {
	Ensure(ctx context.Context, tenantID, outletID uint, t WalletType) (*Wallet, error)
	Find(ctx context.Context, tenantID, outletID uint, t WalletType) (*Wallet, error)
	AppendTransfer(ctx context.Context, t *Transfer) error
	Balance(ctx context.Context, walletID uint) (decimal.Decimal, error)
	ListTransfers(ctx context.Context, tenantID, outletID uint, limit int) ([]Transfer, error)
}

// SettingsRepository stores outlet policy rows
type SettingsRepository interface {
	Find(ctx context.Context, tenantID, outletID uint) (*OutletSettings, error)
	SetVarianceThreshold(ctx context.Context, tenantID, outletID uint, threshold decimal.Decimal) error
	SetSafePin(ctx context.Context, tenantID, outletID uint, hash string, holderID uint) error
}

// Repositories is the set of repositories bound to one connection or transaction
type Repositories struct {
	Stock     StockRepository
	Catalog   CatalogRepository
	Customers CustomerRepository
	Staff     StaffRepository
	Orders    OrderRepository
	Rollups   RollupRepository
	Registers RegisterRepository
	Wallets   WalletRepository
	Settings  SettingsRepository
}

// TxMode selects the isolation a unit of work runs under
type TxMode int

const (
	// TxDefault uses the database default isolation
	TxDefault TxMode = iota
	// TxLocked stays at READ COMMITTED and bounds row-lock waits
	TxLocked
	// TxStrict adds serializable isolation (when enabled) to TxLocked
	TxStrict
)

func (m TxMode) String() string {
	switch m {
	case TxLocked:
		return "locked"
	case TxStrict:
		return "strict"
	}
	return "default"
}

// Store runs units of work against the persistent ledger
type Store interface {
	Repos() Repositories
	// InTx runs fn in one transaction. Any error rolls back every effect.
	InTx(ctx context.Context, mode TxMode, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}

// OutletKey identifies one outlet of one tenant
type OutletKey struct {
	TenantID uint
	OutletID uint
}
