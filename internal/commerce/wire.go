//go:build wireinject
// +build wireinject

package commerce

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/delivery/events"
	"github.com/tair/commerce-ledger/internal/commerce/delivery/http"
	"github.com/tair/commerce-ledger/internal/commerce/repository"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/command"
	"github.com/tair/commerce-ledger/internal/commerce/usecase/query"
	"github.com/tair/commerce-ledger/kafka"
	"github.com/tair/commerce-ledger/pkg/cache"
)

// Wire sets
var RepositorySet = wire.NewSet(
	ProvideStore,
)

var CommandHandlerSet = wire.NewSet(
	wire.Bind(new(command.Invalidator), new(*cache.Cache)),
	wire.Bind(new(command.EventPublisher), new(*kafka.Publisher)),
	wire.Bind(new(command.PINVerifier), new(*command.SafePINVerifier)),
	command.NewSafePINVerifier,
	command.NewStockLedger,
	command.NewProcessSaleHandler,
	command.NewAdjustStockHandler,
	command.NewRecordWasteHandler,
	command.NewReceivePurchaseHandler,
	command.NewCreateProductHandler,
	command.NewCreateIngredientHandler,
	command.NewSetRecipeHandler,
	command.NewDeleteItemHandler,
	command.NewOpenRegisterHandler,
	command.NewRecordTransactionHandler,
	command.NewCloseRegisterHandler,
	command.NewTransferHandler,
	command.NewSetSafePinHandler,
	command.NewSetVarianceThresholdHandler,
	command.NewRegisterStaffHandler,
	command.NewCreateLoyaltyProgramHandler,
	command.NewRecomputeMonthlySummaryHandler,
	wire.Struct(new(http.Commands), "*"),
)

var QueryHandlerSet = wire.NewSet(
	query.NewListStockHandler,
	query.NewListMenuHandler,
	query.NewVerifyLedgerHandler,
	query.NewListStockMovesHandler,
	query.NewWalletBalanceHandler,
	query.NewListTransfersHandler,
	query.NewGetRegisterHandler,
	query.NewCurrentRegisterHandler,
	query.NewGetMonthlySummaryHandler,
	query.NewGetDailySalesHandler,
	wire.Struct(new(http.Queries), "*"),
)

var DeliverySet = wire.NewSet(
	wire.Bind(new(events.SaleProcessor), new(*command.ProcessSaleHandler)),
	http.NewLedgerHandler,
	events.NewSaleIngestor,
	wire.Struct(new(Ledger), "*"),
)

// InitializeLedger builds the HTTP and Kafka entry points with all dependencies
func InitializeLedger(db *gorm.DB, opts repository.Options, c *cache.Cache, limiter *cache.RateLimiter, publisher *kafka.Publisher, policy command.Policy) (*Ledger, error) {
	wire.Build(
		RepositorySet,
		CommandHandlerSet,
		QueryHandlerSet,
		DeliverySet,
	)
	return nil, nil
}
