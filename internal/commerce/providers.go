package commerce

import (
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/delivery/events"
	"github.com/tair/commerce-ledger/internal/commerce/delivery/http"
	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/internal/commerce/repository"
)

// Ledger holds the entry points of the commerce ledger
type Ledger struct {
	HTTP  *http.LedgerHandler
	Sales *events.SaleIngestor
}

// ProvideStore provides the transactional ledger store
func ProvideStore(db *gorm.DB, opts repository.Options) domain.Store {
	return repository.NewGormStore(db, opts)
}
