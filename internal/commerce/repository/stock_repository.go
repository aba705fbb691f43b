package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormStockRepository implements domain.StockRepository
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

func productItem(p *domain.Product) domain.StockItem {
	return domain.StockItem{
		Ref:          domain.ProductRef(p.ID),
		TenantID:     p.TenantID,
		OutletID:     p.OutletID,
		Name:         p.Name,
		CurrentStock: p.CurrentStock,
		MinStock:     p.MinStock,
		Version:      p.Version,
		LowStock:     p.CurrentStock.LessThan(p.MinStock),
	}
}

func ingredientItem(i *domain.Ingredient) domain.StockItem {
	return domain.StockItem{
		Ref:          domain.IngredientRef(i.ID),
		TenantID:     i.TenantID,
		OutletID:     i.OutletID,
		Name:         i.Name,
		CurrentStock: i.CurrentStock,
		MinStock:     i.MinStock,
		Version:      i.Version,
		LowStock:     i.CurrentStock.LessThan(i.MinStock),
	}
}

func modelFor(ref domain.ItemRef) (interface{}, error) {
	switch ref.Kind {
	case domain.KindProduct:
		return &domain.Product{}, nil
	case domain.KindIngredient:
		return &domain.Ingredient{}, nil
	}
	return nil, fmt.Errorf("%w: unknown item kind %q", domain.ErrValidation, ref.Kind)
}

func (r *GormStockRepository) LockItem(ctx context.Context, tenantID uint, ref domain.ItemRef) (*domain.StockItem, error) {
	q := forUpdate(r.db.WithContext(ctx)).Where("id = ? AND tenant_id = ?", ref.ID, tenantID)

	var item domain.StockItem
	switch ref.Kind {
	case domain.KindProduct:
		var p domain.Product
		if err := q.First(&p).Error; err != nil {
			return nil, notFound(err, "product %d", ref.ID)
		}
		item = productItem(&p)
	case domain.KindIngredient:
		var i domain.Ingredient
		if err := q.First(&i).Error; err != nil {
			return nil, notFound(err, "ingredient %d", ref.ID)
		}
		item = ingredientItem(&i)
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", domain.ErrValidation, ref.Kind)
	}
	return &item, nil
}

func (r *GormStockRepository) UpdateStock(ctx context.Context, ref domain.ItemRef, newStock decimal.Decimal) error {
	model, err := modelFor(ref)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(model).
		Where("id = ?", ref.ID).
		Updates(map[string]interface{}{
			"current_stock": newStock,
			"version":       gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	return nil
}

func (r *GormStockRepository) AppendMove(ctx context.Context, move *domain.StockMove) error {
	return r.db.WithContext(ctx).Create(move).Error
}

func (r *GormStockRepository) ListItems(ctx context.Context, tenantID, outletID uint) ([]domain.StockItem, error) {
	db := r.db.WithContext(ctx)

	var products []domain.Product
	if err := db.Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID).Order("name").Find(&products).Error; err != nil {
		return nil, err
	}
	var ingredients []domain.Ingredient
	if err := db.Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID).Order("name").Find(&ingredients).Error; err != nil {
		return nil, err
	}

	items := make([]domain.StockItem, 0, len(products)+len(ingredients))
	for i := range ingredients {
		items = append(items, ingredientItem(&ingredients[i]))
	}
	for i := range products {
		items = append(items, productItem(&products[i]))
	}
	return items, nil
}

func (r *GormStockRepository) SumMoves(ctx context.Context, tenantID, outletID uint) (map[domain.ItemRef]decimal.Decimal, error) {
	var rows []struct {
		ProductID    *uint
		IngredientID *uint
		Total        decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&domain.StockMove{}).
		Select("product_id, ingredient_id, SUM(delta) AS total").
		Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID).
		Group("product_id, ingredient_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make(map[domain.ItemRef]decimal.Decimal, len(rows))
	for _, row := range rows {
		m := domain.StockMove{ProductID: row.ProductID, IngredientID: row.IngredientID}
		sums[m.Ref()] = row.Total
	}
	return sums, nil
}

func (r *GormStockRepository) ListMoves(ctx context.Context, tenantID, outletID uint, ref domain.ItemRef, limit int) ([]domain.StockMove, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID)
	switch ref.Kind {
	case domain.KindProduct:
		q = q.Where("product_id = ?", ref.ID)
	case domain.KindIngredient:
		q = q.Where("ingredient_id = ?", ref.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var moves []domain.StockMove
	err := q.Order("id DESC").Find(&moves).Error
	return moves, err
}
