package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
)

// GormCatalogRepository implements domain.CatalogRepository
type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

func orderedRecipe(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func (r *GormCatalogRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Omit("Recipe").Create(p).Error
}

func (r *GormCatalogRepository) CreateIngredient(ctx context.Context, i *domain.Ingredient) error {
	return r.db.WithContext(ctx).Create(i).Error
}

func (r *GormCatalogRepository) FindProduct(ctx context.Context, tenantID, outletID, id uint) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).
		Preload("Recipe", orderedRecipe).
		Where("id = ? AND tenant_id = ? AND outlet_id = ?", id, tenantID, outletID).
		First(&p).Error
	if err != nil {
		return nil, notFound(err, "product %d", id)
	}
	return &p, nil
}

func (r *GormCatalogRepository) FindIngredient(ctx context.Context, tenantID, outletID, id uint) (*domain.Ingredient, error) {
	var i domain.Ingredient
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND outlet_id = ?", id, tenantID, outletID).
		First(&i).Error
	if err != nil {
		return nil, notFound(err, "ingredient %d", id)
	}
	return &i, nil
}

func (r *GormCatalogRepository) ReplaceRecipe(ctx context.Context, productID uint, lines []domain.RecipeLine) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("product_id = ?", productID).Delete(&domain.RecipeLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].ID = 0
		lines[i].ProductID = productID
		lines[i].Position = i
	}
	return db.Create(&lines).Error
}

func (r *GormCatalogRepository) SoftDelete(ctx context.Context, tenantID, outletID uint, ref domain.ItemRef) error {
	model, err := modelFor(ref)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND outlet_id = ?", ref.ID, tenantID, outletID).
		Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	return nil
}

func (r *GormCatalogRepository) ListProducts(ctx context.Context, tenantID, outletID uint) ([]domain.Product, error) {
	var products []domain.Product
	err := r.db.WithContext(ctx).
		Preload("Recipe", orderedRecipe).
		Where("tenant_id = ? AND outlet_id = ?", tenantID, outletID).
		Order("name").
		Find(&products).Error
	return products, err
}
