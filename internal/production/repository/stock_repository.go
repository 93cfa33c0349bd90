package repository

import (
	"context"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

// StockKey addresses one on-hand row.
type StockKey struct {
	ItemCode string
	WhsCode  string
}

// GetStocks returns the cached on-hand rows for the requested keys, keyed by
// item and warehouse. Missing rows simply do not appear in the map.
func (r *StockRepository) GetStocks(ctx context.Context, keys []StockKey) (map[StockKey]entity.ItemWarehouseStock, error) {
	out := make(map[StockKey]entity.ItemWarehouseStock, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	q := r.db.WithContext(ctx).Model(&entity.ItemWarehouseStock{})
	cond := r.db.Session(&gorm.Session{NewDB: true})
	for _, k := range keys {
		cond = cond.Or("item_code = ? AND whs_code = ?", k.ItemCode, k.WhsCode)
	}
	var rows []entity.ItemWarehouseStock
	if err := q.Where(cond).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[StockKey{ItemCode: row.ItemCode, WhsCode: row.WhsCode}] = row
	}
	return out, nil
}

// GetItemNames resolves display names for a batch of item codes. Unknown
// codes are silently absent from the result.
func (r *StockRepository) GetItemNames(ctx context.Context, itemCodes []string) (map[string]string, error) {
	out := make(map[string]string, len(itemCodes))
	if len(itemCodes) == 0 {
		return out, nil
	}
	var items []entity.Item
	err := r.db.WithContext(ctx).
		Where("item_code IN ?", itemCodes).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ItemCode] = it.ItemName
	}
	return out, nil
}

// ReplaceStocks refreshes the on-hand cache with rows fetched from the ERP.
func (r *StockRepository) ReplaceStocks(ctx context.Context, rows []entity.ItemWarehouseStock) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_code"}, {Name: "whs_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"in_stock", "updated_at"}),
	}).CreateInBatches(&rows, 500).Error
}
