package erp

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// WarehouseStock is one on-hand row per item and warehouse.
type WarehouseStock struct {
	ItemCode string          `json:"ItemCode"`
	WhsCode  string          `json:"WhsCode"`
	InStock  decimal.Decimal `json:"InStock"`
}

// GetWarehouseStocks pages through the warehouse-stock saved query until the
// Service Layer stops returning a next link.
func (c *Client) GetWarehouseStocks(ctx context.Context) ([]WarehouseStock, error) {
	var all []WarehouseStock
	path := "SQLQueries('WarehouseStocks')/List"
	for path != "" {
		var res struct {
			Value    []WarehouseStock `json:"value"`
			NextLink string           `json:"odata.nextLink"`
		}
		if err := c.Post(ctx, path, map[string]string{}, &res); err != nil {
			return nil, fmt.Errorf("fetch warehouse stocks: %w", err)
		}
		all = append(all, res.Value...)
		path = strings.TrimSpace(res.NextLink)
	}
	return all, nil
}
