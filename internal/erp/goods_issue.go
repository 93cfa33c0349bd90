package erp

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// GoodsIssueSerial identifies one serial-managed unit on an issue line.
type GoodsIssueSerial struct {
	InternalSerialNumber string `json:"InternalSerialNumber"`
	Quantity             int    `json:"Quantity"`
}

// GoodsIssueLine is one document line of an inventory exit.
type GoodsIssueLine struct {
	ItemCode      string             `json:"ItemCode"`
	Quantity      decimal.Decimal    `json:"Quantity"`
	WarehouseCode string             `json:"WarehouseCode,omitempty"`
	SerialNumbers []GoodsIssueSerial `json:"SerialNumbers,omitempty"`
}

// GoodsIssue is an InventoryGenExits document.
type GoodsIssue struct {
	DocDate       string           `json:"DocDate,omitempty"`
	Comments      string           `json:"Comments,omitempty"`
	DocumentLines []GoodsIssueLine `json:"DocumentLines"`
}

// PostGoodsIssue books a material exit. A negative-stock rejection surfaces
// as a *RequestError with code -10; use IsNegativeStock to detect it.
func (c *Client) PostGoodsIssue(ctx context.Context, doc GoodsIssue) error {
	if len(doc.DocumentLines) == 0 {
		return fmt.Errorf("goods issue requires at least one line")
	}
	if err := c.Post(ctx, "InventoryGenExits", doc, nil); err != nil {
		return fmt.Errorf("post goods issue: %w", err)
	}
	return nil
}
