package erp

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderLine is the main product line of a sales order, used to seed a
// production order.
type OrderLine struct {
	DocEntry int             `json:"DocEntry"`
	DocNum   int             `json:"DocNum"`
	ItemCode string          `json:"ItemCode"`
	ItemName string          `json:"ItemName"`
	Quantity decimal.Decimal `json:"Quantity"`
	WhsCode  string          `json:"WhsCode"`
}

// GetOrderMainLine fetches the serialized-product line of a sales order by
// document number. Returns nil when the order has no such line.
func (c *Client) GetOrderMainLine(ctx context.Context, docNum int) (*OrderLine, error) {
	var res struct {
		Value []OrderLine `json:"value"`
	}
	err := c.Post(ctx, "SQLQueries('OrderMainItemByDocNum')/List", map[string]string{
		"ParamList": fmt.Sprintf("DocNum=%d", docNum),
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("fetch order %d: %w", docNum, err)
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	line := res.Value[0]
	return &line, nil
}

// UpdateOrderProductionStatus patches a user field on the sales order line.
// Failures here are benign for production flow; callers log and continue.
func (c *Client) UpdateOrderProductionStatus(ctx context.Context, docEntry int, status string) error {
	body := map[string]string{"U_UretimDurum": status}
	if err := c.Patch(ctx, fmt.Sprintf("Orders(%d)", docEntry), body); err != nil {
		return fmt.Errorf("update production status of order %d: %w", docEntry, err)
	}
	return nil
}
