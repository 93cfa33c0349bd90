package erp

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BOMLine is one component row of an item's bill of material.
type BOMLine struct {
	ItemCode string          `json:"itemCode"`
	ItemName string          `json:"itemName"`
	Quantity decimal.Decimal `json:"quantity"`
	WhsCode  string          `json:"whsCode"`
	StageID  *int            `json:"stageId,omitempty"`
}

// RouteStage is one routing row of an item's production structure.
type RouteStage struct {
	StageID   int    `json:"stageId"`
	StageName string `json:"stageName"`
}

// Structure bundles an item's BOM lines and routing stages.
type Structure struct {
	ItemCode string       `json:"itemCode"`
	Items    []BOMLine    `json:"items"`
	Stages   []RouteStage `json:"stages"`
}

type bomRow struct {
	ItemCode  string          `json:"ItemCode"`
	ItemName  string          `json:"ItemName"`
	Quantity  decimal.Decimal `json:"Quantity"`
	WhsCode   string          `json:"WhsCode"`
	Warehouse string          `json:"Warehouse"`
	StageID   *int            `json:"StageId"`
	StageName string          `json:"StageName"`
}

type sqlQueryResult struct {
	Value []bomRow `json:"value"`
}

// GetProductionStructure fetches the BOM and routing of an item through the
// BomByItemCode saved query. An item with no BOM yields an empty structure,
// not an error.
func (c *Client) GetProductionStructure(ctx context.Context, itemCode string) (*Structure, error) {
	code := strings.TrimSpace(itemCode)
	if code == "" {
		return &Structure{}, nil
	}

	var res sqlQueryResult
	err := c.Post(ctx, "SQLQueries('BomByItemCode')/List", map[string]string{
		"ParamList": fmt.Sprintf("ItemCode='%s'", code),
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("fetch production structure of %s: %w", code, err)
	}

	st := &Structure{ItemCode: code}
	seenStages := make(map[int]bool)
	for _, row := range res.Value {
		child := strings.TrimSpace(row.ItemCode)
		if child == "" {
			continue
		}
		whs := strings.TrimSpace(row.WhsCode)
		if whs == "" {
			whs = strings.TrimSpace(row.Warehouse)
		}
		st.Items = append(st.Items, BOMLine{
			ItemCode: child,
			ItemName: strings.TrimSpace(row.ItemName),
			Quantity: row.Quantity,
			WhsCode:  whs,
			StageID:  row.StageID,
		})
		if row.StageID != nil && !seenStages[*row.StageID] {
			seenStages[*row.StageID] = true
			st.Stages = append(st.Stages, RouteStage{
				StageID:   *row.StageID,
				StageName: strings.TrimSpace(row.StageName),
			})
		}
	}
	return st, nil
}
