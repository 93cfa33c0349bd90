package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockSource pulls the full on-hand picture from the ERP.
type StockSource interface {
	GetWarehouseStocks(ctx context.Context) ([]erp.WarehouseStock, error)
}

// MaterialService computes material shortages for a requested production
// quantity against the cached warehouse stock.
type MaterialService struct {
	bom         *BOMService
	stocks      *repository.StockRepository
	procurement *repository.ProcurementRepository
	source      StockSource
	logger      *zap.Logger
	maxDepth    int
}

func NewMaterialService(bom *BOMService, repos *repository.Repositories, source StockSource, logger *zap.Logger) *MaterialService {
	return &MaterialService{
		bom:         bom,
		stocks:      repos.Stock,
		procurement: repos.Procurement,
		source:      source,
		logger:      logger,
		maxDepth:    1,
	}
}

// SyncStocks refreshes the on-hand cache from the ERP. Returns the number of
// rows written.
func (s *MaterialService) SyncStocks(ctx context.Context) (int, error) {
	rows, err := s.source.GetWarehouseStocks(ctx)
	if err != nil {
		var unavail *erp.UnavailableError
		if errors.As(err, &unavail) {
			return 0, &ExternalUnavailableError{Err: err}
		}
		return 0, err
	}

	cache := make([]entity.ItemWarehouseStock, 0, len(rows))
	for _, row := range rows {
		code := strings.TrimSpace(row.ItemCode)
		whs := strings.TrimSpace(row.WhsCode)
		if code == "" || whs == "" {
			continue
		}
		cache = append(cache, entity.ItemWarehouseStock{
			ItemCode: code,
			WhsCode:  whs,
			InStock:  row.InStock,
		})
	}
	if err := s.stocks.ReplaceStocks(ctx, cache); err != nil {
		return 0, fmt.Errorf("refresh stock cache: %w", err)
	}
	s.logger.Info("warehouse stock cache refreshed", zap.Int("rows", len(cache)))
	return len(cache), nil
}

// GetStructure returns the BOM of an item; an item without one is a definitive
// empty answer. With refresh the cached structure is dropped first.
func (s *MaterialService) GetStructure(ctx context.Context, itemCode string, refresh bool) (*erp.Structure, error) {
	code := strings.TrimSpace(itemCode)
	if code == "" {
		return nil, validationErr("itemCode", "is required")
	}
	if refresh {
		s.bom.Invalidate(ctx, code)
	}
	return s.bom.ResolveRequired(ctx, code, refresh)
}

// ShortageInput is one shortage computation request.
type ShortageInput struct {
	ItemCode        string          `json:"itemCode"`
	RequestedQty    decimal.Decimal `json:"requestedQty"`
	FallbackWhsCode string          `json:"fallbackWhsCode"`
	BypassCache     bool            `json:"bypassCache"`
}

// ShortageResult reports whether the request is coverable and, if not, what
// is missing.
type ShortageResult struct {
	OK        bool                 `json:"ok"`
	Shortages entity.ShortageLines `json:"shortages"`
}

// ComputeShortages resolves the item's BOM, groups the component needs by
// item and warehouse, subtracts cached stock and keeps only positive gaps.
// Sub-assembly gaps recurse one level into their own BOM.
func (s *MaterialService) ComputeShortages(ctx context.Context, in ShortageInput) (*ShortageResult, error) {
	itemCode := strings.TrimSpace(in.ItemCode)
	if itemCode == "" {
		return nil, validationErr("itemCode", "is required")
	}
	if !in.RequestedQty.IsPositive() {
		return nil, validationErr("requestedQty", "must be positive")
	}
	fallback := strings.TrimSpace(in.FallbackWhsCode)
	if fallback == "" {
		fallback = "01"
	}

	visited := map[string]bool{itemCode: true}
	shortages, err := s.compute(ctx, itemCode, in.RequestedQty, fallback, in.BypassCache, 0, visited)
	if err != nil {
		return nil, err
	}
	return &ShortageResult{OK: len(shortages) == 0, Shortages: shortages}, nil
}

func (s *MaterialService) compute(ctx context.Context, itemCode string, requestedQty decimal.Decimal, fallbackWhs string, bypassCache bool, depth int, visited map[string]bool) (entity.ShortageLines, error) {
	st, err := s.bom.Resolve(ctx, itemCode, bypassCache)
	if err != nil {
		return nil, err
	}

	// No BOM means the item itself must be procured in full.
	if len(st.Items) == 0 {
		return entity.ShortageLines{{
			ItemCode: itemCode,
			WhsCode:  fallbackWhs,
			Required: requestedQty,
			InStock:  decimal.Zero,
			Missing:  requestedQty,
		}}, nil
	}

	type need struct {
		itemCode string
		whsCode  string
		required decimal.Decimal
	}
	needsMap := make(map[string]*need)
	var order []string
	for _, line := range st.Items {
		code := strings.TrimSpace(line.ItemCode)
		if code == "" {
			continue
		}
		whs := strings.TrimSpace(line.WhsCode)
		if whs == "" {
			whs = fallbackWhs
		}
		required := requestedQty.Mul(line.Quantity)

		key := code + "__" + whs
		if prev, ok := needsMap[key]; ok {
			prev.required = prev.required.Add(required)
		} else {
			needsMap[key] = &need{itemCode: code, whsCode: whs, required: required}
			order = append(order, key)
		}
	}

	keys := make([]repository.StockKey, 0, len(order))
	for _, k := range order {
		n := needsMap[k]
		keys = append(keys, repository.StockKey{ItemCode: n.itemCode, WhsCode: n.whsCode})
	}
	stocks, err := s.stocks.GetStocks(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load stock cache: %w", err)
	}

	var shortages entity.ShortageLines
	for _, k := range order {
		n := needsMap[k]
		inStock := decimal.Zero
		if row, ok := stocks[repository.StockKey{ItemCode: n.itemCode, WhsCode: n.whsCode}]; ok {
			inStock = row.InStock
		}
		missing := n.required.Sub(inStock)
		if !missing.IsPositive() {
			continue
		}
		shortages = append(shortages, entity.ShortageLine{
			ItemCode: n.itemCode,
			WhsCode:  n.whsCode,
			Required: n.required,
			InStock:  inStock,
			Missing:  missing,
		})
	}

	s.enrichNames(ctx, shortages)

	// Sub-assemblies are worth opening up: their own components may be on
	// hand even when the assembly is not.
	if depth < s.maxDepth {
		for i := range shortages {
			line := &shortages[i]
			if !strings.HasPrefix(line.ItemCode, entity.SubAssemblyItemPrefix) || visited[line.ItemCode] {
				continue
			}
			visited[line.ItemCode] = true
			children, err := s.compute(ctx, line.ItemCode, line.Missing, line.WhsCode, bypassCache, depth+1, visited)
			if err != nil {
				s.logger.Warn("sub-assembly shortage computation failed",
					zap.String("item", line.ItemCode), zap.Error(err))
				continue
			}
			line.Children = children
		}
	}
	return shortages, nil
}

func (s *MaterialService) enrichNames(ctx context.Context, lines entity.ShortageLines) {
	if len(lines) == 0 {
		return
	}
	codeSet := make(map[string]bool)
	for _, l := range lines {
		codeSet[l.ItemCode] = true
	}
	codes := make([]string, 0, len(codeSet))
	for c := range codeSet {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	names, err := s.stocks.GetItemNames(ctx, codes)
	if err != nil {
		s.logger.Warn("item name lookup failed", zap.Error(err))
		return
	}
	for i := range lines {
		if name, ok := names[lines[i].ItemCode]; ok {
			lines[i].ItemName = name
		}
	}
}

// CreateShortageRun computes shortages and persists the run so procurement
// can be generated from it later.
func (s *MaterialService) CreateShortageRun(ctx context.Context, in ShortageInput) (*entity.MaterialShortageRun, error) {
	result, err := s.ComputeShortages(ctx, in)
	if err != nil {
		return nil, err
	}
	run := &entity.MaterialShortageRun{
		ID:           uuid.New().String(),
		ItemCode:     strings.TrimSpace(in.ItemCode),
		RequestedQty: in.RequestedQty,
		WhsCode:      in.FallbackWhsCode,
		Payload: entity.JSONB{
			"itemCode":        in.ItemCode,
			"requestedQty":    in.RequestedQty.String(),
			"fallbackWhsCode": in.FallbackWhsCode,
		},
		Shortages: result.Shortages,
		OK:        result.OK,
	}
	if err := s.procurement.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist shortage run: %w", err)
	}
	return run, nil
}
