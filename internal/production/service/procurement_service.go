package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcurementService turns persisted shortage runs into draft purchase
// requests, at most one per run.
type ProcurementService struct {
	db          *gorm.DB
	procurement *repository.ProcurementRepository
	stocks      *repository.StockRepository
	logger      *zap.Logger
}

func NewProcurementService(db *gorm.DB, repos *repository.Repositories, logger *zap.Logger) *ProcurementService {
	return &ProcurementService{
		db:          db,
		procurement: repos.Procurement,
		stocks:      repos.Stock,
		logger:      logger,
	}
}

// CreateRequestInput selects a shortage run to purchase from.
type CreateRequestInput struct {
	RunID           string `json:"runId"`
	IncludeChildren bool   `json:"includeChildren"`
	Note            string `json:"note"`
	UserID          string `json:"-"`
}

// CreateRequestResult carries the request plus whether it pre-existed.
type CreateRequestResult struct {
	RequestID     string `json:"request_id"`
	AlreadyExists bool   `json:"already_exists"`
}

// CreateRequestFromRun generates the purchase request of a shortage run.
// Calling it again for the same run returns the existing request instead of
// creating a duplicate.
func (s *ProcurementService) CreateRequestFromRun(ctx context.Context, in CreateRequestInput) (*CreateRequestResult, error) {
	runID := strings.TrimSpace(in.RunID)
	if runID == "" {
		return nil, validationErr("runId", "is required")
	}

	var result CreateRequestResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The run row is locked so concurrent calls for the same run
		// serialize; the loser of the race sees the winner's request.
		run, err := s.procurement.FindRunByID(tx.Clauses(clause.Locking{Strength: "UPDATE"}), runID)
		if err != nil {
			return err
		}

		existing, err := s.procurement.FindRequestByRunID(tx, runID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = CreateRequestResult{RequestID: existing.ID, AlreadyExists: true}
			return nil
		}

		lines := flattenShortages(run.Shortages, in.IncludeChildren)
		if len(lines) == 0 {
			return validationErr("shortages", "run has no purchasable lines")
		}
		s.enrichLineNames(ctx, lines)

		req := &entity.PurchaseRequest{
			ID:              uuid.New().String(),
			MaterialRunID:   run.ID,
			Source:          entity.PurchaseRequestSourceMaterialShortage,
			Status:          entity.PurchaseRequestStatusDraft,
			Note:            in.Note,
			CreatedByUserID: in.UserID,
		}
		for i := range lines {
			lines[i].ID = uuid.New().String()
			lines[i].RequestID = req.ID
		}
		if err := s.procurement.CreateRequest(tx, req, lines); err != nil {
			return fmt.Errorf("create purchase request: %w", err)
		}
		result = CreateRequestResult{RequestID: req.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ProcurementService) GetRequest(ctx context.Context, id string) (*entity.PurchaseRequest, error) {
	return s.procurement.FindRequestByID(ctx, id)
}

func (s *ProcurementService) ListRequests(ctx context.Context, limit, offset int) ([]entity.PurchaseRequest, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.procurement.ListRequests(ctx, limit, offset)
}

// flattenShortages normalizes a shortage tree into purchase lines. Child
// lines keep a reference to the sub-assembly they belong to.
func flattenShortages(shortages entity.ShortageLines, includeChildren bool) []entity.PurchaseRequestItem {
	var out []entity.PurchaseRequestItem
	for _, line := range shortages {
		if line.Missing.IsPositive() {
			out = append(out, entity.PurchaseRequestItem{
				ItemCode: line.ItemCode,
				ItemName: line.ItemName,
				WhsCode:  line.WhsCode,
				Quantity: line.Missing,
			})
		}
		if !includeChildren {
			continue
		}
		for _, child := range line.Children {
			if !child.Missing.IsPositive() {
				continue
			}
			out = append(out, entity.PurchaseRequestItem{
				ItemCode:       child.ItemCode,
				ItemName:       child.ItemName,
				WhsCode:        child.WhsCode,
				Quantity:       child.Missing,
				ParentItemCode: line.ItemCode,
			})
		}
	}
	return out
}

func (s *ProcurementService) enrichLineNames(ctx context.Context, lines []entity.PurchaseRequestItem) {
	codeSet := make(map[string]bool)
	for _, l := range lines {
		if l.ItemName == "" {
			codeSet[l.ItemCode] = true
		}
	}
	if len(codeSet) == 0 {
		return
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
		if lines[i].ItemName == "" {
			lines[i].ItemName = names[lines[i].ItemCode]
		}
	}
}
