package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StageService moves serialized units through the assembly route. All state
// transitions run in a single transaction with the affected rows locked, so
// the fan-in join fires exactly once even under concurrent finishes.
type StageService struct {
	db      *gorm.DB
	orders  *repository.OrderRepository
	ops     *repository.OperationRepository
	gateway ERPGateway
	logger  *zap.Logger
}

func NewStageService(db *gorm.DB, repos *repository.Repositories, gateway ERPGateway, logger *zap.Logger) *StageService {
	return &StageService{
		db:      db,
		orders:  repos.Order,
		ops:     repos.Operation,
		gateway: gateway,
		logger:  logger,
	}
}

// StartUnit puts a unit to work at an operation. Missing unit rows of the
// operation are backfilled first, so units created after the operation was
// opened can still be started.
func (s *StageService) StartUnit(ctx context.Context, operationID, unitID, userID string) (*entity.ProductionOperationUnit, error) {
	var result *entity.ProductionOperationUnit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := s.ops.FindOperationByID(tx, operationID)
		if err != nil {
			return err
		}
		if err := s.backfillOperationUnits(tx, op); err != nil {
			return err
		}

		row, err := s.ops.FindOperationUnit(tx, operationID, unitID, true)
		if err != nil {
			return err
		}
		switch row.Status {
		case entity.OpUnitStatusDone:
			return &InvalidStateError{Current: row.Status, Reason: "unit already finished at this stage"}
		case entity.OpUnitStatusPaused:
			return &InvalidStateError{Current: row.Status, Reason: "unit is paused, resume it first"}
		case entity.OpUnitStatusInProgress:
			result = row
			return nil
		}

		now := time.Now()
		row.Status = entity.OpUnitStatusInProgress
		if row.StartedAt == nil {
			row.StartedAt = &now
		}
		row.LastActionByUserID = userID
		if err := s.ops.SaveOperationUnit(tx, row); err != nil {
			return fmt.Errorf("start unit: %w", err)
		}
		result = row
		return s.ops.AppendLog(tx, &entity.OperationUnitLog{
			OperationID: operationID,
			UnitID:      unitID,
			Action:      entity.ActionStart,
			UserID:      userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PauseUnit suspends work on a unit. A reason is mandatory; it goes into the
// audit trail.
func (s *StageService) PauseUnit(ctx context.Context, operationID, unitID, reason, note, userID string) (*entity.ProductionOperationUnit, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, validationErr("reason", "is required")
	}

	var result *entity.ProductionOperationUnit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.ops.FindOperationUnit(tx, operationID, unitID, true)
		if err != nil {
			return err
		}
		if row.Status != entity.OpUnitStatusInProgress {
			return &InvalidStateError{Current: row.Status, Reason: "only a unit in progress can be paused"}
		}

		now := time.Now()
		row.Status = entity.OpUnitStatusPaused
		row.PausedAt = &now
		row.LastActionByUserID = userID
		if err := s.ops.SaveOperationUnit(tx, row); err != nil {
			return fmt.Errorf("pause unit: %w", err)
		}
		result = row
		return s.ops.AppendLog(tx, &entity.OperationUnitLog{
			OperationID: operationID,
			UnitID:      unitID,
			Action:      entity.ActionPause,
			Reason:      reason,
			Note:        note,
			UserID:      userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResumeUnit ends a pause and adds the paused interval, in whole seconds, to
// the unit's accumulated pause time.
func (s *StageService) ResumeUnit(ctx context.Context, operationID, unitID, userID string) (*entity.ProductionOperationUnit, error) {
	var result *entity.ProductionOperationUnit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.ops.FindOperationUnit(tx, operationID, unitID, true)
		if err != nil {
			return err
		}
		if row.Status != entity.OpUnitStatusPaused || row.PausedAt == nil {
			return &InvalidStateError{Current: row.Status, Reason: "only a paused unit can be resumed"}
		}

		now := time.Now()
		diff := int64(now.Sub(*row.PausedAt).Seconds())
		if diff < 0 {
			diff = 0
		}
		row.Status = entity.OpUnitStatusInProgress
		row.PausedAt = nil
		row.PausedTotalSeconds += diff
		row.LastActionByUserID = userID
		if err := s.ops.SaveOperationUnit(tx, row); err != nil {
			return fmt.Errorf("resume unit: %w", err)
		}
		result = row
		return s.ops.AppendLog(tx, &entity.OperationUnitLog{
			OperationID: operationID,
			UnitID:      unitID,
			Action:      entity.ActionResume,
			UserID:      userID,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FinishUnit completes a unit at an operation and advances it along the
// route. Finishing an already finished unit is a no-op and returns the row
// unchanged. The whole step, including the fan-in check, runs in one
// transaction over locked rows.
func (s *StageService) FinishUnit(ctx context.Context, operationID, unitID, userID string) (*entity.ProductionOperationUnit, error) {
	var (
		result         *entity.ProductionOperationUnit
		completedOrder *entity.ProductionOrder
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := s.ops.FindOperationByID(tx, operationID)
		if err != nil {
			return err
		}
		// Lock the order row first. Concurrent finishes of sibling stages
		// would otherwise deadlock when the join re-reads each other's rows.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&entity.ProductionOrder{}, "id = ?", op.OrderID).Error; err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		row, err := s.ops.FindOperationUnit(tx, operationID, unitID, true)
		if err != nil {
			return err
		}
		if row.Status == entity.OpUnitStatusDone {
			result = row
			return nil
		}

		now := time.Now()
		if row.Status == entity.OpUnitStatusPaused && row.PausedAt != nil {
			diff := int64(now.Sub(*row.PausedAt).Seconds())
			if diff > 0 {
				row.PausedTotalSeconds += diff
			}
			row.PausedAt = nil
		}
		row.Status = entity.OpUnitStatusDone
		row.FinishedAt = &now
		row.LastActionByUserID = userID
		if err := s.ops.SaveOperationUnit(tx, row); err != nil {
			return fmt.Errorf("finish unit: %w", err)
		}
		result = row
		if err := s.ops.AppendLog(tx, &entity.OperationUnitLog{
			OperationID: operationID,
			UnitID:      unitID,
			Action:      entity.ActionFinish,
			UserID:      userID,
		}); err != nil {
			return err
		}

		if err := s.advance(tx, op, unitID); err != nil {
			return err
		}

		if entity.TerminalStage(op.StageCode) {
			done, err := s.completeIfFinished(tx, op, unitID)
			if err != nil {
				return err
			}
			completedOrder = done
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The ERP status update is best effort. The local transaction already
	// committed; a failure here is logged and noted, never propagated.
	if completedOrder != nil && completedOrder.SapDocEntry != nil {
		if err := s.gateway.UpdateOrderProductionStatus(ctx, *completedOrder.SapDocEntry, "TAMAMLANDI"); err != nil {
			s.logger.Warn("deferred erp status update failed",
				zap.String("order_id", completedOrder.ID),
				zap.Error(err))
			s.db.WithContext(ctx).Model(&entity.ProductionOperationUnit{}).
				Where("id = ?", result.ID).
				Update("note", fmt.Sprintf("erp status update deferred: %v", err))
		}
	}
	return result, nil
}

// advance applies the route edges leaving the finished stage. For an all-of
// join every predecessor row of the unit is re-read under lock; the join
// opens the successor only when the last predecessor finishes.
func (s *StageService) advance(tx *gorm.DB, op *entity.ProductionOperation, unitID string) error {
	for _, edge := range entity.SuccessorEdges(op.StageCode) {
		if edge.Join == entity.JoinAllOf {
			rows, err := s.ops.LockUnitRowsAtStages(tx, op.OrderID, unitID, edge.From)
			if err != nil {
				return fmt.Errorf("evaluate join into %s: %w", edge.To, err)
			}
			if len(rows) < len(edge.From) {
				continue
			}
			allDone := true
			for _, r := range rows {
				if r.Status != entity.OpUnitStatusDone {
					allDone = false
					break
				}
			}
			if !allDone {
				continue
			}
		}

		next, err := s.ops.EnsureOperation(tx, op.OrderID, entity.StageByCode[edge.To])
		if err != nil {
			return fmt.Errorf("ensure operation %s: %w", edge.To, err)
		}
		if err := s.ops.OpenOperationUnits(tx, next.ID, []string{unitID}); err != nil {
			return fmt.Errorf("open unit at %s: %w", edge.To, err)
		}
	}
	return nil
}

// completeIfFinished marks the unit done and, once every unit of the order
// has passed the terminal stage, completes the order. Returns the order when
// it just completed.
func (s *StageService) completeIfFinished(tx *gorm.DB, op *entity.ProductionOperation, unitID string) (*entity.ProductionOrder, error) {
	if err := tx.Model(&entity.ProductionUnit{}).
		Where("id = ?", unitID).
		Update("status", entity.OpUnitStatusDone).Error; err != nil {
		return nil, err
	}

	unfinished, err := s.ops.CountUnfinishedAtStage(tx, op.ID)
	if err != nil {
		return nil, err
	}
	var unitTotal, opUnitTotal int64
	if err := tx.Model(&entity.ProductionUnit{}).Where("order_id = ?", op.OrderID).Count(&unitTotal).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&entity.ProductionOperationUnit{}).Where("operation_id = ?", op.ID).Count(&opUnitTotal).Error; err != nil {
		return nil, err
	}
	// Every unit must have reached the terminal stage and finished there.
	if unfinished > 0 || opUnitTotal < unitTotal {
		return nil, nil
	}

	var order entity.ProductionOrder
	if err := tx.First(&order, "id = ?", op.OrderID).Error; err != nil {
		return nil, err
	}
	if order.Status == entity.OrderStatusCompleted {
		return nil, nil
	}
	if err := s.orders.UpdateStatus(tx, order.ID, entity.OrderStatusCompleted); err != nil {
		return nil, err
	}
	order.Status = entity.OrderStatusCompleted
	return &order, nil
}

// backfillOperationUnits opens rows at an operation for units created after
// the operation was laid out. Only the first stage receives new units
// automatically; later stages get theirs through route advancement.
func (s *StageService) backfillOperationUnits(tx *gorm.DB, op *entity.ProductionOperation) error {
	if op.StageCode != entity.StageAkuple {
		return nil
	}
	var units []entity.ProductionUnit
	if err := tx.Where("order_id = ?", op.OrderID).Find(&units).Error; err != nil {
		return err
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	return s.ops.OpenOperationUnits(tx, op.ID, ids)
}

// StageQueueRow is one unit waiting at or moving through a stage.
type StageQueueRow struct {
	OperationID        string     `json:"operation_id"`
	UnitID             string     `json:"unit_id"`
	SerialNo           string     `json:"serial_no"`
	OrderID            string     `json:"order_id"`
	ItemCode           string     `json:"item_code"`
	ItemName           string     `json:"item_name"`
	Status             string     `json:"status"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	PausedAt           *time.Time `json:"paused_at,omitempty"`
	PausedTotalSeconds int64      `json:"paused_total_seconds"`
	ActiveSeconds      int64      `json:"active_seconds"`
}

// ListStageQueue returns the units currently attached to a stage.
func (s *StageService) ListStageQueue(ctx context.Context, stageCode string, statuses []string) ([]StageQueueRow, error) {
	code := entity.NormalizeStageName(stageCode)
	if _, ok := entity.StageByCode[code]; !ok {
		return nil, validationErr("stage", fmt.Sprintf("unknown stage %q", stageCode))
	}
	rows, err := s.ops.ListStageQueue(ctx, code, statuses)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]StageQueueRow, 0, len(rows))
	for _, r := range rows {
		q := StageQueueRow{
			OperationID:        r.OperationID,
			UnitID:             r.UnitID,
			Status:             r.Status,
			StartedAt:          r.StartedAt,
			FinishedAt:         r.FinishedAt,
			PausedAt:           r.PausedAt,
			PausedTotalSeconds: r.PausedTotalSeconds,
			ActiveSeconds:      r.ActiveSeconds(now),
		}
		if r.Unit != nil {
			q.SerialNo = r.Unit.SerialNo
			q.OrderID = r.Unit.OrderID
			if r.Unit.Order != nil {
				q.ItemCode = r.Unit.Order.ItemCode
				q.ItemName = r.Unit.Order.ItemName
			}
		}
		out = append(out, q)
	}
	return out, nil
}

// UnitStageReport is the per-stage timing of one unit.
type UnitStageReport struct {
	StageCode          string     `json:"stage_code"`
	Sequence           int        `json:"sequence"`
	Status             string     `json:"status"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	PausedTotalSeconds int64      `json:"paused_total_seconds"`
	ActiveSeconds      int64      `json:"active_seconds"`
}

// UnitHistory returns a unit's route progress by serial number.
func (s *StageService) UnitHistory(ctx context.Context, serialNo string) (*entity.ProductionUnit, []UnitStageReport, error) {
	if strings.TrimSpace(serialNo) == "" {
		return nil, nil, validationErr("serialNo", "is required")
	}
	unit, err := s.orders.FindUnitBySerial(ctx, serialNo)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.ops.ListUnitHistory(ctx, unit.ID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	reports := make([]UnitStageReport, 0, len(rows))
	for _, r := range rows {
		rep := UnitStageReport{
			Status:             r.Status,
			StartedAt:          r.StartedAt,
			FinishedAt:         r.FinishedAt,
			PausedTotalSeconds: r.PausedTotalSeconds,
			ActiveSeconds:      r.ActiveSeconds(now),
		}
		if r.Operation != nil {
			rep.StageCode = r.Operation.StageCode
			rep.Sequence = r.Operation.Sequence
		}
		reports = append(reports, rep)
	}
	return unit, reports, nil
}

// SelectAlternative records an alternative material pick for a unit. Only
// the first assembly stage allows alternatives.
func (s *StageService) SelectAlternative(ctx context.Context, operationID, unitID, originalItemCode, selectedItemCode, selectedItemName, userID string) error {
	if strings.TrimSpace(originalItemCode) == "" {
		return validationErr("originalItemCode", "is required")
	}
	if strings.TrimSpace(selectedItemCode) == "" {
		return validationErr("selectedItemCode", "is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		op, err := s.ops.FindOperationByID(tx, operationID)
		if err != nil {
			return err
		}
		if op.StageCode != entity.StageAkuple {
			return &InvalidStateError{Current: op.StageCode, Reason: "alternatives are only selected at the first assembly stage"}
		}
		if _, err := s.ops.FindOperationUnit(tx, operationID, unitID, false); err != nil {
			return err
		}

		sel := &entity.AlternativeSelection{
			ID:               uuid.New().String(),
			OperationID:      operationID,
			UnitID:           unitID,
			OriginalItemCode: strings.TrimSpace(originalItemCode),
			SelectedItemCode: strings.TrimSpace(selectedItemCode),
			SelectedItemName: strings.TrimSpace(selectedItemName),
			UserID:           userID,
		}
		if err := s.ops.UpsertAlternativeSelection(tx, sel); err != nil {
			return fmt.Errorf("record alternative selection: %w", err)
		}
		return s.ops.AppendAlternativeLog(tx, &entity.AlternativeLog{
			OperationID:      operationID,
			UnitID:           unitID,
			OriginalItemCode: sel.OriginalItemCode,
			SelectedItemCode: sel.SelectedItemCode,
			UserID:           userID,
		})
	})
}
