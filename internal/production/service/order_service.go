package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ERPGateway is the slice of the ERP client the order flow needs.
type ERPGateway interface {
	GetOrderMainLine(ctx context.Context, docNum int) (*erp.OrderLine, error)
	PostGoodsIssue(ctx context.Context, doc erp.GoodsIssue) error
	UpdateOrderProductionStatus(ctx context.Context, docEntry int, status string) error
}

// OrderService creates production orders, their serialized units and the
// route operations they move through.
type OrderService struct {
	db      *gorm.DB
	orders  *repository.OrderRepository
	ops     *repository.OperationRepository
	serials *SerialService
	bom     *BOMService
	gateway ERPGateway
	logger  *zap.Logger
}

func NewOrderService(db *gorm.DB, repos *repository.Repositories, serials *SerialService, bom *BOMService, gateway ERPGateway, logger *zap.Logger) *OrderService {
	return &OrderService{
		db:      db,
		orders:  repos.Order,
		ops:     repos.Operation,
		serials: serials,
		bom:     bom,
		gateway: gateway,
		logger:  logger,
	}
}

// OrderItemInput is one material line of an order payload. Quantity is per
// produced unit.
type OrderItemInput struct {
	ItemCode string          `json:"itemCode"`
	ItemName string          `json:"itemName"`
	Quantity decimal.Decimal `json:"quantity"`
	WhsCode  string          `json:"whsCode"`
	StageID  *int            `json:"stageId"`
}

// CreateOrderInput is the payload for creating a production order.
type CreateOrderInput struct {
	ItemCode    string           `json:"itemCode"`
	ItemName    string           `json:"itemName"`
	Quantity    int              `json:"quantity"`
	WhsCode     string           `json:"whsCode"`
	SapDocEntry *int             `json:"sapDocEntry"`
	SapDocNum   *int             `json:"sapDocNum"`
	Note        string           `json:"note"`
	Items       []OrderItemInput `json:"items"`
	UserID      string           `json:"-"`
}

// CreateOrder validates the payload and, in one transaction, upserts the
// order, tops up its serialized units and lays out the route operations.
// Re-submitting the same ERP document line updates the existing order
// instead of creating a second one.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*entity.ProductionOrder, error) {
	itemCode := strings.TrimSpace(in.ItemCode)
	itemName := strings.TrimSpace(in.ItemName)
	if itemCode == "" {
		return nil, validationErr("itemCode", "is required")
	}
	if itemName == "" {
		return nil, validationErr("itemName", "is required")
	}
	if in.Quantity <= 0 {
		return nil, validationErr("quantity", "must be a positive integer")
	}

	shouldHaveSerial := strings.HasPrefix(itemCode, entity.SerializedItemPrefix)

	// Material template comes from the payload when given, otherwise from
	// the resolved BOM. The ERP being down aborts the import; an item with
	// no BOM just yields an order without material lines.
	items := in.Items
	if len(items) == 0 {
		st, err := s.bom.Resolve(ctx, itemCode, false)
		if err != nil {
			return nil, err
		}
		for _, line := range st.Items {
			items = append(items, OrderItemInput{
				ItemCode: line.ItemCode,
				ItemName: line.ItemName,
				Quantity: line.Quantity,
				WhsCode:  line.WhsCode,
				StageID:  line.StageID,
			})
		}
	}

	stageItems, err := groupItemsByStage(items)
	if err != nil {
		return nil, err
	}

	var orderID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orders.FindActiveByDocLink(tx, in.SapDocEntry, in.SapDocNum, itemCode)
		if err != nil {
			return fmt.Errorf("lookup existing order: %w", err)
		}
		if order == nil {
			order = &entity.ProductionOrder{
				ID:               uuid.New().String(),
				ItemCode:         itemCode,
				ItemName:         itemName,
				Quantity:         in.Quantity,
				Status:           entity.OrderStatusPlanned,
				ShouldHaveSerial: shouldHaveSerial,
				SapDocEntry:      in.SapDocEntry,
				SapDocNum:        in.SapDocNum,
				Note:             in.Note,
				CreatedByUserID:  in.UserID,
			}
			if err := tx.Create(order).Error; err != nil {
				return fmt.Errorf("create order: %w", err)
			}
		} else {
			order.ItemName = itemName
			order.Quantity = in.Quantity
			if in.Note != "" {
				order.Note = in.Note
			}
			if err := tx.Save(order).Error; err != nil {
				return fmt.Errorf("update order: %w", err)
			}
		}
		orderID = order.ID

		if shouldHaveSerial {
			if err := s.topUpUnits(tx, order); err != nil {
				return err
			}
		}
		return s.layoutOperations(tx, order, in.Quantity, stageItems)
	})
	if err != nil {
		return nil, err
	}
	return s.orders.FindByID(ctx, orderID)
}

// ImportFromOrderLine seeds a production order from the main product line of
// a sales order. An order without such a line is a definitive empty answer.
func (s *OrderService) ImportFromOrderLine(ctx context.Context, docNum int, userID string) (*entity.ProductionOrder, error) {
	if docNum <= 0 {
		return nil, validationErr("docNum", "must be a positive integer")
	}
	line, err := s.gateway.GetOrderMainLine(ctx, docNum)
	if err != nil {
		var unavail *erp.UnavailableError
		if errors.As(err, &unavail) {
			return nil, &ExternalUnavailableError{Err: err}
		}
		return nil, err
	}
	if line == nil {
		return nil, fmt.Errorf("order %d has no product line: %w", docNum, ErrExternalEmpty)
	}

	qty := int(line.Quantity.IntPart())
	return s.CreateOrder(ctx, CreateOrderInput{
		ItemCode:    line.ItemCode,
		ItemName:    line.ItemName,
		Quantity:    qty,
		WhsCode:     line.WhsCode,
		SapDocEntry: &line.DocEntry,
		SapDocNum:   &line.DocNum,
		UserID:      userID,
	})
}

// BackfillUnits creates the serials an order is still missing, e.g. after
// its quantity was raised.
func (s *OrderService) BackfillUnits(ctx context.Context, orderID string) (*entity.ProductionOrder, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order entity.ProductionOrder
		if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !order.ShouldHaveSerial {
			return &InvalidStateError{Reason: "order does not track serialized units"}
		}
		return s.topUpUnits(tx, &order)
	})
	if err != nil {
		return nil, err
	}
	return s.orders.FindByID(ctx, orderID)
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.ProductionOrder, error) {
	return s.orders.FindByID(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, status string, limit, offset int) ([]entity.ProductionOrder, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.orders.List(ctx, status, limit, offset)
}

// FirstRouteIssue books the first-stage materials of an order out of stock.
// The ERP's insufficient-stock rejection comes back as a ValidationError so
// the operator sees a actionable message instead of a server error.
func (s *OrderService) FirstRouteIssue(ctx context.Context, orderID, userID string) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	op, err := s.ops.FindOperation(s.db.WithContext(ctx), order.ID, entity.StageAkuple)
	if err != nil {
		return err
	}
	if op == nil {
		return &InvalidStateError{Reason: "order has no first-stage operation"}
	}
	items, err := s.ops.ListOperationItems(ctx, op.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return &InvalidStateError{Reason: "first-stage operation has no material lines"}
	}

	doc := erp.GoodsIssue{Comments: fmt.Sprintf("Production order %s first route issue", order.ID)}
	for _, it := range items {
		doc.DocumentLines = append(doc.DocumentLines, erp.GoodsIssueLine{
			ItemCode:      it.ItemCode,
			Quantity:      it.Quantity,
			WarehouseCode: it.WhsCode,
		})
	}
	if err := s.gateway.PostGoodsIssue(ctx, doc); err != nil {
		if erp.IsNegativeStock(err) {
			return validationErr("stock", "insufficient stock for first route issue")
		}
		var unavail *erp.UnavailableError
		if errors.As(err, &unavail) {
			return &ExternalUnavailableError{Err: err}
		}
		return err
	}
	s.logger.Info("first route issue booked",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int("lines", len(doc.DocumentLines)))
	return nil
}

// topUpUnits brings the order's unit count up to its quantity, allocating
// one contiguous serial per new unit inside the same transaction.
func (s *OrderService) topUpUnits(tx *gorm.DB, order *entity.ProductionOrder) error {
	existing, err := s.orders.CountUnits(tx, order.ID)
	if err != nil {
		return fmt.Errorf("count units: %w", err)
	}
	missing := order.Quantity - int(existing)
	if missing <= 0 {
		return nil
	}

	serials, err := s.serials.AllocateBatch(tx, missing)
	if err != nil {
		return err
	}
	units := make([]entity.ProductionUnit, 0, missing)
	for _, serial := range serials {
		units = append(units, entity.ProductionUnit{
			ID:       uuid.New().String(),
			OrderID:  order.ID,
			SerialNo: serial,
			Status:   entity.OrderStatusPlanned,
		})
	}
	if err := tx.Create(&units).Error; err != nil {
		return fmt.Errorf("create units: %w", err)
	}
	return nil
}

// layoutOperations upserts one operation per route stage, attaches material
// lines to newly created operations and opens the first stage for every unit.
func (s *OrderService) layoutOperations(tx *gorm.DB, order *entity.ProductionOrder, orderQty int, stageItems map[string][]OrderItemInput) error {
	for _, stage := range entity.StageByCode {
		existing, err := s.ops.FindOperation(tx, order.ID, stage.Code)
		if err != nil {
			return fmt.Errorf("lookup operation %s: %w", stage.Code, err)
		}
		op := existing
		if op == nil {
			op, err = s.ops.EnsureOperation(tx, order.ID, stage)
			if err != nil {
				return fmt.Errorf("create operation %s: %w", stage.Code, err)
			}
		}

		if existing == nil {
			lines := stageItems[stage.Code]
			rows := make([]entity.OperationItem, 0, len(lines))
			for _, l := range lines {
				rows = append(rows, entity.OperationItem{
					ID:          uuid.New().String(),
					OperationID: op.ID,
					ItemCode:    l.ItemCode,
					ItemName:    l.ItemName,
					Quantity:    l.Quantity.Mul(decimal.NewFromInt(int64(orderQty))),
					WhsCode:     l.WhsCode,
				})
			}
			if err := s.ops.CreateOperationItems(tx, rows); err != nil {
				return fmt.Errorf("create operation items: %w", err)
			}
		}
	}

	akuple, err := s.ops.FindOperation(tx, order.ID, entity.StageAkuple)
	if err != nil || akuple == nil {
		return fmt.Errorf("first-stage operation missing: %w", err)
	}
	var units []entity.ProductionUnit
	if err := tx.Where("order_id = ?", order.ID).Find(&units).Error; err != nil {
		return err
	}
	unitIDs := make([]string, 0, len(units))
	for _, u := range units {
		unitIDs = append(unitIDs, u.ID)
	}
	return s.ops.OpenOperationUnits(tx, akuple.ID, unitIDs)
}

// groupItemsByStage buckets material lines by stage code. Lines without a
// stage id land on the first stage; unknown stage ids are rejected.
func groupItemsByStage(items []OrderItemInput) (map[string][]OrderItemInput, error) {
	out := make(map[string][]OrderItemInput)
	for _, it := range items {
		code := strings.TrimSpace(it.ItemCode)
		if code == "" {
			continue
		}
		stageCode := entity.StageAkuple
		if it.StageID != nil {
			stage, ok := entity.StageByID[*it.StageID]
			if !ok {
				return nil, validationErr("items", fmt.Sprintf("unknown stage id %d for item %s", *it.StageID, code))
			}
			stageCode = stage.Code
		}
		it.ItemCode = code
		out[stageCode] = append(out[stageCode], it)
	}
	return out, nil
}
