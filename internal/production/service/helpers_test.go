package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/Gucbir/gucbirnest/internal/production/repository"
	"github.com/Gucbir/gucbirnest/internal/production/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeSource serves canned production structures.
type fakeSource struct {
	structures map[string]*erp.Structure
	err        error
}

func (f *fakeSource) GetProductionStructure(_ context.Context, itemCode string) (*erp.Structure, error) {
	if f.err != nil {
		return nil, f.err
	}
	if st, ok := f.structures[itemCode]; ok {
		return st, nil
	}
	return &erp.Structure{ItemCode: itemCode}, nil
}

// fakeGateway records ERP calls and serves canned order lines.
type fakeGateway struct {
	mu            sync.Mutex
	orderLine     *erp.OrderLine
	issueErr      error
	statusErr     error
	issuedDocs    []erp.GoodsIssue
	statusUpdates []int
}

func (f *fakeGateway) GetOrderMainLine(_ context.Context, _ int) (*erp.OrderLine, error) {
	return f.orderLine, nil
}

func (f *fakeGateway) PostGoodsIssue(_ context.Context, doc erp.GoodsIssue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return f.issueErr
	}
	f.issuedDocs = append(f.issuedDocs, doc)
	return nil
}

func (f *fakeGateway) UpdateOrderProductionStatus(_ context.Context, docEntry int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusUpdates = append(f.statusUpdates, docEntry)
	return nil
}

// fakeStocks serves a canned warehouse-stock snapshot.
type fakeStocks struct {
	rows []erp.WarehouseStock
	err  error
}

func (f *fakeStocks) GetWarehouseStocks(context.Context) ([]erp.WarehouseStock, error) {
	return f.rows, f.err
}

type testEnv struct {
	db        *gorm.DB
	repos     *repository.Repositories
	serials   *SerialService
	bom       *BOMService
	source    *fakeSource
	gateway   *fakeGateway
	erpStocks *fakeStocks
	orders    *OrderService
	stages    *StageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	source := &fakeSource{structures: map[string]*erp.Structure{}}
	gateway := &fakeGateway{}
	logger := zap.NewNop()

	serials := NewSerialService(repos.Setting)
	bom := NewBOMService(source, nil, 0, logger)

	return &testEnv{
		db:        db,
		repos:     repos,
		serials:   serials,
		bom:       bom,
		source:    source,
		gateway:   gateway,
		erpStocks: &fakeStocks{},
		orders:    NewOrderService(db, repos, serials, bom, gateway, logger),
		stages:    NewStageService(db, repos, gateway, logger),
	}
}
