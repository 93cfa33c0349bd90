package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Gucbir/gucbirnest/internal/erp"
	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newMaterialService(env *testEnv) *MaterialService {
	return NewMaterialService(env.bom, env.repos, env.erpStocks, zap.NewNop())
}

func qty(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func lineByItem(t *testing.T, lines entity.ShortageLines, itemCode string) *entity.ShortageLine {
	t.Helper()
	for i := range lines {
		if lines[i].ItemCode == itemCode {
			return &lines[i]
		}
	}
	t.Fatalf("no shortage line for %s", itemCode)
	return nil
}

func TestComputeShortagesGroupsAndSubtractsStock(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0001"] = &erp.Structure{
		ItemCode: "6.500.0001",
		Items: []erp.BOMLine{
			{ItemCode: "1.A", ItemName: "Alternator", Quantity: qty("2"), WhsCode: "WH1"},
			{ItemCode: "1.B", ItemName: "Breaker", Quantity: qty("1"), WhsCode: "WH2"},
		},
	}
	testutil.SeedStock(t, env.db, "1.A", "WH1", "3")

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "6.500.0001",
		RequestedQty: qty("5"),
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}
	if result.OK {
		t.Error("result.OK = true with missing stock, want false")
	}
	if len(result.Shortages) != 2 {
		t.Fatalf("got %d shortage lines, want 2", len(result.Shortages))
	}

	a := lineByItem(t, result.Shortages, "1.A")
	if !a.Required.Equal(qty("10")) || !a.InStock.Equal(qty("3")) || !a.Missing.Equal(qty("7")) {
		t.Errorf("1.A required/inStock/missing = %s/%s/%s, want 10/3/7", a.Required, a.InStock, a.Missing)
	}
	if a.WhsCode != "WH1" {
		t.Errorf("1.A warehouse = %s, want WH1", a.WhsCode)
	}

	b := lineByItem(t, result.Shortages, "1.B")
	if !b.Required.Equal(qty("5")) || !b.InStock.IsZero() || !b.Missing.Equal(qty("5")) {
		t.Errorf("1.B required/inStock/missing = %s/%s/%s, want 5/0/5", b.Required, b.InStock, b.Missing)
	}
}

func TestComputeShortagesMergesSameItemAndWarehouse(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0002"] = &erp.Structure{
		ItemCode: "6.500.0002",
		Items: []erp.BOMLine{
			{ItemCode: "1.C", Quantity: qty("1.5"), WhsCode: "WH1"},
			{ItemCode: "1.C", Quantity: qty("0.5"), WhsCode: "WH1"},
			{ItemCode: "1.C", Quantity: qty("1"), WhsCode: "WH2"},
		},
	}

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "6.500.0002",
		RequestedQty: qty("2"),
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}
	// The two WH1 rows merge, the WH2 row stays separate.
	if len(result.Shortages) != 2 {
		t.Fatalf("got %d lines, want 2", len(result.Shortages))
	}
	for _, l := range result.Shortages {
		switch l.WhsCode {
		case "WH1":
			if !l.Required.Equal(qty("4")) {
				t.Errorf("WH1 required = %s, want 4 (2 per unit merged x 2)", l.Required)
			}
		case "WH2":
			if !l.Required.Equal(qty("2")) {
				t.Errorf("WH2 required = %s, want 2", l.Required)
			}
		default:
			t.Errorf("unexpected warehouse %s", l.WhsCode)
		}
	}
}

func TestComputeShortagesCoveredStockIsOK(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0003"] = &erp.Structure{
		ItemCode: "6.500.0003",
		Items: []erp.BOMLine{
			{ItemCode: "1.D", Quantity: qty("2"), WhsCode: "WH1"},
		},
	}
	testutil.SeedStock(t, env.db, "1.D", "WH1", "100")

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "6.500.0003",
		RequestedQty: qty("3"),
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}
	if !result.OK {
		t.Error("result.OK = false with full coverage, want true")
	}
	if len(result.Shortages) != 0 {
		t.Errorf("got %d shortage lines, want 0", len(result.Shortages))
	}
}

func TestComputeShortagesEmptyBOMReportsItemItself(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:        "1.RAW",
		RequestedQty:    qty("4"),
		FallbackWhsCode: "WH9",
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}
	if len(result.Shortages) != 1 {
		t.Fatalf("got %d lines, want 1", len(result.Shortages))
	}
	line := result.Shortages[0]
	if line.ItemCode != "1.RAW" || !line.Required.Equal(qty("4")) || line.WhsCode != "WH9" {
		t.Errorf("synthetic line = %s/%s@%s, want 1.RAW/4@WH9", line.ItemCode, line.Required, line.WhsCode)
	}
}

func TestComputeShortagesRecursesIntoSubAssemblies(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0004"] = &erp.Structure{
		ItemCode: "6.500.0004",
		Items: []erp.BOMLine{
			{ItemCode: "5.SUB", ItemName: "Control Panel", Quantity: qty("1"), WhsCode: "WH1"},
		},
	}
	env.source.structures["5.SUB"] = &erp.Structure{
		ItemCode: "5.SUB",
		Items: []erp.BOMLine{
			{ItemCode: "1.E", Quantity: qty("3"), WhsCode: "WH1"},
			// Nested sub-assembly must not expand past the depth limit.
			{ItemCode: "5.DEEP", Quantity: qty("1"), WhsCode: "WH1"},
		},
	}
	env.source.structures["5.DEEP"] = &erp.Structure{
		ItemCode: "5.DEEP",
		Items: []erp.BOMLine{
			{ItemCode: "1.F", Quantity: qty("9"), WhsCode: "WH1"},
		},
	}

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "6.500.0004",
		RequestedQty: qty("2"),
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}

	sub := lineByItem(t, result.Shortages, "5.SUB")
	if !sub.Missing.Equal(qty("2")) {
		t.Fatalf("5.SUB missing = %s, want 2", sub.Missing)
	}
	if len(sub.Children) != 2 {
		t.Fatalf("got %d child lines, want 2", len(sub.Children))
	}
	child := lineByItem(t, sub.Children, "1.E")
	// The child need is driven by the missing quantity of the parent.
	if !child.Required.Equal(qty("6")) {
		t.Errorf("1.E required = %s, want 6 (3 per unit x 2 missing)", child.Required)
	}
	deep := lineByItem(t, sub.Children, "5.DEEP")
	if len(deep.Children) != 0 {
		t.Errorf("depth limit violated: 5.DEEP expanded %d grandchildren", len(deep.Children))
	}
}

func TestComputeShortagesCycleDoesNotRecurse(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["5.LOOP"] = &erp.Structure{
		ItemCode: "5.LOOP",
		Items: []erp.BOMLine{
			{ItemCode: "5.LOOP", Quantity: qty("1"), WhsCode: "WH1"},
		},
	}

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "5.LOOP",
		RequestedQty: qty("1"),
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}
	self := lineByItem(t, result.Shortages, "5.LOOP")
	if len(self.Children) != 0 {
		t.Errorf("self-referencing item expanded %d children, want 0", len(self.Children))
	}
}

func TestComputeShortagesValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	var vErr *ValidationError
	if _, err := svc.ComputeShortages(context.Background(), ShortageInput{ItemCode: "", RequestedQty: qty("1")}); !errors.As(err, &vErr) {
		t.Errorf("empty itemCode: got %v, want ValidationError", err)
	}
	if _, err := svc.ComputeShortages(context.Background(), ShortageInput{ItemCode: "1.X", RequestedQty: qty("0")}); !errors.As(err, &vErr) {
		t.Errorf("zero quantity: got %v, want ValidationError", err)
	}
	if _, err := svc.ComputeShortages(context.Background(), ShortageInput{ItemCode: "1.X", RequestedQty: qty("-2")}); !errors.As(err, &vErr) {
		t.Errorf("negative quantity: got %v, want ValidationError", err)
	}
}

func TestComputeShortagesMapsUnreachableERP(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)
	env.source.err = &erp.UnavailableError{Op: "bom query", Err: errors.New("connection refused")}

	_, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "6.500.0001",
		RequestedQty: qty("1"),
	})
	var unavailable *ExternalUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want ExternalUnavailableError", err)
	}
}

func TestComputeShortagesEnrichesNamesFromItemMaster(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0005"] = &erp.Structure{
		ItemCode: "6.500.0005",
		Items: []erp.BOMLine{
			{ItemCode: "1.G", Quantity: qty("1"), WhsCode: "WH1"},
		},
	}
	testutil.SeedItem(t, env.db, "1.G", "Radiator Hose")

	result, err := svc.ComputeShortages(context.Background(), ShortageInput{
		ItemCode:     "6.500.0005",
		RequestedQty: qty("1"),
	})
	if err != nil {
		t.Fatalf("ComputeShortages failed: %v", err)
	}
	if got := lineByItem(t, result.Shortages, "1.G").ItemName; got != "Radiator Hose" {
		t.Errorf("item name = %q, want Radiator Hose", got)
	}
}

func TestSyncStocksReplacesCache(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)
	testutil.SeedStock(t, env.db, "1.S", "WH1", "5")

	env.erpStocks.rows = []erp.WarehouseStock{
		{ItemCode: "1.S", WhsCode: "WH1", InStock: qty("12")},
		{ItemCode: "1.T", WhsCode: "WH2", InStock: qty("7")},
		{ItemCode: "", WhsCode: "WH1", InStock: qty("1")},
	}

	n, err := svc.SyncStocks(context.Background())
	if err != nil {
		t.Fatalf("SyncStocks failed: %v", err)
	}
	if n != 2 {
		t.Errorf("wrote %d rows, want 2 (blank item skipped)", n)
	}

	var row entity.ItemWarehouseStock
	if err := env.db.First(&row, "item_code = ? AND whs_code = ?", "1.S", "WH1").Error; err != nil {
		t.Fatalf("load synced row failed: %v", err)
	}
	if !row.InStock.Equal(qty("12")) {
		t.Errorf("1.S@WH1 = %s after sync, want 12", row.InStock)
	}
}

func TestSyncStocksMapsUnreachableERP(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)
	env.erpStocks.err = &erp.UnavailableError{Op: "stock query", Err: errors.New("timeout")}

	_, err := svc.SyncStocks(context.Background())
	var unavailable *ExternalUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want ExternalUnavailableError", err)
	}
}

func TestGetStructureRequiresBOM(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0007"] = &erp.Structure{
		ItemCode: "6.500.0007",
		Items:    []erp.BOMLine{{ItemCode: "1.J", Quantity: qty("1"), WhsCode: "WH1"}},
	}

	st, err := svc.GetStructure(context.Background(), "6.500.0007", false)
	if err != nil {
		t.Fatalf("GetStructure failed: %v", err)
	}
	if len(st.Items) != 1 {
		t.Errorf("got %d lines, want 1", len(st.Items))
	}

	if _, err := svc.GetStructure(context.Background(), "1.NO-BOM", false); !errors.Is(err, ErrExternalEmpty) {
		t.Errorf("item without BOM: got %v, want ErrExternalEmpty", err)
	}

	var vErr *ValidationError
	if _, err := svc.GetStructure(context.Background(), " ", false); !errors.As(err, &vErr) {
		t.Errorf("blank item code: got %v, want ValidationError", err)
	}
}

func TestCreateShortageRunPersistsResult(t *testing.T) {
	env := newTestEnv(t)
	svc := newMaterialService(env)

	env.source.structures["6.500.0006"] = &erp.Structure{
		ItemCode: "6.500.0006",
		Items: []erp.BOMLine{
			{ItemCode: "1.H", Quantity: qty("2"), WhsCode: "WH1"},
		},
	}

	run, err := svc.CreateShortageRun(context.Background(), ShortageInput{
		ItemCode:     "6.500.0006",
		RequestedQty: qty("3"),
	})
	if err != nil {
		t.Fatalf("CreateShortageRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("run has no id")
	}
	if run.OK {
		t.Error("run.OK = true with missing stock, want false")
	}

	loaded, err := env.repos.Procurement.FindRunByID(env.db, run.ID)
	if err != nil {
		t.Fatalf("FindRunByID failed: %v", err)
	}
	if len(loaded.Shortages) != 1 || !loaded.Shortages[0].Missing.Equal(qty("6")) {
		t.Errorf("persisted shortages = %+v, want one line missing 6", loaded.Shortages)
	}
}
