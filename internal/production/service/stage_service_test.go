package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gucbir/gucbirnest/internal/production/entity"
	"github.com/Gucbir/gucbirnest/internal/production/testutil"
	"github.com/shopspring/decimal"
)

func createTestOrder(t *testing.T, env *testEnv, quantity int) *entity.ProductionOrder {
	t.Helper()
	testutil.SeedSerialCounter(t, env.db, "GJ", 1, 6)

	docEntry := 9001
	order, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ItemCode:    "6.100.0001",
		ItemName:    "110 kVA Generator",
		Quantity:    quantity,
		SapDocEntry: &docEntry,
		Items: []OrderItemInput{
			{ItemCode: "1.200.0001", ItemName: "Chassis", Quantity: decimal.NewFromInt(1), WhsCode: "01"},
		},
		UserID: "operator-1",
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return order
}

func opByStage(t *testing.T, env *testEnv, orderID, stageCode string) *entity.ProductionOperation {
	t.Helper()
	op, err := env.repos.Operation.FindOperation(env.db, orderID, stageCode)
	if err != nil {
		t.Fatalf("FindOperation(%s) failed: %v", stageCode, err)
	}
	if op == nil {
		t.Fatalf("operation %s does not exist", stageCode)
	}
	return op
}

func opUnitRow(t *testing.T, env *testEnv, operationID, unitID string) *entity.ProductionOperationUnit {
	t.Helper()
	row, err := env.repos.Operation.FindOperationUnit(env.db, operationID, unitID, false)
	if err != nil {
		t.Fatalf("FindOperationUnit failed: %v", err)
	}
	return row
}

func TestCreateOrderLaysOutRouteAndOpensFirstStage(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 3)

	if !order.ShouldHaveSerial {
		t.Error("order with 6. item should track serials")
	}
	if len(order.Units) != 3 {
		t.Fatalf("got %d units, want 3", len(order.Units))
	}
	serials := map[string]bool{}
	for _, u := range order.Units {
		serials[u.SerialNo] = true
	}
	for _, want := range []string{"GJ000001", "GJ000002", "GJ000003"} {
		if !serials[want] {
			t.Errorf("missing serial %s", want)
		}
	}

	for code := range entity.StageByCode {
		opByStage(t, env, order.ID, code)
	}

	akuple := opByStage(t, env, order.ID, entity.StageAkuple)
	for _, u := range order.Units {
		row := opUnitRow(t, env, akuple.ID, u.ID)
		if row.Status != entity.OpUnitStatusWaiting {
			t.Errorf("unit %s at first stage = %s, want waiting", u.SerialNo, row.Status)
		}
	}

	items, err := env.repos.Operation.ListOperationItems(context.Background(), akuple.ID)
	if err != nil {
		t.Fatalf("ListOperationItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d first-stage items, want 1", len(items))
	}
	if !items[0].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Errorf("item quantity = %s, want 3 (1 per unit x 3)", items[0].Quantity)
	}
}

func TestCreateOrderIdempotentPerDocLink(t *testing.T) {
	env := newTestEnv(t)
	first := createTestOrder(t, env, 2)

	docEntry := 9001
	second, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ItemCode:    "6.100.0001",
		ItemName:    "110 kVA Generator",
		Quantity:    2,
		SapDocEntry: &docEntry,
		Items: []OrderItemInput{
			{ItemCode: "1.200.0001", Quantity: decimal.NewFromInt(1), WhsCode: "01"},
		},
	})
	if err != nil {
		t.Fatalf("second CreateOrder failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second submit created a new order %s, want %s reused", second.ID, first.ID)
	}
	if len(second.Units) != 2 {
		t.Errorf("got %d units after resubmit, want 2", len(second.Units))
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := []CreateOrderInput{
		{ItemCode: "", ItemName: "X", Quantity: 1},
		{ItemCode: "6.1", ItemName: "", Quantity: 1},
		{ItemCode: "6.1", ItemName: "X", Quantity: 0},
		{ItemCode: "6.1", ItemName: "X", Quantity: -2},
	}
	for _, in := range cases {
		_, err := env.orders.CreateOrder(context.Background(), in)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("input %+v: got %v, want ValidationError", in, err)
		}
	}
}

func TestCreateOrderRejectsUnknownStageID(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedSerialCounter(t, env.db, "GJ", 1, 6)

	badStage := 6
	_, err := env.orders.CreateOrder(context.Background(), CreateOrderInput{
		ItemCode: "6.100.0002",
		ItemName: "Generator",
		Quantity: 1,
		Items: []OrderItemInput{
			{ItemCode: "1.1", Quantity: decimal.NewFromInt(1), StageID: &badStage},
		},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("got %v, want ValidationError for unmapped stage id", err)
	}
}

func TestFinishFansOutToBothSuccessors(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("StartUnit failed: %v", err)
	}
	if _, err := env.stages.FinishUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("FinishUnit failed: %v", err)
	}

	motor := opByStage(t, env, order.ID, entity.StageMotorMontaj)
	pano := opByStage(t, env, order.ID, entity.StagePanoTesisat)

	if row := opUnitRow(t, env, motor.ID, unit.ID); row.Status != entity.OpUnitStatusWaiting {
		t.Errorf("motor row = %s, want waiting", row.Status)
	}
	if row := opUnitRow(t, env, pano.ID, unit.ID); row.Status != entity.OpUnitStatusWaiting {
		t.Errorf("pano row = %s, want waiting", row.Status)
	}
}

func TestJoinOpensOnlyAfterBothPredecessorsFinish(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	mustFinish := func(opID string) {
		t.Helper()
		if _, err := env.stages.FinishUnit(context.Background(), opID, unit.ID, "op-1"); err != nil {
			t.Fatalf("FinishUnit failed: %v", err)
		}
	}
	mustFinish(akuple.ID)

	motor := opByStage(t, env, order.ID, entity.StageMotorMontaj)
	pano := opByStage(t, env, order.ID, entity.StagePanoTesisat)
	kabin := opByStage(t, env, order.ID, entity.StageKabinGiydirme)

	mustFinish(motor.ID)
	if _, err := env.repos.Operation.FindOperationUnit(env.db, kabin.ID, unit.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("join fired after one predecessor, want it to wait for both")
	}

	mustFinish(pano.ID)
	row := opUnitRow(t, env, kabin.ID, unit.ID)
	if row.Status != entity.OpUnitStatusWaiting {
		t.Errorf("join row = %s, want waiting", row.Status)
	}
}

func TestJoinUnderConcurrentSiblingFinishes(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	if _, err := env.stages.FinishUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("FinishUnit(akuple) failed: %v", err)
	}
	motor := opByStage(t, env, order.ID, entity.StageMotorMontaj)
	pano := opByStage(t, env, order.ID, entity.StagePanoTesisat)

	var wg sync.WaitGroup
	for _, opID := range []string{motor.ID, pano.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := env.stages.FinishUnit(context.Background(), id, unit.ID, "op-1"); err != nil {
				t.Errorf("concurrent FinishUnit failed: %v", err)
			}
		}(opID)
	}
	wg.Wait()

	kabin := opByStage(t, env, order.ID, entity.StageKabinGiydirme)
	var count int64
	if err := env.db.Model(&entity.ProductionOperationUnit{}).
		Where("operation_id = ? AND unit_id = ?", kabin.ID, unit.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("join produced %d rows, want exactly 1", count)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	first, err := env.stages.FinishUnit(context.Background(), akuple.ID, unit.ID, "op-1")
	if err != nil {
		t.Fatalf("first finish failed: %v", err)
	}
	second, err := env.stages.FinishUnit(context.Background(), akuple.ID, unit.ID, "op-1")
	if err != nil {
		t.Fatalf("second finish failed: %v", err)
	}
	if !first.FinishedAt.Equal(*second.FinishedAt) {
		t.Errorf("second finish moved finishedAt from %v to %v", first.FinishedAt, second.FinishedAt)
	}

	var logs int64
	env.db.Model(&entity.OperationUnitLog{}).
		Where("operation_id = ? AND unit_id = ? AND action = ?", akuple.ID, unit.ID, entity.ActionFinish).
		Count(&logs)
	if logs != 1 {
		t.Errorf("got %d finish log rows, want 1", logs)
	}
}

func TestStartGuards(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("StartUnit failed: %v", err)
	}
	// starting again is a no-op
	row, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1")
	if err != nil {
		t.Fatalf("idempotent StartUnit failed: %v", err)
	}
	if row.Status != entity.OpUnitStatusInProgress {
		t.Errorf("status = %s, want in_progress", row.Status)
	}

	if _, err := env.stages.PauseUnit(context.Background(), akuple.ID, unit.ID, "missing part", "", "op-1"); err != nil {
		t.Fatalf("PauseUnit failed: %v", err)
	}
	var stateErr *InvalidStateError
	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); !errors.As(err, &stateErr) {
		t.Errorf("starting a paused unit: got %v, want InvalidStateError", err)
	}

	if _, err := env.stages.ResumeUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("ResumeUnit failed: %v", err)
	}
	if _, err := env.stages.FinishUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("FinishUnit failed: %v", err)
	}
	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); !errors.As(err, &stateErr) {
		t.Errorf("starting a finished unit: got %v, want InvalidStateError", err)
	}
}

func TestPauseRequiresReasonAndRunningState(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	var vErr *ValidationError
	if _, err := env.stages.PauseUnit(context.Background(), akuple.ID, unit.ID, "  ", "", "op-1"); !errors.As(err, &vErr) {
		t.Errorf("pause without reason: got %v, want ValidationError", err)
	}

	var stateErr *InvalidStateError
	if _, err := env.stages.PauseUnit(context.Background(), akuple.ID, unit.ID, "break", "", "op-1"); !errors.As(err, &stateErr) {
		t.Errorf("pausing a waiting unit: got %v, want InvalidStateError", err)
	}
}

func TestResumeAccumulatesPausedSeconds(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("StartUnit failed: %v", err)
	}
	if _, err := env.stages.PauseUnit(context.Background(), akuple.ID, unit.ID, "shift end", "", "op-1"); err != nil {
		t.Fatalf("PauseUnit failed: %v", err)
	}

	// Backdate the pause start so resuming yields a measurable interval.
	backdated := time.Now().Add(-42 * time.Second)
	if err := env.db.Model(&entity.ProductionOperationUnit{}).
		Where("operation_id = ? AND unit_id = ?", akuple.ID, unit.ID).
		Update("paused_at", backdated).Error; err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	row, err := env.stages.ResumeUnit(context.Background(), akuple.ID, unit.ID, "op-1")
	if err != nil {
		t.Fatalf("ResumeUnit failed: %v", err)
	}
	if row.PausedTotalSeconds < 42 || row.PausedTotalSeconds > 44 {
		t.Errorf("pausedTotalSeconds = %d, want about 42", row.PausedTotalSeconds)
	}
	if row.PausedAt != nil {
		t.Error("pausedAt not cleared after resume")
	}

	var resumeErr *InvalidStateError
	if _, err := env.stages.ResumeUnit(context.Background(), akuple.ID, unit.ID, "op-1"); !errors.As(err, &resumeErr) {
		t.Errorf("resuming a running unit: got %v, want InvalidStateError", err)
	}
}

func TestFinishFromPausedFoldsOpenPause(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("StartUnit failed: %v", err)
	}
	if _, err := env.stages.PauseUnit(context.Background(), akuple.ID, unit.ID, "shift end", "", "op-1"); err != nil {
		t.Fatalf("PauseUnit failed: %v", err)
	}
	backdated := time.Now().Add(-30 * time.Second)
	if err := env.db.Model(&entity.ProductionOperationUnit{}).
		Where("operation_id = ? AND unit_id = ?", akuple.ID, unit.ID).
		Update("paused_at", backdated).Error; err != nil {
		t.Fatalf("backdate failed: %v", err)
	}

	// A paused row may be closed directly; the open pause interval is
	// folded into the total first.
	row, err := env.stages.FinishUnit(context.Background(), akuple.ID, unit.ID, "op-1")
	if err != nil {
		t.Fatalf("finishing a paused unit must succeed, got %v", err)
	}
	if row.Status != entity.OpUnitStatusDone {
		t.Errorf("status = %s, want done", row.Status)
	}
	if row.PausedAt != nil {
		t.Error("pausedAt not cleared on finish")
	}
	if row.PausedTotalSeconds < 30 || row.PausedTotalSeconds > 32 {
		t.Errorf("pausedTotalSeconds = %d, want about 30", row.PausedTotalSeconds)
	}
}

func TestFullRouteCompletesOrderAndNotifiesERP(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]

	finishStage := func(stageCode string) {
		t.Helper()
		op := opByStage(t, env, order.ID, stageCode)
		if _, err := env.stages.FinishUnit(context.Background(), op.ID, unit.ID, "op-1"); err != nil {
			t.Fatalf("finish %s failed: %v", stageCode, err)
		}
	}

	for _, stage := range []string{
		entity.StageAkuple,
		entity.StageMotorMontaj,
		entity.StagePanoTesisat,
		entity.StageKabinGiydirme,
		entity.StageTest,
		entity.StageFinal,
	} {
		finishStage(stage)
	}

	got, err := env.orders.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != entity.OrderStatusCompleted {
		t.Errorf("order status = %s, want completed", got.Status)
	}
	if got.Units[0].Status != entity.OpUnitStatusDone {
		t.Errorf("unit status = %s, want done", got.Units[0].Status)
	}

	env.gateway.mu.Lock()
	updates := len(env.gateway.statusUpdates)
	env.gateway.mu.Unlock()
	if updates != 1 {
		t.Errorf("got %d ERP status updates, want 1", updates)
	}
}

func TestDeferredERPFailureDoesNotFailFinish(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	env.gateway.statusErr = errors.New("service layer down")

	for _, stage := range []string{
		entity.StageAkuple,
		entity.StageMotorMontaj,
		entity.StagePanoTesisat,
		entity.StageKabinGiydirme,
		entity.StageTest,
	} {
		op := opByStage(t, env, order.ID, stage)
		if _, err := env.stages.FinishUnit(context.Background(), op.ID, unit.ID, "op-1"); err != nil {
			t.Fatalf("finish %s failed: %v", stage, err)
		}
	}

	final := opByStage(t, env, order.ID, entity.StageFinal)
	row, err := env.stages.FinishUnit(context.Background(), final.ID, unit.ID, "op-1")
	if err != nil {
		t.Fatalf("finishing with ERP down must still succeed, got %v", err)
	}

	got := opUnitRow(t, env, final.ID, unit.ID)
	if got.Note == "" {
		t.Error("deferred ERP failure was not recorded on the unit row")
	}
	if row.Status != entity.OpUnitStatusDone {
		t.Errorf("status = %s, want done", row.Status)
	}

	order2, _ := env.orders.GetOrder(context.Background(), order.ID)
	if order2.Status != entity.OrderStatusCompleted {
		t.Errorf("order status = %s, want completed despite ERP failure", order2.Status)
	}
}

func TestBackfillUnitsTopsUpSerials(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 2)

	if err := env.db.Model(&entity.ProductionOrder{}).
		Where("id = ?", order.ID).
		Update("quantity", 4).Error; err != nil {
		t.Fatalf("raise quantity failed: %v", err)
	}

	got, err := env.orders.BackfillUnits(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("BackfillUnits failed: %v", err)
	}
	if len(got.Units) != 4 {
		t.Fatalf("got %d units, want 4", len(got.Units))
	}
	seen := map[string]bool{}
	for _, u := range got.Units {
		if seen[u.SerialNo] {
			t.Errorf("duplicate serial %s", u.SerialNo)
		}
		seen[u.SerialNo] = true
	}
}

func TestStageQueueAndUnitHistory(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 2)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)

	if _, err := env.stages.StartUnit(context.Background(), akuple.ID, unit.ID, "op-1"); err != nil {
		t.Fatalf("StartUnit failed: %v", err)
	}

	queue, err := env.stages.ListStageQueue(context.Background(), "akuple", nil)
	if err != nil {
		t.Fatalf("ListStageQueue failed: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("got %d queue rows, want 2", len(queue))
	}

	if _, err := env.stages.ListStageQueue(context.Background(), "BOYAHANE", nil); err == nil {
		t.Error("unknown stage accepted, want ValidationError")
	}

	_, stages, err := env.stages.UnitHistory(context.Background(), unit.SerialNo)
	if err != nil {
		t.Fatalf("UnitHistory failed: %v", err)
	}
	if len(stages) != 1 {
		t.Fatalf("got %d history rows, want 1", len(stages))
	}
	if stages[0].StageCode != entity.StageAkuple {
		t.Errorf("history stage = %s, want %s", stages[0].StageCode, entity.StageAkuple)
	}
}

func TestSelectAlternativeOnlyAtFirstStage(t *testing.T) {
	env := newTestEnv(t)
	order := createTestOrder(t, env, 1)
	unit := order.Units[0]
	akuple := opByStage(t, env, order.ID, entity.StageAkuple)
	test := opByStage(t, env, order.ID, entity.StageTest)

	var stateErr *InvalidStateError
	err := env.stages.SelectAlternative(context.Background(), test.ID, unit.ID, "1.1", "1.2", "Alt", "op-1")
	if !errors.As(err, &stateErr) {
		t.Errorf("alternative at TEST: got %v, want InvalidStateError", err)
	}

	if err := env.stages.SelectAlternative(context.Background(), akuple.ID, unit.ID, "1.1", "1.2", "Alt", "op-1"); err != nil {
		t.Fatalf("SelectAlternative failed: %v", err)
	}
	// overwrite the pick, selection stays unique while the log grows
	if err := env.stages.SelectAlternative(context.Background(), akuple.ID, unit.ID, "1.1", "1.3", "Alt2", "op-1"); err != nil {
		t.Fatalf("second SelectAlternative failed: %v", err)
	}

	var selections, logs int64
	env.db.Model(&entity.AlternativeSelection{}).Count(&selections)
	env.db.Model(&entity.AlternativeLog{}).Count(&logs)
	if selections != 1 {
		t.Errorf("got %d selections, want 1", selections)
	}
	if logs != 2 {
		t.Errorf("got %d log rows, want 2", logs)
	}

	var sel entity.AlternativeSelection
	if err := env.db.First(&sel).Error; err != nil {
		t.Fatalf("load selection failed: %v", err)
	}
	if sel.SelectedItemCode != "1.3" {
		t.Errorf("selected = %s, want 1.3", sel.SelectedItemCode)
	}
}
