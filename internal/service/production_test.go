package service

import (
	"context"
	"encoding/json"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"sync"
	"testing"
)

// approvedOrder creates an order and has the supplier approve it.
func (f *fixture) approvedOrder(t *testing.T) orders.Order {
	t.Helper()
	it := f.item(t, "100", "50")
	o := f.order(t, customer, it.ID, "10")
	o, err := f.svc.Orders.Transition(context.Background(), petani, o.ID, TransitionInput{Status: orders.StatusApproved})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return o
}

func (f *fixture) start(t *testing.T, orderID string, st production.Stage) production.Record {
	t.Helper()
	rec, err := f.svc.Production.StartStage(context.Background(), manager(st.Subrole()), StartStageInput{OrderID: orderID, Stage: st})
	if err != nil {
		t.Fatalf("start %s: %v", st, err)
	}
	return rec
}

func (f *fixture) complete(t *testing.T, rec production.Record) {
	t.Helper()
	if _, err := f.svc.Production.CompleteStage(context.Background(), manager(rec.Stage.Subrole()), rec.ID, CompleteStageInput{}); err != nil {
		t.Fatalf("complete %s: %v", rec.Stage, err)
	}
}

func TestRequiredStagesMoveOrderToReadyForDelivery(t *testing.T) {
	f := newFixture(t)
	o := f.approvedOrder(t)

	// started in an arbitrary order, completed in another
	order := []production.Stage{production.StagePemasaran, production.StageGudangIn, production.StageGudangOut, production.StageProduksi}
	recs := map[production.Stage]production.Record{}
	for _, st := range order {
		recs[st] = f.start(t, o.ID, st)
	}
	if got := f.mustOrder(t, o.ID).Status; got != orders.StatusInProduction {
		t.Fatalf("status after first start = %s, want in_production", got)
	}

	for i, st := range []production.Stage{production.StageGudangOut, production.StagePemasaran, production.StageGudangIn} {
		f.complete(t, recs[st])
		if got := f.mustOrder(t, o.ID).Status; got != orders.StatusInProduction {
			t.Fatalf("after %d completions status = %s, want in_production", i+1, got)
		}
	}

	f.complete(t, recs[production.StageProduksi])
	if got := f.mustOrder(t, o.ID).Status; got != orders.StatusReadyForDelivery {
		t.Fatalf("status after last required stage = %s, want ready_for_delivery", got)
	}
}

func TestOptionalStagesDoNotCountTowardsReady(t *testing.T) {
	f := newFixture(t)
	o := f.approvedOrder(t)

	for _, st := range []production.Stage{production.StageGudangIn, production.StageSorting, production.StageGudangOut, production.StagePemasaran} {
		f.complete(t, f.start(t, o.ID, st))
	}
	if got := f.mustOrder(t, o.ID).Status; got != orders.StatusInProduction {
		t.Fatalf("status = %s, want in_production while produksi is missing", got)
	}
}

func TestStartStageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "5")
	pending := f.order(t, customer, it.ID, "1")
	approved := f.approvedOrder(t)
	f.start(t, approved.ID, production.StageGudangIn)

	tests := []struct {
		name  string
		actor access.Actor
		in    StartStageInput
		kind  apperr.Kind
	}{
		{"pending order", manager(access.SubroleGudangIn), StartStageInput{OrderID: pending.ID, Stage: production.StageGudangIn}, apperr.KindInvalidState},
		{"duplicate stage", manager(access.SubroleGudangIn), StartStageInput{OrderID: approved.ID, Stage: production.StageGudangIn}, apperr.KindDuplicateStage},
		{"wrong subrole", manager(access.SubrolePemasaran), StartStageInput{OrderID: approved.ID, Stage: production.StageDrying}, apperr.KindUnauthorized},
		{"customer", customer, StartStageInput{OrderID: approved.ID, Stage: production.StageDrying}, apperr.KindUnauthorized},
		{"unknown stage", manager(access.SubroleProduksi), StartStageInput{OrderID: approved.ID, Stage: "milling"}, apperr.KindValidation},
		{"missing order", manager(access.SubroleProduksi), StartStageInput{OrderID: "nope", Stage: production.StageDrying}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Production.StartStage(ctx, tt.actor, tt.in)
			wantKind(t, err, tt.kind)
		})
	}
	if got := f.mustOrder(t, pending.ID).Status; got != orders.StatusPending {
		t.Errorf("pending order moved to %s", got)
	}
}

func TestCompleteStageTwiceIsNotInProgress(t *testing.T) {
	f := newFixture(t)
	o := f.approvedOrder(t)
	rec := f.start(t, o.ID, production.StageDrying)

	metrics := json.RawMessage(`{"moisture":"13.5"}`)
	done, err := f.svc.Production.CompleteStage(context.Background(), manager(access.SubroleProduksi), rec.ID, CompleteStageInput{QualityMetrics: metrics})
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != production.StatusCompleted || done.CompletedAt == nil || string(done.QualityMetrics) != string(metrics) {
		t.Errorf("unexpected record %+v", done)
	}

	_, err = f.svc.Production.CompleteStage(context.Background(), manager(access.SubroleProduksi), rec.ID, CompleteStageInput{})
	wantKind(t, err, apperr.KindNotInProgress)
}

func TestConcurrentCompletionsTransitionOnce(t *testing.T) {
	f := newFixture(t)
	o := f.approvedOrder(t)

	var recs []production.Record
	for _, st := range production.RequiredStages {
		recs = append(recs, f.start(t, o.ID, st))
	}
	f.events.Drain()

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec production.Record) {
			defer wg.Done()
			if _, err := f.svc.Production.CompleteStage(context.Background(), manager(rec.Stage.Subrole()), rec.ID, CompleteStageInput{}); err != nil {
				t.Error(err)
			}
		}(rec)
	}
	wg.Wait()

	if got := f.mustOrder(t, o.ID).Status; got != orders.StatusReadyForDelivery {
		t.Fatalf("status = %s, want ready_for_delivery", got)
	}
	transitions := 0
	for _, e := range f.events.Drain() {
		if e.EventType == events.TypeOrderStatusChanged {
			transitions++
		}
	}
	if transitions != 1 {
		t.Errorf("%d status change events, want 1", transitions)
	}
}

func TestProductionVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.approvedOrder(t)
	rec := f.start(t, o.ID, production.StageGudangIn)

	if _, err := f.svc.Production.Get(ctx, customer, rec.ID); err != nil {
		t.Errorf("customer cannot see own production: %v", err)
	}
	_, err := f.svc.Production.Get(ctx, customer2, rec.ID)
	wantKind(t, err, apperr.KindUnauthorized)

	_, err = f.svc.Production.List(ctx, customer, production.Filter{})
	wantKind(t, err, apperr.KindValidation)
	got, err := f.svc.Production.List(ctx, customer, production.Filter{OrderID: o.ID})
	if err != nil || len(got) != 1 {
		t.Errorf("List = %d records, %v", len(got), err)
	}
}

func TestUpdateReadings(t *testing.T) {
	f := newFixture(t)
	o := f.approvedOrder(t)
	rec := f.start(t, o.ID, production.StageDrying)

	temp := dec("31.2")
	got, err := f.svc.Production.UpdateReadings(context.Background(), manager(access.SubroleProduksi), rec.ID, production.Readings{Temperature: &temp})
	if err != nil {
		t.Fatal(err)
	}
	if got.Temperature == nil || !got.Temperature.Equal(temp) || got.Status != production.StatusInProgress {
		t.Errorf("unexpected record %+v", got)
	}

	_, err = f.svc.Production.UpdateReadings(context.Background(), manager(access.SubroleGudangIn), rec.ID, production.Readings{Temperature: &temp})
	wantKind(t, err, apperr.KindUnauthorized)
}
