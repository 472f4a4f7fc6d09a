package service

import (
	"context"
	"fmt"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/memstore"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strings"
	"sync"
	"testing"
)

var (
	customer  = access.Actor{ID: "cust-1", Role: access.RoleCustomer, Verified: true}
	customer2 = access.Actor{ID: "cust-2", Role: access.RoleCustomer, Verified: true}
	petani    = access.Actor{ID: "farm-1", Role: access.RolePetani, Verified: true}
	petani2   = access.Actor{ID: "farm-2", Role: access.RolePetani, Verified: true}
	admin     = access.Actor{ID: "admin-1", Role: access.RoleAdmin}
)

func manager(sub access.Subrole) access.Actor {
	return access.Actor{ID: "mgr-" + string(sub), Role: access.RoleManagement, Subrole: sub, Verified: true}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db     *memstore.Store
	events *events.Recorder
	svc    *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	rec := events.NewRecorder(1024)
	svc := New(Deps{DB: db, Events: rec, Log: zap.NewNop(), Producer: "test"}, db)
	return &fixture{db: db, events: rec, svc: svc}
}

func (f *fixture) item(t *testing.T, qty, price string) inventory.Item {
	t.Helper()
	return f.db.PutItem(inventory.Item{
		OwnerID:      petani.ID,
		ProductName:  "Gabah",
		Category:     "grain",
		Unit:         "kg",
		Quantity:     dec(qty),
		PricePerUnit: dec(price),
		Status:       inventory.StatusAvailable,
	})
}

func (f *fixture) order(t *testing.T, who access.Actor, itemID, qty string) orders.Order {
	t.Helper()
	o, err := f.svc.Orders.Create(context.Background(), who, orders.CreateInput{InventoryID: itemID, Quantity: dec(qty)})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (f *fixture) mustItem(t *testing.T, id string) inventory.Item {
	t.Helper()
	it, ok := f.db.Item(id)
	if !ok {
		t.Fatalf("item %s missing", id)
	}
	return it
}

func (f *fixture) mustOrder(t *testing.T, id string) orders.Order {
	t.Helper()
	o, ok := f.db.Order(id)
	if !ok {
		t.Fatalf("order %s missing", id)
	}
	return o
}

func wantKind(t *testing.T, err error, k apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, k) {
		t.Fatalf("error = %v, want kind %s", err, k)
	}
}

func TestCreateThenRejectRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "1000")

	o := f.order(t, customer, it.ID, "4")
	if !o.TotalAmount.Equal(dec("4000")) {
		t.Errorf("total = %s, want 4000", o.TotalAmount)
	}
	if o.Status != orders.StatusPending || o.SupplierID != petani.ID {
		t.Errorf("unexpected order %+v", o)
	}
	if got := f.mustItem(t, it.ID).Quantity; !got.Equal(dec("6")) {
		t.Fatalf("quantity after order = %s, want 6", got)
	}

	rejected, err := f.svc.Orders.Transition(ctx, petani, o.ID, TransitionInput{Status: orders.StatusRejected, Reason: "harvest failed"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != orders.StatusRejected || rejected.RejectionReason != "harvest failed" {
		t.Errorf("unexpected rejected order %+v", rejected)
	}
	after := f.mustItem(t, it.ID)
	if !after.Quantity.Equal(dec("10")) || after.Status != inventory.StatusAvailable {
		t.Errorf("item after reject = %s/%s, want 10/available", after.Quantity, after.Status)
	}
}

func TestCreateSellsOutAndFailsAfter(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "5", "200")

	f.order(t, customer, it.ID, "5")
	if got := f.mustItem(t, it.ID); !got.Quantity.IsZero() || got.Status != inventory.StatusSoldOut {
		t.Fatalf("item = %s/%s, want 0/sold_out", got.Quantity, got.Status)
	}

	_, err := f.svc.Orders.Create(context.Background(), customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("1")})
	wantKind(t, err, apperr.KindInsufficientStock)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "5", "200")

	tests := []struct {
		name  string
		actor access.Actor
		in    orders.CreateInput
		kind  apperr.Kind
	}{
		{"producer cannot order", petani, orders.CreateInput{InventoryID: it.ID, Quantity: dec("1")}, apperr.KindUnauthorized},
		{"unverified customer", access.Actor{ID: "c9", Role: access.RoleCustomer}, orders.CreateInput{InventoryID: it.ID, Quantity: dec("1")}, apperr.KindUnauthorized},
		{"zero quantity", customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("0")}, apperr.KindValidation},
		{"too much", customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("6")}, apperr.KindInsufficientStock},
		{"unknown item", customer, orders.CreateInput{InventoryID: "nope", Quantity: dec("1")}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Orders.Create(ctx, tt.actor, tt.in)
			wantKind(t, err, tt.kind)
		})
	}
	if got := f.mustItem(t, it.ID).Quantity; !got.Equal(dec("5")) {
		t.Errorf("failed creations changed stock to %s", got)
	}
}

func TestCreateRefusesItemInWarehouseFlow(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "5", "200")
	if _, err := f.svc.Inventory.MarkStatus(context.Background(), manager(access.SubroleGudangIn), it.ID, inventory.StatusProcessing); err != nil {
		t.Fatalf("mark: %v", err)
	}
	_, err := f.svc.Orders.Create(context.Background(), customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("1")})
	wantKind(t, err, apperr.KindNotAvailable)
}

func TestConcurrentOrdersDoNotOversell(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "5", "1000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Orders.Create(context.Background(), customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("3")})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !apperr.Is(err, apperr.KindInsufficientStock):
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d orders succeeded, want exactly 1", ok)
	}
	if got := f.mustItem(t, it.ID).Quantity; !got.Equal(dec("2")) {
		t.Errorf("final quantity = %s, want 2", got)
	}
}

func TestCreateIdempotentReservesOnce(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "10", "1000")
	in := orders.CreateInput{InventoryID: it.ID, Quantity: dec("3")}

	const n = 8
	type result struct {
		o       orders.Order
		created bool
		err     error
	}
	results := make([]result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, created, err := f.svc.Orders.CreateIdempotent(context.Background(), customer, "retry-1", in)
			results[i] = result{o, created, err}
		}(i)
	}
	wg.Wait()

	created := 0
	for i, r := range results {
		if r.err != nil {
			t.Fatalf("call %d: %v", i, r.err)
		}
		if r.created {
			created++
		}
		if r.o.ID != results[0].o.ID {
			t.Errorf("call %d returned order %s, want %s", i, r.o.ID, results[0].o.ID)
		}
	}
	if created != 1 {
		t.Fatalf("%d calls created an order, want 1", created)
	}
	if got := f.mustItem(t, it.ID).Quantity; !got.Equal(dec("7")) {
		t.Errorf("final quantity = %s, want 7", got)
	}
	if evs := f.events.Drain(); len(evs) != 1 {
		t.Errorf("published %d events, want 1 OrderCreated", len(evs))
	}

	// Another customer may reuse the key.
	_, created2, err := f.svc.Orders.CreateIdempotent(context.Background(), customer2, "retry-1", in)
	if err != nil || !created2 {
		t.Fatalf("other customer: created=%v err=%v", created2, err)
	}

	_, _, err = f.svc.Orders.CreateIdempotent(context.Background(), customer, strings.Repeat("k", orders.MaxIdempotencyKeyLen+1), in)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("oversized key error = %v, want validation", err)
	}
}

func TestConcurrentReservationsExhaustStockExactly(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "20", "10")

	const n = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, refused := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Orders.Create(context.Background(), customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("3")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.KindInsufficientStock):
				refused++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 6 || refused != n-6 {
		t.Errorf("ok=%d refused=%d, want 6/%d", ok, refused, n-6)
	}
	if got := f.mustItem(t, it.ID).Quantity; !got.Equal(dec("2")) {
		t.Errorf("final quantity = %s, want 2", got)
	}
}

func TestConcurrentOrderNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "1000", "1")

	const n = 50
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.svc.Orders.Create(context.Background(), customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("1")})
			if err != nil {
				t.Error(err)
				return
			}
			numbers <- o.OrderNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		if seen[num] {
			t.Errorf("duplicate order number %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Errorf("got %d numbers, want %d", len(seen), n)
	}
}

func TestCancelIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "5")
	o := f.order(t, customer, it.ID, "4")

	if _, err := f.svc.Orders.Transition(ctx, customer, o.ID, TransitionInput{Status: orders.StatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := f.svc.Orders.Transition(ctx, customer, o.ID, TransitionInput{Status: orders.StatusCancelled})
	wantKind(t, err, apperr.KindUnauthorized)

	if got := f.mustItem(t, it.ID).Quantity; !got.Equal(dec("10")) {
		t.Errorf("quantity = %s, want 10 after a single release", got)
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "5")
	o := f.order(t, customer, it.ID, "1")

	_, err := f.svc.Orders.Transition(ctx, customer2, o.ID, TransitionInput{Status: orders.StatusCancelled})
	wantKind(t, err, apperr.KindUnauthorized)
	_, err = f.svc.Orders.Transition(ctx, petani2, o.ID, TransitionInput{Status: orders.StatusApproved})
	wantKind(t, err, apperr.KindUnauthorized)

	_, err = f.svc.Orders.Get(ctx, customer2, o.ID)
	wantKind(t, err, apperr.KindUnauthorized)
	if _, err := f.svc.Orders.Get(ctx, petani, o.ID); err != nil {
		t.Errorf("supplier cannot view own sale: %v", err)
	}
	if got := f.mustOrder(t, o.ID).Status; got != orders.StatusPending {
		t.Errorf("status = %s, want pending", got)
	}
}

func TestTransitionTable(t *testing.T) {
	actors := []access.Actor{customer, petani, manager(access.SubroleProduksi), admin}

	for _, actor := range actors {
		for _, from := range orders.Statuses() {
			for _, to := range orders.Statuses() {
				name := fmt.Sprintf("%s/%s->%s", actor.Role, from, to)
				t.Run(name, func(t *testing.T) {
					f := newFixture(t)
					it := f.item(t, "10", "5")
					o := f.db.PutOrder(orders.Order{
						OrderNumber: "ORD-20250101-001",
						SupplierID:  petani.ID,
						CustomerID:  customer.ID,
						InventoryID: it.ID,
						Quantity:    dec("2"),
						UnitPrice:   dec("5"),
						TotalAmount: dec("10"),
						Status:      from,
					})

					got, err := f.svc.Orders.Transition(context.Background(), actor, o.ID, TransitionInput{Status: to})
					if orders.CanTransition(actor.Role, from, to) {
						if err != nil {
							t.Fatalf("allowed transition failed: %v", err)
						}
						if got.Status != to || f.mustOrder(t, o.ID).Status != to {
							t.Errorf("status = %s, want %s", got.Status, to)
						}
						return
					}
					wantKind(t, err, apperr.KindUnauthorized)
					if s := f.mustOrder(t, o.ID).Status; s != from {
						t.Errorf("refused transition changed status to %s", s)
					}
					if q := f.mustItem(t, it.ID).Quantity; !q.Equal(dec("10")) {
						t.Errorf("refused transition changed stock to %s", q)
					}
				})
			}
		}
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "10", "5")
	o := f.order(t, customer, it.ID, "1")
	_, err := f.svc.Orders.Transition(context.Background(), petani, o.ID, TransitionInput{Status: "shipped"})
	wantKind(t, err, apperr.KindValidation)
}

func TestDeliveryLifecycleStampsTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "5")
	o := f.order(t, customer, it.ID, "2")
	mgr := manager(access.SubroleGudangOut)

	steps := []struct {
		actor access.Actor
		to    orders.Status
	}{
		{petani, orders.StatusApproved},
		{mgr, orders.StatusInProduction},
		{mgr, orders.StatusReadyForDelivery},
		{mgr, orders.StatusDelivered},
		{mgr, orders.StatusCompleted},
	}
	var last orders.Order
	for _, st := range steps {
		var err error
		last, err = f.svc.Orders.Transition(ctx, st.actor, o.ID, TransitionInput{Status: st.to})
		if err != nil {
			t.Fatalf("%s: %v", st.to, err)
		}
	}
	if last.ApprovedAt == nil || last.DeliveredAt == nil {
		t.Errorf("timestamps not set: %+v", last)
	}
	if got := f.mustItem(t, it.ID).Status; got != inventory.StatusCompleted {
		t.Errorf("item status = %s, want completed", got)
	}

	changed := 0
	for _, e := range f.events.Drain() {
		if e.EventType == events.TypeOrderStatusChanged {
			changed++
		}
	}
	if changed != len(steps) {
		t.Errorf("%d status events, want %d", changed, len(steps))
	}
}

func TestPriceSnapshotSurvivesPriceEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "1000")
	o := f.order(t, customer, it.ID, "2")

	price := dec("1500")
	if _, err := f.svc.Inventory.Update(ctx, petani, it.ID, inventory.Edit{PricePerUnit: &price}); err != nil {
		t.Fatalf("update price: %v", err)
	}
	got, err := f.svc.Orders.Get(ctx, customer, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.UnitPrice.Equal(dec("1000")) || !got.TotalAmount.Equal(dec("2000")) {
		t.Errorf("order price changed to %s/%s", got.UnitPrice, got.TotalAmount)
	}
}

func TestListIsScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "10", "5")
	f.order(t, customer, it.ID, "1")
	f.order(t, customer, it.ID, "1")
	f.order(t, customer2, it.ID, "1")

	tests := []struct {
		actor access.Actor
		want  int
	}{
		{customer, 2},
		{customer2, 1},
		{petani, 3},
		{petani2, 0},
		{manager(access.SubrolePemasaran), 3},
	}
	for _, tt := range tests {
		got, err := f.svc.Orders.List(ctx, tt.actor, orders.Filter{})
		if err != nil {
			t.Fatalf("list as %s: %v", tt.actor.ID, err)
		}
		if len(got) != tt.want {
			t.Errorf("%s sees %d orders, want %d", tt.actor.ID, len(got), tt.want)
		}
	}
}

func TestCreatePublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "1", "5")
	o := f.order(t, customer, it.ID, "1")
	_, _ = f.svc.Orders.Create(context.Background(), customer, orders.CreateInput{InventoryID: it.ID, Quantity: dec("1")})

	evs := f.events.Drain()
	if len(evs) != 1 || evs[0].EventType != events.TypeOrderCreated || evs[0].CorrelationID != o.ID {
		t.Fatalf("events = %+v, want one OrderCreated for %s", evs, o.ID)
	}
	p, err := events.Decode[events.OrderCreatedPayload](evs[0])
	if err != nil || p.SupplierID != petani.ID || p.OrderNumber != o.OrderNumber {
		t.Errorf("payload = %+v, %v", p, err)
	}
}
