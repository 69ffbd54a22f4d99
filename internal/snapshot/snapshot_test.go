package snapshot

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/realtime"
	"github.com/mmynk/splitclaim/internal/storage"
	"github.com/mmynk/splitclaim/internal/storage/sqlite"
)

// gatedReader serves a fixed bill whose claims can be changed between reads.
// When gate is set, the next ListClaims captures the current claims and then
// blocks until the gate is closed.
type gatedReader struct {
	mu      sync.Mutex
	bill    models.Bill
	items   []models.Item
	claims  []models.Claim
	gate    chan struct{}
	started chan struct{}
}

func (r *gatedReader) GetBill(_ context.Context, billID string) (*models.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if billID != r.bill.ID {
		return nil, storage.ErrNotFound
	}
	bill := r.bill
	return &bill, nil
}

func (r *gatedReader) ListItems(context.Context, string) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Item(nil), r.items...), nil
}

func (r *gatedReader) ListClaims(ctx context.Context, _ []string) ([]models.Claim, error) {
	r.mu.Lock()
	claims := append([]models.Claim(nil), r.claims...)
	gate, started := r.gate, r.started
	r.gate, r.started = nil, nil
	r.mu.Unlock()

	if gate != nil {
		close(started)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return claims, nil
}

func (r *gatedReader) setClaims(claims ...models.Claim) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims = claims
}

// blockNext makes the next ListClaims block; started is closed once it has
// captured its data.
func (r *gatedReader) blockNext() (gate, started chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.started = make(chan struct{})
	return r.gate, r.started
}

func newReader() *gatedReader {
	return &gatedReader{
		bill: models.Bill{ID: "b1", TaxAmount: 20, TipAmount: 10},
		items: []models.Item{
			{ID: "i1", BillID: "b1", Name: "Curry", UnitPrice: 100},
			{ID: "i2", BillID: "b1", Name: "Noodles", UnitPrice: 100},
		},
	}
}

var alice = &models.User{ID: "alice", Name: "Alice"}

func aliceClaim(itemID string) models.Claim {
	return models.Claim{ID: "c-" + itemID + "-alice", ItemID: itemID, UserID: "alice", UserName: "Alice", Percentage: 1}
}

// waitFor returns the first snapshot satisfying cond.
func waitFor(t *testing.T, changes <-chan Snapshot, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-changes:
			if cond(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
			return Snapshot{}
		}
	}
}

func TestController_ActivateComputesTotals(t *testing.T) {
	reader := newReader()
	reader.setClaims(aliceClaim("i1"))
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(reader, hub, WithUser(alice))
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	snap := ctrl.Snapshot()
	if snap.Bill == nil || snap.Bill.ID != "b1" {
		t.Fatalf("unexpected bill %+v", snap.Bill)
	}
	if len(snap.Items) != 2 || len(snap.Claims) != 1 {
		t.Fatalf("unexpected snapshot sizes: %d items, %d claims", len(snap.Items), len(snap.Claims))
	}
	if math.Abs(snap.Totals.Total-115) > 0.01 {
		t.Errorf("total = %v, want 115", snap.Totals.Total)
	}
	if snap.Generation == 0 {
		t.Error("expected a generation after the initial fetch")
	}
}

func TestController_ActivateTwice(t *testing.T) {
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(newReader(), hub)
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	if err := ctrl.Activate(context.Background(), "b1"); !errors.Is(err, ErrActive) {
		t.Errorf("second Activate: got %v, want ErrActive", err)
	}
}

func TestController_ActivateUnknownBill(t *testing.T) {
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(newReader(), hub)
	err := ctrl.Activate(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Activate: got %v, want ErrNotFound", err)
	}
	if err := ctrl.Refresh(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("Refresh after failed Activate: got %v, want ErrInactive", err)
	}
}

func TestController_RefreshBeforeActivate(t *testing.T) {
	ctrl := New(newReader(), realtime.NewHub())
	if err := ctrl.Refresh(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("got %v, want ErrInactive", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Errorf("Close on inactive controller: %v", err)
	}
}

func TestController_SupersededRefetchDiscarded(t *testing.T) {
	reader := newReader()
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(reader, hub, WithUser(alice))
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	// The older refetch sees no claims and stalls.
	gate, started := reader.blockNext()
	olderErr := make(chan error, 1)
	go func() { olderErr <- ctrl.Refresh(context.Background()) }()
	<-started

	// A newer refetch sees alice's claim and lands first.
	reader.setClaims(aliceClaim("i1"))
	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("newer Refresh failed: %v", err)
	}

	close(gate)
	if err := <-olderErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("older Refresh: got %v, want ErrSuperseded", err)
	}

	snap := ctrl.Snapshot()
	if len(snap.Claims) != 1 {
		t.Fatalf("stale refetch overwrote snapshot: %d claims", len(snap.Claims))
	}
	if math.Abs(snap.Totals.Subtotal-100) > 0.01 {
		t.Errorf("subtotal = %v, want 100", snap.Totals.Subtotal)
	}
}

func TestController_OptimisticInsertThenAuthoritative(t *testing.T) {
	reader := newReader()
	hub := realtime.NewHub()
	defer hub.Close()

	changes := make(chan Snapshot, 32)
	ctrl := New(reader, hub, WithUser(alice), WithOnChange(func(s Snapshot) { changes <- s }))
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	// Hold the refetch so the optimistic state is observable. The store never
	// recorded this claim, so the authoritative read must remove it again.
	gate, _ := reader.blockNext()

	phantom := aliceClaim("i2")
	if err := hub.Publish(context.Background(), realtime.Event{Type: realtime.EventInsert, BillID: "b1", New: &phantom}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	optimistic := waitFor(t, changes, func(s Snapshot) bool { return len(s.Claims) == 1 })
	if optimistic.Claims[0].ID != phantom.ID {
		t.Errorf("optimistic claim = %+v", optimistic.Claims[0])
	}
	if math.Abs(optimistic.Totals.Subtotal-100) > 0.01 {
		t.Errorf("optimistic subtotal = %v, want 100", optimistic.Totals.Subtotal)
	}

	close(gate)
	final := waitFor(t, changes, func(s Snapshot) bool { return len(s.Claims) == 0 })
	if final.Totals != (models.Totals{}) {
		t.Errorf("final totals = %+v, want zero", final.Totals)
	}
}

func TestController_OptimisticDeleteByUserFallback(t *testing.T) {
	reader := newReader()
	reader.setClaims(aliceClaim("i1"))
	hub := realtime.NewHub()
	defer hub.Close()

	changes := make(chan Snapshot, 32)
	ctrl := New(reader, hub, WithUser(alice), WithOnChange(func(s Snapshot) { changes <- s }))
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	reader.setClaims()
	old := models.Claim{ItemID: "i1", UserID: "alice"}
	if err := hub.Publish(context.Background(), realtime.Event{Type: realtime.EventDelete, BillID: "b1", Old: &old}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	snap := waitFor(t, changes, func(s Snapshot) bool { return len(s.Claims) == 0 })
	if snap.Totals.Total != 0 {
		t.Errorf("total = %v, want 0", snap.Totals.Total)
	}
}

func TestController_IgnoresClaimsOnUnknownItems(t *testing.T) {
	reader := newReader()
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(reader, hub, WithUser(alice))
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	stray := models.Claim{ID: "stray", ItemID: "not-on-bill", UserID: "alice"}
	if _, ok := ctrl.applyOptimistic(realtime.Event{Type: realtime.EventInsert, BillID: "b1", New: &stray}); ok {
		t.Error("expected claim on unknown item to be ignored")
	}
	if _, ok := ctrl.applyOptimistic(realtime.Event{Type: realtime.EventInsert, BillID: "other", New: &stray}); ok {
		t.Error("expected event for another bill to be ignored")
	}
}

func TestController_CloseStopsUpdates(t *testing.T) {
	reader := newReader()
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(reader, hub, WithUser(alice))
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	claim := aliceClaim("i1")
	_ = hub.Publish(context.Background(), realtime.Event{Type: realtime.EventInsert, BillID: "b1", New: &claim})
	if err := ctrl.Refresh(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("Refresh after Close: got %v, want ErrInactive", err)
	}

	// The controller can be reactivated.
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("re-Activate failed: %v", err)
	}
	ctrl.Close()
}

// TestController_ConvergesWithStore drives real toggles through the SQLite
// store and checks that the snapshot ends up equal to the store's claims.
func TestController_ConvergesWithStore(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "bills.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	bill := &models.Bill{TaxAmount: 9, TipAmount: 0}
	items := []models.Item{{Name: "Pizza", UnitPrice: 90, Category: models.CategoryShared}}
	if err := store.CreateBill(ctx, bill, items); err != nil {
		t.Fatalf("CreateBill failed: %v", err)
	}
	itemID := items[0].ID

	hub := realtime.NewHub()
	defer hub.Close()

	changes := make(chan Snapshot, 64)
	ctrl := New(store, hub, WithUser(alice), WithOnChange(func(s Snapshot) { changes <- s }))
	if err := ctrl.Activate(ctx, bill.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	defer ctrl.Close()

	for _, u := range []models.User{*alice, {ID: "bob", Name: "Bob"}, {ID: "carol", Name: "Carol"}} {
		res, err := store.ToggleClaim(ctx, bill.ID, itemID, u.ID, u.Name)
		if err != nil {
			t.Fatalf("ToggleClaim failed: %v", err)
		}
		if err := hub.Publish(ctx, realtime.Event{Type: realtime.EventInsert, BillID: bill.ID, New: res.Inserted}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	want, err := store.ListClaims(ctx, []string{itemID})
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}

	snap := waitFor(t, changes, func(s Snapshot) bool {
		return sameClaims(s.Claims, want) && s.Claims[0].Percentage == want[0].Percentage
	})
	if math.Abs(snap.Totals.Subtotal-30) > 0.01 {
		t.Errorf("subtotal = %v, want 30", snap.Totals.Subtotal)
	}
	if math.Abs(snap.Totals.Total-33) > 0.01 {
		t.Errorf("total = %v, want 33", snap.Totals.Total)
	}
}

func sameClaims(got, want []models.Claim) bool {
	if len(got) != len(want) {
		return false
	}
	ids := func(cs []models.Claim) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		sort.Strings(out)
		return out
	}
	g, w := ids(got), ids(want)
	for i := range g {
		if g[i] != w[i] {
			return false
		}
	}
	return true
}

func TestController_StopsWhenContextDone(t *testing.T) {
	reader := newReader()
	hub := realtime.NewHub()
	defer hub.Close()

	ctrl := New(reader, hub, WithUser(alice))
	ctx, cancel := context.WithCancel(context.Background())
	if err := ctrl.Activate(ctx, "b1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for !errors.Is(ctrl.Refresh(context.Background()), ErrInactive) {
		if time.Now().After(deadline) {
			t.Fatal("controller still active after its context ended")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close after context end: %v", err)
	}
	if err := ctrl.Activate(context.Background(), "b1"); err != nil {
		t.Fatalf("re-Activate after context end: %v", err)
	}
	defer ctrl.Close()

	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Errorf("Refresh after re-Activate: %v", err)
	}
}
