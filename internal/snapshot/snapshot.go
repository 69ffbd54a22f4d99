// Package snapshot keeps a local copy of one bill's items and claims in step
// with the bill store and re-derives the user's totals on every change.
//
// Change notifications are applied optimistically and then confirmed by a
// full refetch. Refetches may overlap; each takes a generation number when it
// starts, and a result is only applied if no newer refetch has landed first.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mmynk/splitclaim/internal/calculator"
	"github.com/mmynk/splitclaim/internal/metrics"
	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/realtime"
	"github.com/mmynk/splitclaim/internal/storage"
)

var (
	// ErrActive is returned by Activate when the controller is already active.
	ErrActive = errors.New("snapshot: controller already active")

	// ErrInactive is returned by Refresh before Activate or after Close.
	ErrInactive = errors.New("snapshot: controller not active")

	// ErrSuperseded is returned by Refresh when a newer refetch was applied
	// first and this result was discarded.
	ErrSuperseded = errors.New("snapshot: refetch superseded")
)

var tracer = otel.Tracer("splitclaim.snapshot")

// Snapshot is the local view of one bill at a point in time.
type Snapshot struct {
	BillID string
	Bill   *models.Bill
	Items  []models.Item
	Claims []models.Claim

	// Totals are the current user's derived share.
	Totals models.Totals

	// Generation is the generation of the last applied refetch.
	Generation uint64

	// Version increases on every applied change, optimistic or not.
	Version uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithUser sets whose totals are derived. Without it totals stay zero.
func WithUser(user *models.User) Option {
	return func(c *Controller) { c.user = user }
}

// WithOnChange registers fn to receive every new snapshot. Calls are
// serialized and never go backwards in Version.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// Controller owns the snapshot for one bill at a time.
type Controller struct {
	reader   storage.Reader
	channel  realtime.Channel
	user     *models.User
	onChange func(Snapshot)
	logger   *slog.Logger

	nextGen atomic.Uint64

	mu          sync.Mutex
	active      bool
	snap        Snapshot
	lastApplied uint64
	ctx         context.Context
	cancel      context.CancelFunc
	sub         realtime.Subscription

	notifyMu     sync.Mutex
	lastNotified uint64

	wg sync.WaitGroup
}

// New creates an inactive controller.
func New(reader storage.Reader, channel realtime.Channel, opts ...Option) *Controller {
	c := &Controller{
		reader:  reader,
		channel: channel,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate subscribes to the bill's claim notifications and loads the initial
// snapshot. The subscription is opened first so that no change made during
// the initial reads goes unnoticed. The controller stays active until Close
// or until ctx is done.
func (c *Controller) Activate(ctx context.Context, billID string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.active = true
	c.snap = Snapshot{BillID: billID, Version: c.snap.Version}
	c.ctx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	sub, err := c.channel.Subscribe(runCtx, billID)
	if err != nil {
		c.deactivate()
		return fmt.Errorf("failed to subscribe to claim changes: %w", err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		_ = c.Close()
		return err
	}

	c.wg.Add(1)
	go c.run(runCtx, sub)

	c.logger.Info("Bill view activated", "bill_id", billID)
	return nil
}

// Close unsubscribes and waits for in-flight refetches to finish.
// It is safe to call more than once.
func (c *Controller) Close() error {
	sub, ok := c.deactivate()

	var err error
	if ok && sub != nil {
		err = sub.Close()
	}
	c.wg.Wait()
	return err
}

// stop deactivates the controller when its context ends or its subscription
// does, unless a Close has already done so.
func (c *Controller) stop(sub realtime.Subscription) {
	c.mu.Lock()
	if !c.active || c.sub != sub {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.cancel()
	c.sub = nil
	billID := c.snap.BillID
	c.mu.Unlock()

	if err := sub.Close(); err != nil {
		c.logger.Warn("Failed to close claim subscription", "error", err)
	}
	c.logger.Info("Bill view deactivated", "bill_id", billID)
}

func (c *Controller) deactivate() (realtime.Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return nil, false
	}
	c.active = false
	c.cancel()
	sub := c.sub
	c.sub = nil
	return sub, true
}

// Snapshot returns a copy of the current snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Refresh re-reads bill, items, and claims, in that order, and replaces the
// snapshot with the result unless a newer refetch has already been applied.
func (c *Controller) Refresh(ctx context.Context) (err error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrInactive
	}
	billID := c.snap.BillID
	c.mu.Unlock()

	gen := c.nextGen.Add(1)

	ctx, span := tracer.Start(ctx, "snapshot.Refresh")
	span.SetAttributes(attribute.String("bill_id", billID), attribute.Int64("generation", int64(gen)))
	defer func() {
		if err != nil && !errors.Is(err, ErrSuperseded) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	bill, items, claims, err := c.fetch(ctx, billID)
	if err != nil {
		metrics.SnapshotRefreshesTotal.WithLabelValues("error").Inc()
		return err
	}

	c.mu.Lock()
	if !c.active || c.snap.BillID != billID {
		c.mu.Unlock()
		return ErrInactive
	}
	if gen <= c.lastApplied {
		c.mu.Unlock()
		metrics.SnapshotRefreshesTotal.WithLabelValues("superseded").Inc()
		c.logger.Debug("Discarding superseded refetch", "bill_id", billID, "generation", gen)
		return ErrSuperseded
	}
	c.lastApplied = gen
	c.snap.Bill = bill
	c.snap.Items = items
	c.snap.Claims = claims
	c.snap.Generation = gen
	c.recomputeLocked()
	snap := c.copyLocked()
	c.mu.Unlock()

	metrics.SnapshotRefreshesTotal.WithLabelValues("applied").Inc()
	if drifts := calculator.PercentageDrift(items, claims); len(drifts) > 0 {
		c.logger.Warn("Claim percentages disagree with claim count; using claim count",
			"bill_id", billID,
			"drifted_claims", len(drifts),
		)
	}

	c.notify(snap)
	return nil
}

func (c *Controller) fetch(ctx context.Context, billID string) (*models.Bill, []models.Item, []models.Claim, error) {
	bill, err := c.reader.GetBill(ctx, billID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch bill: %w", err)
	}

	items, err := c.reader.ListItems(ctx, billID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch items: %w", err)
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	claims, err := c.reader.ListClaims(ctx, ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch claims: %w", err)
	}

	return bill, items, claims, nil
}

func (c *Controller) run(ctx context.Context, sub realtime.Subscription) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.stop(sub)
			return
		case event, ok := <-sub.Events():
			if !ok {
				c.stop(sub)
				return
			}
			c.handleEvent(ctx, event)
		}
	}
}

// handleEvent applies the notification optimistically, then always issues an
// authoritative refetch.
func (c *Controller) handleEvent(ctx context.Context, event realtime.Event) {
	if snap, ok := c.applyOptimistic(event); ok {
		c.notify(snap)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.Refresh(ctx)
		switch {
		case err == nil, errors.Is(err, ErrSuperseded), errors.Is(err, ErrInactive), ctx.Err() != nil:
		default:
			c.logger.Warn("Snapshot refetch failed", "bill_id", event.BillID, "error", err)
		}
	}()
}

func (c *Controller) applyOptimistic(event realtime.Event) (Snapshot, bool) {
	claim := event.Claim()
	if claim == nil {
		return Snapshot{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || (event.BillID != "" && event.BillID != c.snap.BillID) {
		return Snapshot{}, false
	}

	switch event.Type {
	case realtime.EventInsert:
		if !hasItem(c.snap.Items, claim.ItemID) || indexOfClaim(c.snap.Claims, *claim, false) >= 0 {
			return Snapshot{}, false
		}
		c.snap.Claims = append(c.snap.Claims, *claim)
	case realtime.EventDelete:
		i := indexOfClaim(c.snap.Claims, *claim, true)
		if i < 0 {
			return Snapshot{}, false
		}
		c.snap.Claims = append(c.snap.Claims[:i:i], c.snap.Claims[i+1:]...)
	default:
		return Snapshot{}, false
	}

	c.recomputeLocked()
	return c.copyLocked(), true
}

func (c *Controller) recomputeLocked() {
	c.snap.Totals = calculator.Allocate(c.snap.Items, c.snap.Claims, c.snap.Bill, c.user)
	c.snap.Version++
}

func (c *Controller) copyLocked() Snapshot {
	snap := c.snap
	snap.Items = append([]models.Item(nil), c.snap.Items...)
	snap.Claims = append([]models.Claim(nil), c.snap.Claims...)
	if c.snap.Bill != nil {
		bill := *c.snap.Bill
		snap.Bill = &bill
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	if c.onChange == nil {
		return
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if snap.Version <= c.lastNotified {
		return
	}
	c.lastNotified = snap.Version
	c.onChange(snap)
}

func hasItem(items []models.Item, itemID string) bool {
	for _, item := range items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

// indexOfClaim matches by claim ID. Rows without an ID, or with an unknown ID
// when byUser is set, are matched by item and user instead.
func indexOfClaim(claims []models.Claim, claim models.Claim, byUser bool) int {
	if claim.ID != "" {
		for i, c := range claims {
			if c.ID == claim.ID {
				return i
			}
		}
		if !byUser {
			return -1
		}
	}
	if claim.ItemID == "" || claim.UserID == "" {
		return -1
	}
	for i, c := range claims {
		if c.ItemID == claim.ItemID && c.UserID == claim.UserID {
			return i
		}
	}
	return -1
}
