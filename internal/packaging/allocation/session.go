package allocation

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/drims/drims-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// SessionState is the lifecycle state of a batch selection session.
type SessionState string

const (
	SessionClosed  SessionState = "closed"
	SessionLoading SessionState = "loading"
	SessionReady   SessionState = "ready"
	SessionEmpty   SessionState = "empty"
	SessionFailed  SessionState = "failed"
)

// BatchListing is the eligible-batch response from the inventory query
// service for one item.
type BatchListing struct {
	IssuanceOrder  string
	CanExpire      bool
	IsBatched      bool
	TotalAvailable decimal.Decimal
	Shortfall      decimal.Decimal
	CanFulfill     bool
	Batches        []Batch
}

// BatchFetcher retrieves eligible batches for an item. The remaining
// quantity is always passed, even when zero or negative, so server-side
// filtering stays deterministic; allocated batch IDs keep already-chosen
// lots visible for editing.
type BatchFetcher interface {
	FetchBatches(ctx context.Context, itemID string, remainingQty decimal.Decimal, requiredUOM string, allocatedBatchIDs []string) (*BatchListing, error)
}

// ApplySummary reports the outcome of committing a session.
type ApplySummary struct {
	TotalAllocated decimal.Decimal
	Remaining      decimal.Decimal
	Status         StatusCode
	AllowedCodes   []StatusCode
	BatchCount     int
	WarehouseCount int
}

// Session is the batch selection drawer for one item. At most one session
// is current per item; opening again discards the previous one, and a fetch
// response arriving for a superseded open is ignored.
type Session struct {
	store   *Store
	fetcher BatchFetcher

	mu        sync.Mutex
	gen       uint64
	state     SessionState
	item      *Item
	listing   *BatchListing
	batches   map[string]Batch
	committed map[string]decimal.Decimal
}

// NewSession creates a closed session over the given store.
func NewSession(store *Store, fetcher BatchFetcher) *Session {
	return &Session{
		store:   store,
		fetcher: fetcher,
		state:   SessionClosed,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Listing returns the loaded batch listing, nil unless Ready or Empty.
func (s *Session) Listing() *BatchListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listing
}

// Open starts a session for the item: snapshots the committed allocations,
// computes the remaining quantity (which may be zero or negative) and loads
// eligible batches. A previously open session is discarded. On fetch
// failure the session is Failed and the store is untouched.
func (s *Session) Open(ctx context.Context, item *Item) error {
	s.mu.Lock()
	s.gen++
	tag := s.gen
	s.state = SessionLoading
	s.item = item
	s.listing = nil
	s.batches = nil
	s.committed = s.store.Entries(item.ItemID)

	remaining := item.RequestedQty.Sub(s.store.Total(item.ItemID))
	allocatedIDs := s.store.BatchIDs(item.ItemID)
	s.mu.Unlock()

	listing, err := s.fetcher.FetchBatches(ctx, item.ItemID, remaining, item.RequiredUOM, allocatedIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != tag {
		// The session was reopened or closed while the fetch was in
		// flight; the late response must not be applied.
		return nil
	}

	if err != nil {
		s.state = SessionFailed
		return apperrors.Upstream("failed to load batches for item " + item.ItemID)
	}

	s.listing = listing
	s.batches = make(map[string]Batch, len(listing.Batches))
	for _, b := range listing.Batches {
		s.batches[b.BatchID] = b
	}

	if len(listing.Batches) == 0 {
		s.state = SessionEmpty
	} else {
		s.state = SessionReady
	}
	return nil
}

// EditQuantity sets the allocation for one batch, clamped to
// [0, batch available] (zero for expired lots), writes through to the
// store and re-runs the pick-order check. Returns the applied quantity.
func (s *Session) EditQuantity(batchID string, qty decimal.Decimal) (decimal.Decimal, PickOrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionReady {
		return decimal.Zero, PickOrderResult{}, apperrors.Conflict("no batch selection in progress")
	}

	batch, ok := s.batches[batchID]
	if !ok {
		return decimal.Zero, PickOrderResult{}, apperrors.NotFound("batch")
	}

	limit := batch.AvailableQty
	if batch.Expired(time.Now()) {
		limit = decimal.Zero
	}

	applied := s.store.Set(s.item.ItemID, batchID, qty, limit)
	result := s.validateLocked()
	return applied, result, nil
}

// UseMax fills as much of the remaining shortfall as the batch can provide:
// min(batch available, remaining + current allocation for this batch).
func (s *Session) UseMax(batchID string) (decimal.Decimal, PickOrderResult, error) {
	s.mu.Lock()
	if s.state != SessionReady {
		s.mu.Unlock()
		return decimal.Zero, PickOrderResult{}, apperrors.Conflict("no batch selection in progress")
	}

	batch, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return decimal.Zero, PickOrderResult{}, apperrors.NotFound("batch")
	}

	current := s.store.Quantity(s.item.ItemID, batchID)
	remaining := s.item.RequestedQty.Sub(s.store.Total(s.item.ItemID))
	target := remaining.Add(current)
	if target.GreaterThan(batch.AvailableQty) {
		target = batch.AvailableQty
	}
	s.mu.Unlock()

	return s.EditQuantity(batchID, target)
}

// Validate runs the pick-order check against the current allocations.
func (s *Session) Validate() PickOrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked()
}

func (s *Session) validateLocked() PickOrderResult {
	if s.item == nil || len(s.batches) == 0 {
		return PickOrderResult{Valid: true}
	}

	batches := make([]Batch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, b)
	}
	return ValidatePickOrderByWarehouse(batches, s.store.Entries(s.item.ItemID))
}

// WarehouseSubtotals returns the allocated quantity per warehouse for the
// loaded batches.
func (s *Session) WarehouseSubtotals() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	subtotals := make(map[string]decimal.Decimal)
	if s.item == nil {
		return subtotals
	}

	allocations := s.store.Entries(s.item.ItemID)
	for batchID, qty := range allocations {
		if batch, ok := s.batches[batchID]; ok {
			subtotals[batch.WarehouseID] = subtotals[batch.WarehouseID].Add(qty)
		}
	}
	return subtotals
}

// Apply commits the session: the total must not exceed the requested
// quantity and the pick order must hold. On success the item's status is
// reconciled, the committed snapshot is updated and the session closes.
// On failure the session stays open with its edits intact.
func (s *Session) Apply() (ApplySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionReady && s.state != SessionEmpty {
		return ApplySummary{}, apperrors.Conflict("no batch selection in progress")
	}

	total := s.store.Total(s.item.ItemID)
	if total.GreaterThan(s.item.RequestedQty) {
		return ApplySummary{}, apperrors.BadRequest(
			"allocated quantity " + total.String() + " exceeds requested quantity " + s.item.RequestedQty.String(),
		)
	}

	if result := s.validateLocked(); !result.Valid {
		details := map[string]string{"message": result.Message}
		for _, batchID := range result.ViolatingBatchIDs {
			details["batch_"+batchID] = "violates pick order"
		}
		return ApplySummary{}, apperrors.Validation(details)
	}

	allowed := Reconcile(s.item, total)

	entries := s.store.Entries(s.item.ItemID)
	warehouses := make(map[string]struct{})
	for batchID := range entries {
		if batch, ok := s.batches[batchID]; ok {
			warehouses[batch.WarehouseID] = struct{}{}
		}
	}

	remaining := s.item.RequestedQty.Sub(total)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	s.committed = entries
	s.gen++
	s.state = SessionClosed

	return ApplySummary{
		TotalAllocated: total,
		Remaining:      remaining,
		Status:         s.item.Status,
		AllowedCodes:   allowed,
		BatchCount:     len(entries),
		WarehouseCount: len(warehouses),
	}, nil
}

// Close discards in-session edits, reverting the store to the last
// committed snapshot.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed {
		return
	}

	if s.item != nil {
		s.store.Replace(s.item.ItemID, s.committed)
	}
	s.gen++
	s.state = SessionClosed
}
