package allocation

import (
	"net/url"
	"sort"

	"github.com/shopspring/decimal"
)

// Store is the single writable source of truth for batch allocations,
// keyed by item and batch. Only positive quantities are kept; setting a
// quantity to zero removes the entry, so the map size always equals the
// number of batches actually contributing stock.
type Store struct {
	entries map[string]map[string]decimal.Decimal
}

// NewStore creates an empty allocation store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]map[string]decimal.Decimal),
	}
}

// Set records an allocation for the batch, clamped to [0, available].
// A resulting zero removes the entry. Returns the quantity actually applied.
func (s *Store) Set(itemID, batchID string, qty, available decimal.Decimal) decimal.Decimal {
	applied := clampQty(qty, available)

	if applied.IsZero() {
		if m, ok := s.entries[itemID]; ok {
			delete(m, batchID)
			if len(m) == 0 {
				delete(s.entries, itemID)
			}
		}
		return applied
	}

	m, ok := s.entries[itemID]
	if !ok {
		m = make(map[string]decimal.Decimal)
		s.entries[itemID] = m
	}
	m[batchID] = applied
	return applied
}

// Quantity returns the allocation for one batch, zero if absent.
func (s *Store) Quantity(itemID, batchID string) decimal.Decimal {
	if m, ok := s.entries[itemID]; ok {
		if qty, ok := m[batchID]; ok {
			return qty
		}
	}
	return decimal.Zero
}

// Total sums all allocations for the item.
func (s *Store) Total(itemID string) decimal.Decimal {
	total := decimal.Zero
	for _, qty := range s.entries[itemID] {
		total = total.Add(qty)
	}
	return total
}

// Entries returns a copy of the item's batch allocations.
func (s *Store) Entries(itemID string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.entries[itemID]))
	for batchID, qty := range s.entries[itemID] {
		out[batchID] = qty
	}
	return out
}

// BatchIDs returns the item's allocated batch IDs in stable order.
func (s *Store) BatchIDs(itemID string) []string {
	ids := make([]string, 0, len(s.entries[itemID]))
	for batchID := range s.entries[itemID] {
		ids = append(ids, batchID)
	}
	sort.Strings(ids)
	return ids
}

// Replace swaps the item's allocations for the given set atomically.
// Non-positive quantities in the replacement are dropped.
func (s *Store) Replace(itemID string, entries map[string]decimal.Decimal) {
	m := make(map[string]decimal.Decimal, len(entries))
	for batchID, qty := range entries {
		if qty.IsPositive() {
			m[batchID] = qty
		}
	}
	if len(m) == 0 {
		delete(s.entries, itemID)
		return
	}
	s.entries[itemID] = m
}

// LoadFromForm reconstructs the item's allocations from submitted form
// values, scanning batch_allocation_<item>_<batch> keys. Malformed and
// non-positive values are ignored.
func (s *Store) LoadFromForm(itemID string, values url.Values) {
	entries := make(map[string]decimal.Decimal)

	for key, vals := range values {
		batchID, ok := BatchIDFromKey(itemID, key)
		if !ok || len(vals) == 0 {
			continue
		}

		qty, err := decimal.NewFromString(vals[0])
		if err != nil || !qty.IsPositive() {
			continue
		}
		entries[batchID] = qty
	}

	s.Replace(itemID, entries)
}
