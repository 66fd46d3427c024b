package batchplan

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SortBatches filters and orders batches by the item's issuance rule.
// Expired lots are dropped for expirable items (a nil expiry date means
// "never expires" and is kept), as are lots with no available stock.
// Ties within an issuance key break on available quantity descending so
// the order is deterministic.
func SortBatches(batches []BatchStock, cfg ItemConfig, today time.Time) []BatchStock {
	active := make([]BatchStock, 0, len(batches))
	for _, b := range batches {
		if cfg.CanExpire && b.Expired(today) {
			continue
		}
		if !b.AvailableQty().IsPositive() {
			continue
		}
		active = append(active, b)
	}

	switch {
	case cfg.IssuanceOrder == FEFO && cfg.CanExpire:
		// Earliest expiry first; lots that never expire go last.
		sort.SliceStable(active, func(i, j int) bool {
			a, b := active[i], active[j]
			if (a.ExpiryDate == nil) != (b.ExpiryDate == nil) {
				return b.ExpiryDate == nil
			}
			if a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate) {
				return a.ExpiryDate.Before(*b.ExpiryDate)
			}
			if c := compareDatesAsc(a.BatchDate, b.BatchDate); c != 0 {
				return c < 0
			}
			return a.AvailableQty().GreaterThan(b.AvailableQty())
		})

	case cfg.IssuanceOrder == LIFO:
		// Latest batch date first; undated lots go last.
		sort.SliceStable(active, func(i, j int) bool {
			a, b := active[i], active[j]
			if c := compareDatesNilFirst(a.BatchDate, b.BatchDate); c != 0 {
				return c > 0
			}
			return a.AvailableQty().GreaterThan(b.AvailableQty())
		})

	default: // FIFO
		// Earliest batch date first; undated lots go first.
		sort.SliceStable(active, func(i, j int) bool {
			a, b := active[i], active[j]
			if c := compareDatesNilFirst(a.BatchDate, b.BatchDate); c != 0 {
				return c < 0
			}
			return a.AvailableQty().GreaterThan(b.AvailableQty())
		})
	}

	return active
}

// compareDatesAsc orders dates ascending with nil last.
func compareDatesAsc(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

// compareDatesNilFirst orders dates ascending with nil first.
func compareDatesNilFirst(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

// AssignPriorityGroups numbers sorted batches into mandatory pick groups.
// Batches share a group when their issuance key matches: (expiry date,
// batch date) under FEFO, batch date otherwise.
func AssignPriorityGroups(sorted []BatchStock, cfg ItemConfig) []PrioritizedBatch {
	if len(sorted) == 0 {
		return nil
	}

	out := make([]PrioritizedBatch, 0, len(sorted))
	groupID := 0
	for i, b := range sorted {
		if i > 0 && !sameGroupKey(sorted[i-1], b, cfg) {
			groupID++
		}
		out = append(out, PrioritizedBatch{BatchStock: b, PriorityGroup: groupID})
	}
	return out
}

func sameGroupKey(a, b BatchStock, cfg ItemConfig) bool {
	if cfg.IssuanceOrder == FEFO && cfg.CanExpire {
		return equalDates(a.ExpiryDate, b.ExpiryDate) && equalDates(a.BatchDate, b.BatchDate)
	}
	return equalDates(a.BatchDate, b.BatchDate)
}

func equalDates(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// AutoAllocate walks sorted batches, drawing from each until the requested
// quantity is covered or stock runs out.
func AutoAllocate(sorted []BatchStock, requested decimal.Decimal) []Allocation {
	allocations := make([]Allocation, 0)
	remaining := requested

	for _, b := range sorted {
		if !remaining.IsPositive() {
			break
		}

		available := b.AvailableQty()
		allocated := decimal.Min(available, remaining)
		if !allocated.IsPositive() {
			continue
		}

		allocations = append(allocations, Allocation{
			BatchID:       b.BatchID,
			BatchNo:       b.BatchNo,
			WarehouseID:   b.WarehouseID,
			WarehouseName: b.WarehouseName,
			BatchDate:     b.BatchDate,
			ExpiryDate:    b.ExpiryDate,
			AvailableQty:  available,
			AllocatedQty:  allocated,
			UOMCode:       b.UOMCode,
			SizeSpec:      b.SizeSpec,
		})
		remaining = remaining.Sub(allocated)
	}

	return allocations
}
