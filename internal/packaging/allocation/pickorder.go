package allocation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PickOrderResult reports whether the priority-group ordering holds for
// one set of batches.
type PickOrderResult struct {
	Valid             bool
	ViolatingBatchIDs []string
	// UnderfilledGroup is the earliest priority group that still has stock
	// while a later group holds allocation.
	UnderfilledGroup int
	// RemainingInGroup is the quantity still available in that group.
	RemainingInGroup decimal.Decimal
	Message          string
}

// ValidatePickOrder enforces strict issuance precedence across the batches
// of one item: stock may only be drawn from a priority group when every
// earlier group is fully allocated. Allocations are looked up by batch ID;
// batches without an entry count as zero.
func ValidatePickOrder(batches []Batch, allocations map[string]decimal.Decimal) PickOrderResult {
	groups := make(map[int][]Batch)
	for _, b := range batches {
		groups[b.PriorityGroup] = append(groups[b.PriorityGroup], b)
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	for i, key := range keys {
		available := decimal.Zero
		allocated := decimal.Zero
		for _, b := range groups[key] {
			available = available.Add(b.AvailableQty)
			allocated = allocated.Add(allocations[b.BatchID])
		}

		if allocated.GreaterThanOrEqual(available) {
			continue
		}

		// This group still has stock. Any allocation in a later group is
		// a violation.
		var violating []string
		for _, laterKey := range keys[i+1:] {
			for _, b := range groups[laterKey] {
				if allocations[b.BatchID].IsPositive() {
					violating = append(violating, b.BatchID)
				}
			}
		}

		if len(violating) > 0 {
			sort.Strings(violating)
			remaining := available.Sub(allocated)
			return PickOrderResult{
				Valid:             false,
				ViolatingBatchIDs: violating,
				UnderfilledGroup:  key,
				RemainingInGroup:  remaining,
				Message: fmt.Sprintf(
					"allocate the remaining %s from priority group %d before drawing from later batches",
					remaining, key,
				),
			}
		}

		// Nothing allocated downstream; later groups are unconstrained by
		// this one, and by transitivity by any group after it.
		break
	}

	return PickOrderResult{Valid: true}
}

// ValidatePickOrderByWarehouse runs the pick-order check independently for
// each warehouse's batch set. Issuance priority binds within a warehouse;
// cross-warehouse order is free. The first failing warehouse is reported.
func ValidatePickOrderByWarehouse(batches []Batch, allocations map[string]decimal.Decimal) PickOrderResult {
	byWarehouse := make(map[string][]Batch)
	order := make([]string, 0)
	for _, b := range batches {
		if _, ok := byWarehouse[b.WarehouseID]; !ok {
			order = append(order, b.WarehouseID)
		}
		byWarehouse[b.WarehouseID] = append(byWarehouse[b.WarehouseID], b)
	}
	sort.Strings(order)

	for _, warehouseID := range order {
		if result := ValidatePickOrder(byWarehouse[warehouseID], allocations); !result.Valid {
			return result
		}
	}

	return PickOrderResult{Valid: true}
}
