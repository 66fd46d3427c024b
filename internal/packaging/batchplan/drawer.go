package batchplan

import "github.com/shopspring/decimal"

// DrawerPlan is the trimmed batch set shown to the fulfiller, with the
// fulfillability verdict for the remaining quantity.
type DrawerPlan struct {
	Batches        []BatchStock
	TotalAvailable decimal.Decimal
	Shortfall      decimal.Decimal
}

// CanFulfill reports whether the included batches cover the remainder.
func (p DrawerPlan) CanFulfill() bool {
	return p.Shortfall.IsZero()
}

// LimitForDrawer trims sorted batches down to the set worth presenting:
// every batch the fulfiller already drew from, plus the first unpicked
// batch of each warehouse not yet represented. Total availability and
// shortfall are computed over the included set only, so the verdict
// reflects what the drawer actually offers.
func LimitForDrawer(sorted []BatchStock, remaining decimal.Decimal, allocatedIDs []string) DrawerPlan {
	allocated := make(map[string]bool, len(allocatedIDs))
	for _, id := range allocatedIDs {
		allocated[id] = true
	}

	included := make([]BatchStock, 0, len(sorted))
	seenWarehouse := make(map[string]bool)
	total := decimal.Zero

	for _, b := range sorted {
		if allocated[b.BatchID] {
			included = append(included, b)
			seenWarehouse[b.WarehouseID] = true
			total = total.Add(b.AvailableQty())
			continue
		}
		if !seenWarehouse[b.WarehouseID] {
			included = append(included, b)
			seenWarehouse[b.WarehouseID] = true
			total = total.Add(b.AvailableQty())
		}
	}

	shortfall := remaining.Sub(total)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}

	return DrawerPlan{
		Batches:        included,
		TotalAvailable: total,
		Shortfall:      shortfall,
	}
}
