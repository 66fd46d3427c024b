package allocation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StockFetcher retrieves ledger quantities for an (item, warehouse) pair
// from the inventory query service.
type StockFetcher interface {
	FetchStock(ctx context.Context, itemID, warehouseID string) (usable, reserved decimal.Decimal, err error)
}

// Tone classifies a stock cell for display.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneWarning Tone = "warning" // something allocated, stock remains
	ToneDanger  Tone = "danger"  // nothing remains
)

// CellView is the recomputed presentation of one stock cell against the
// current allocation.
type CellView struct {
	Known     bool
	Remaining decimal.Decimal
	Tone      Tone
	Breakdown string
}

type cellKey struct {
	itemID      string
	warehouseID string
}

// StockLedger caches per (item, warehouse) stock quantities for one
// preparation session.
type StockLedger struct {
	fetcher StockFetcher
	cells   map[cellKey]*StockCell
}

// NewStockLedger creates an empty ledger backed by the given fetcher.
func NewStockLedger(fetcher StockFetcher) *StockLedger {
	return &StockLedger{
		fetcher: fetcher,
		cells:   make(map[cellKey]*StockCell),
	}
}

// Refresh fetches usable and reserved quantities for the cell. On failure
// the cell is kept (or created) in the unknown state so downstream
// validation can skip it.
func (l *StockLedger) Refresh(ctx context.Context, itemID, warehouseID string) (*StockCell, error) {
	key := cellKey{itemID, warehouseID}

	usable, reserved, err := l.fetcher.FetchStock(ctx, itemID, warehouseID)
	if err != nil {
		cell, ok := l.cells[key]
		if !ok {
			cell = &StockCell{ItemID: itemID, WarehouseID: warehouseID}
			l.cells[key] = cell
		}
		cell.Known = false
		return cell, fmt.Errorf("failed to fetch stock for item %s warehouse %s: %w", itemID, warehouseID, err)
	}

	cell := &StockCell{
		ItemID:      itemID,
		WarehouseID: warehouseID,
		UsableQty:   usable,
		ReservedQty: reserved,
		Known:       true,
	}
	l.cells[key] = cell
	return cell, nil
}

// Cell returns the cached cell, if any.
func (l *StockLedger) Cell(itemID, warehouseID string) (*StockCell, bool) {
	cell, ok := l.cells[cellKey{itemID, warehouseID}]
	return cell, ok
}

// Recompute derives the remaining quantity, display tone and breakdown text
// for a cell given the quantity currently allocated against it.
func (l *StockLedger) Recompute(itemID, warehouseID string, allocated decimal.Decimal) CellView {
	cell, ok := l.Cell(itemID, warehouseID)
	if !ok || !cell.Known {
		return CellView{
			Known:     false,
			Remaining: decimal.Zero,
			Tone:      ToneNeutral,
			Breakdown: "stock unknown",
		}
	}

	available := cell.AvailableQty()
	remaining := available.Sub(allocated)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	tone := ToneNeutral
	switch {
	case remaining.IsZero():
		tone = ToneDanger
	case allocated.IsPositive():
		tone = ToneWarning
	}

	breakdown := fmt.Sprintf(
		"usable %s, reserved %s, available %s, allocated %s, remaining %s",
		cell.UsableQty, cell.ReservedQty, available, allocated, remaining,
	)

	return CellView{
		Known:     true,
		Remaining: remaining,
		Tone:      tone,
		Breakdown: breakdown,
	}
}
