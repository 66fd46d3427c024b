// Package batchplan implements server-side batch planning for relief
// packages: FEFO/FIFO/LIFO issuance sorting, priority-group assignment,
// drawer batch limiting, shortfall computation and auto-allocation.
package batchplan

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssuanceOrder selects how batches are sequenced for picking.
type IssuanceOrder string

const (
	FEFO IssuanceOrder = "FEFO" // first expired, first out
	FIFO IssuanceOrder = "FIFO" // first in, first out
	LIFO IssuanceOrder = "LIFO" // last in, first out
)

// ItemConfig carries the item attributes that drive planning.
type ItemConfig struct {
	ItemID        string
	IssuanceOrder IssuanceOrder
	CanExpire     bool
	IsBatched     bool
}

// BatchStock is one lot row as reported by the inventory query service.
type BatchStock struct {
	BatchID       string
	BatchNo       string
	ItemID        string
	WarehouseID   string
	WarehouseName string
	BatchDate     *time.Time
	ExpiryDate    *time.Time // nil means the lot never expires
	UsableQty     decimal.Decimal
	ReservedQty   decimal.Decimal
	SizeSpec      string
	UOMCode       string
	Active        bool
}

// AvailableQty returns usable minus reserved. May be negative for
// over-reserved rows; callers filter those out.
func (b BatchStock) AvailableQty() decimal.Decimal {
	return b.UsableQty.Sub(b.ReservedQty)
}

// Expired reports whether the lot's expiry date is before the given day.
func (b BatchStock) Expired(today time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(startOfDay(today))
}

// PrioritizedBatch pairs a batch with its assigned priority group.
type PrioritizedBatch struct {
	BatchStock
	PriorityGroup int
}

// Allocation is one planned draw from a batch.
type Allocation struct {
	BatchID       string
	BatchNo       string
	WarehouseID   string
	WarehouseName string
	BatchDate     *time.Time
	ExpiryDate    *time.Time
	AvailableQty  decimal.Decimal
	AllocatedQty  decimal.Decimal
	UOMCode       string
	SizeSpec      string
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
