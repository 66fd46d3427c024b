// Package allocation implements the batch allocation engine for relief
// package preparation: a stock ledger cache, the per-item allocation store,
// pick-order validation, status derivation, the batch selection session and
// dashboard rollups. All state is session-scoped; nothing here touches the
// database or the network beyond the injected fetcher interfaces.
package allocation

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusCode is a one-letter item approval status.
type StatusCode string

const (
	StatusRequested    StatusCode = "R" // auto, nothing allocated
	StatusPartlyFilled StatusCode = "P" // auto, 0 < allocated < requested
	StatusFilled       StatusCode = "F" // auto, allocated >= requested
	StatusDenied       StatusCode = "D" // manual, requires reason
	StatusUnavailable  StatusCode = "U" // manual
	StatusWithdrawn    StatusCode = "W" // manual
	StatusLimitAllowed StatusCode = "L" // manual, requires reason
)

// IsAuto reports whether the status is derived from allocation totals.
// Auto statuses are recomputed on every allocation change; manual statuses
// are sticky.
func (s StatusCode) IsAuto() bool {
	return s == StatusRequested || s == StatusPartlyFilled || s == StatusFilled
}

// IsManual reports whether the status was chosen by a person.
func (s StatusCode) IsManual() bool {
	return s == StatusDenied || s == StatusUnavailable || s == StatusWithdrawn || s == StatusLimitAllowed
}

// RequiresReason reports whether the status needs a free-text reason.
func (s StatusCode) RequiresReason() bool {
	return s == StatusDenied || s == StatusLimitAllowed
}

// IsValid reports whether s is one of the seven known codes.
func (s StatusCode) IsValid() bool {
	return s.IsAuto() || s.IsManual()
}

// Label returns the human-readable status name.
func (s StatusCode) Label() string {
	switch s {
	case StatusRequested:
		return "Requested"
	case StatusPartlyFilled:
		return "Partly Filled"
	case StatusFilled:
		return "Filled"
	case StatusDenied:
		return "Denied"
	case StatusUnavailable:
		return "Unavailable"
	case StatusWithdrawn:
		return "Withdrawn"
	case StatusLimitAllowed:
		return "Limit Allowed"
	default:
		return string(s)
	}
}

// Item is one requested line in a relief package. RequestedQty is fixed for
// the life of the preparation session.
type Item struct {
	ItemID       string
	Name         string
	SKU          string
	RequiredUOM  string
	RequestedQty decimal.Decimal
	Status       StatusCode
	StatusReason string
}

// Batch is a read-only snapshot of one lot from the inventory query service.
// Allocated quantity is overlaid by the Store, never held on the batch.
type Batch struct {
	BatchID       string
	BatchNo       string
	ItemID        string
	WarehouseID   string
	WarehouseName string
	BatchDate     time.Time
	ExpiryDate    *time.Time // nil means the lot never expires
	AvailableQty  decimal.Decimal
	PriorityGroup int
	SizeSpec      string
	UOMCode       string
}

// Expired reports whether the batch's expiry date is in the past.
// An expired batch accepts zero allocation.
func (b Batch) Expired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

// StockCell holds the ledger quantities for one (item, warehouse) pair.
// Known is false until a refresh has succeeded; an unknown cell is excluded
// from validation rather than treated as zero or infinite stock.
type StockCell struct {
	ItemID      string
	WarehouseID string
	UsableQty   decimal.Decimal
	ReservedQty decimal.Decimal
	Known       bool
}

// AvailableQty returns max(0, usable - reserved).
func (c StockCell) AvailableQty() decimal.Decimal {
	avail := c.UsableQty.Sub(c.ReservedQty)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// clampQty bounds qty to [0, limit].
func clampQty(qty, limit decimal.Decimal) decimal.Decimal {
	if qty.IsNegative() {
		return decimal.Zero
	}
	if qty.GreaterThan(limit) {
		return limit
	}
	return qty
}
