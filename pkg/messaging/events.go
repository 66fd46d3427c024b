package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	// Packaging events
	EventPackageDraftSaved   = "packaging.package.draft_saved"
	EventPackageSubmitted    = "packaging.package.submitted"
	EventPackageDispatched   = "packaging.package.dispatched"
	EventPackageCancelled    = "packaging.package.cancelled"
	EventPackageLockAcquired = "packaging.lock.acquired"
	EventPackageLockReleased = "packaging.lock.released"

	// Reservation events
	EventReservationCreated  = "packaging.reservation.created"
	EventReservationReleased = "packaging.reservation.released"
	EventReservationCommitted = "packaging.reservation.committed"

	// Inventory events (consumed from the inventory service)
	EventStockAdjusted = "inventory.stock.adjusted"
	EventBatchExpiring = "inventory.batch.expiring"
)

// Exchange names
const (
	ExchangePackagingEvents = "packaging.events"
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Packaging Events

// AllocationLine describes one batch allocation carried by package events.
type AllocationLine struct {
	ItemID      string          `json:"item_id"`
	WarehouseID string          `json:"warehouse_id"`
	BatchID     string          `json:"batch_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// PackageDraftSavedEvent is published when a fulfiller saves a draft preparation
type PackageDraftSavedEvent struct {
	ReliefRequestID string           `json:"relief_request_id"`
	SavedBy         string           `json:"saved_by"`
	Allocations     []AllocationLine `json:"allocations"`
}

// PackageSubmittedEvent is published when a preparation is submitted for approval
type PackageSubmittedEvent struct {
	ReliefRequestID string           `json:"relief_request_id"`
	SubmittedBy     string           `json:"submitted_by"`
	Allocations     []AllocationLine `json:"allocations"`
	ItemStatuses    map[string]string `json:"item_statuses"`
}

// PackageDispatchedEvent is published when an approved package is sent for dispatch
type PackageDispatchedEvent struct {
	ReliefRequestID string           `json:"relief_request_id"`
	DispatchedBy    string           `json:"dispatched_by"`
	Allocations     []AllocationLine `json:"allocations"`
}

// PackageCancelledEvent is published when a preparation is cancelled
type PackageCancelledEvent struct {
	ReliefRequestID string `json:"relief_request_id"`
	CancelledBy     string `json:"cancelled_by"`
}

// PackageLockAcquiredEvent is published when a fulfiller takes the preparation lock
type PackageLockAcquiredEvent struct {
	ReliefRequestID string    `json:"relief_request_id"`
	LockedBy        string    `json:"locked_by"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// PackageLockReleasedEvent is published when a preparation lock is released
type PackageLockReleasedEvent struct {
	ReliefRequestID string `json:"relief_request_id"`
	ReleasedBy      string `json:"released_by"`
}

// Reservation Events

// ReservationCreatedEvent is published when stock is reserved for a request
type ReservationCreatedEvent struct {
	ReliefRequestID string          `json:"relief_request_id"`
	ItemID          string          `json:"item_id"`
	WarehouseID     string          `json:"warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
}

// ReservationReleasedEvent is published when a reservation is released
type ReservationReleasedEvent struct {
	ReliefRequestID string          `json:"relief_request_id"`
	ItemID          string          `json:"item_id"`
	WarehouseID     string          `json:"warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
}

// ReservationCommittedEvent is published when a reservation is converted to a
// stock deduction at dispatch
type ReservationCommittedEvent struct {
	ReliefRequestID string          `json:"relief_request_id"`
	ItemID          string          `json:"item_id"`
	WarehouseID     string          `json:"warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
}

// Inventory Events

// StockAdjustedEvent is consumed when the inventory service adjusts stock
type StockAdjustedEvent struct {
	ItemID      string          `json:"item_id"`
	WarehouseID string          `json:"warehouse_id"`
	BatchID     string          `json:"batch_id"`
	Adjustment  decimal.Decimal `json:"adjustment"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	PerformedBy string          `json:"performed_by"`
	Reason      string          `json:"reason"`
}

// BatchExpiringEvent is consumed when a batch is nearing expiry
type BatchExpiringEvent struct {
	ItemID     string    `json:"item_id"`
	BatchID    string    `json:"batch_id"`
	ItemName   string    `json:"item_name"`
	BatchNo    string    `json:"batch_no"`
	ExpiryDate time.Time `json:"expiry_date"`
	DaysUntil  int       `json:"days_until"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
