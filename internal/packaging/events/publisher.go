// Package events publishes packaging lifecycle events to the topic exchange.
package events

import (
	"context"

	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
)

// PackagingEventPublisher publishes packaging-related events
type PackagingEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPackagingEventPublisher creates a new packaging event publisher
func NewPackagingEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PackagingEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePackagingEvents, "packaging-service", log)
	if err != nil {
		return nil, err
	}

	return &PackagingEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

func allocationLines(allocations []repository.BatchAllocation) []messaging.AllocationLine {
	lines := make([]messaging.AllocationLine, 0, len(allocations))
	for _, a := range allocations {
		lines = append(lines, messaging.AllocationLine{
			ItemID:      a.ItemID,
			WarehouseID: a.WarehouseID,
			BatchID:     a.BatchID,
			Quantity:    a.Quantity,
		})
	}
	return lines
}

// PublishDraftSaved publishes a draft saved event
func (p *PackagingEventPublisher) PublishDraftSaved(ctx context.Context, reliefRequestID, savedBy string, allocations []repository.BatchAllocation) {
	if p == nil {
		return
	}

	data := messaging.PackageDraftSavedEvent{
		ReliefRequestID: reliefRequestID,
		SavedBy:         savedBy,
		Allocations:     allocationLines(allocations),
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageDraftSaved, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", reliefRequestID).Msg("failed to publish draft saved event")
	}
}

// PublishSubmitted publishes a submitted for approval event
func (p *PackagingEventPublisher) PublishSubmitted(ctx context.Context, reliefRequestID, submittedBy string, allocations []repository.BatchAllocation, itemStatuses map[string]string) {
	if p == nil {
		return
	}

	data := messaging.PackageSubmittedEvent{
		ReliefRequestID: reliefRequestID,
		SubmittedBy:     submittedBy,
		Allocations:     allocationLines(allocations),
		ItemStatuses:    itemStatuses,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageSubmitted, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", reliefRequestID).Msg("failed to publish submitted event")
	}
}

// PublishDispatched publishes a dispatched event
func (p *PackagingEventPublisher) PublishDispatched(ctx context.Context, reliefRequestID, dispatchedBy string, allocations []repository.BatchAllocation) {
	if p == nil {
		return
	}

	data := messaging.PackageDispatchedEvent{
		ReliefRequestID: reliefRequestID,
		DispatchedBy:    dispatchedBy,
		Allocations:     allocationLines(allocations),
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageDispatched, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", reliefRequestID).Msg("failed to publish dispatched event")
	}
}

// PublishCancelled publishes a cancelled event
func (p *PackagingEventPublisher) PublishCancelled(ctx context.Context, reliefRequestID, cancelledBy string) {
	if p == nil {
		return
	}

	data := messaging.PackageCancelledEvent{
		ReliefRequestID: reliefRequestID,
		CancelledBy:     cancelledBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", reliefRequestID).Msg("failed to publish cancelled event")
	}
}

// PublishLockAcquired publishes a lock acquired event
func (p *PackagingEventPublisher) PublishLockAcquired(ctx context.Context, lock *repository.FulfillmentLock) {
	if p == nil {
		return
	}

	data := messaging.PackageLockAcquiredEvent{
		ReliefRequestID: lock.ReliefRequestID,
		LockedBy:        lock.LockedBy,
		ExpiresAt:       lock.ExpiresAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageLockAcquired, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", lock.ReliefRequestID).Msg("failed to publish lock acquired event")
	}
}

// PublishLockReleased publishes a lock released event
func (p *PackagingEventPublisher) PublishLockReleased(ctx context.Context, reliefRequestID, releasedBy string) {
	if p == nil {
		return
	}

	data := messaging.PackageLockReleasedEvent{
		ReliefRequestID: reliefRequestID,
		ReleasedBy:      releasedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventPackageLockReleased, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", reliefRequestID).Msg("failed to publish lock released event")
	}
}

// PublishReservationCommitted publishes one committed reservation at dispatch time
func (p *PackagingEventPublisher) PublishReservationCommitted(ctx context.Context, res repository.StockReservation) {
	if p == nil {
		return
	}

	data := messaging.ReservationCommittedEvent{
		ReliefRequestID: res.ReliefRequestID,
		ItemID:          res.ItemID,
		WarehouseID:     res.WarehouseID,
		Quantity:        res.Quantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventReservationCommitted, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", res.ReliefRequestID).Msg("failed to publish reservation committed event")
	}
}

// PublishReservationReleased publishes a released reservation
func (p *PackagingEventPublisher) PublishReservationReleased(ctx context.Context, res repository.StockReservation) {
	if p == nil {
		return
	}

	data := messaging.ReservationReleasedEvent{
		ReliefRequestID: res.ReliefRequestID,
		ItemID:          res.ItemID,
		WarehouseID:     res.WarehouseID,
		Quantity:        res.Quantity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventReservationReleased, data); err != nil {
		p.logger.Error().Err(err).Str("relief_request_id", res.ReliefRequestID).Msg("failed to publish reservation released event")
	}
}
