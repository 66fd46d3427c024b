package consumers

import (
	"context"

	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
)

// InventoryEventConsumer consumes inventory events
type InventoryEventConsumer struct {
	consumer       *messaging.Consumer
	allocationRepo *repository.AllocationRepository
	logger         *logger.Logger
}

// NewInventoryEventConsumer creates a new inventory event consumer
func NewInventoryEventConsumer(rmq *messaging.RabbitMQ, allocationRepo *repository.AllocationRepository, log *logger.Logger) (*InventoryEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "packaging-service.inventory-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeInventoryEvents, "inventory.#"); err != nil {
		return nil, err
	}

	c := &InventoryEventConsumer{
		consumer:       consumer,
		allocationRepo: allocationRepo,
		logger:         log,
	}

	consumer.RegisterHandler(messaging.EventStockAdjusted, c.handleStockAdjusted)
	consumer.RegisterHandler(messaging.EventBatchExpiring, c.handleBatchExpiring)

	return c, nil
}

// Start starts consuming messages
func (c *InventoryEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *InventoryEventConsumer) handleStockAdjusted(ctx context.Context, event *messaging.Event) error {
	var data messaging.StockAdjustedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("item_id", data.ItemID).
		Str("batch_id", data.BatchID).
		Str("new_quantity", data.NewQuantity.String()).
		Msg("received stock adjusted event")

	// Only downward adjustments can invalidate draft allocations.
	if !data.Adjustment.IsNegative() {
		return nil
	}

	trimmed, err := c.allocationRepo.TrimDraftAllocations(ctx, data.BatchID, data.NewQuantity)
	if err != nil {
		return err
	}
	if trimmed > 0 {
		c.logger.Warn().
			Str("batch_id", data.BatchID).
			Int64("allocations_trimmed", trimmed).
			Msg("draft allocations capped after stock adjustment")
	}
	return nil
}

func (c *InventoryEventConsumer) handleBatchExpiring(ctx context.Context, event *messaging.Event) error {
	var data messaging.BatchExpiringEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Warn().
		Str("item_id", data.ItemID).
		Str("batch_no", data.BatchNo).
		Int("days_until", data.DaysUntil).
		Msg("allocatable batch nearing expiry")

	return nil
}
