// Package service orchestrates relief package preparation: drawer batch
// listings, form submission processing, reservations, fulfillment locks
// and the dashboard summary.
package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/internal/packaging/batchplan"
	"github.com/drims/drims-backend/internal/packaging/client"
	"github.com/drims/drims-backend/internal/packaging/events"
	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/logger"
)

// InventoryAPI is the slice of the inventory query service the packaging
// service consumes. Satisfied by client.InventoryClient.
type InventoryAPI interface {
	FetchStock(ctx context.Context, itemID, warehouseID string) (usable, reserved decimal.Decimal, err error)
	GetItemConfig(ctx context.Context, itemID string) (*client.ItemConfig, error)
	GetBatches(ctx context.Context, itemID, requiredUOM string) ([]batchplan.BatchStock, error)
	GetBatch(ctx context.Context, itemID, batchID string) (*batchplan.BatchStock, error)
}

// PackagingService handles package preparation business logic
type PackagingService struct {
	packages     *repository.PackageRepository
	allocations  *repository.AllocationRepository
	reservations *repository.ReservationRepository
	locks        *repository.LockRepository
	inventory    InventoryAPI
	publisher    *events.PackagingEventPublisher
	cfg          config.PackagingConfig
	logger       *logger.Logger
}

// NewPackagingService creates a new packaging service
func NewPackagingService(
	packages *repository.PackageRepository,
	allocations *repository.AllocationRepository,
	reservations *repository.ReservationRepository,
	locks *repository.LockRepository,
	inventory InventoryAPI,
	publisher *events.PackagingEventPublisher,
	cfg config.PackagingConfig,
	log *logger.Logger,
) *PackagingService {
	return &PackagingService{
		packages:     packages,
		allocations:  allocations,
		reservations: reservations,
		locks:        locks,
		inventory:    inventory,
		publisher:    publisher,
		cfg:          cfg,
		logger:       log,
	}
}

// StockCellView is the response shape for the stock cell endpoint.
type StockCellView struct {
	ItemID       string          `json:"item_id"`
	WarehouseID  string          `json:"warehouse_id"`
	UsableQty    decimal.Decimal `json:"usable_qty"`
	ReservedQty  decimal.Decimal `json:"reserved_qty"`
	AvailableQty decimal.Decimal `json:"available_qty"`
}

// GetStockCell fetches live usable and reserved quantities for an item at
// a warehouse and derives the available figure.
func (s *PackagingService) GetStockCell(ctx context.Context, itemID, warehouseID string) (*StockCellView, error) {
	usable, reserved, err := s.inventory.FetchStock(ctx, itemID, warehouseID)
	if err != nil {
		return nil, err
	}

	available := usable.Sub(reserved)
	if available.IsNegative() {
		available = decimal.Zero
	}

	return &StockCellView{
		ItemID:       itemID,
		WarehouseID:  warehouseID,
		UsableQty:    usable,
		ReservedQty:  reserved,
		AvailableQty: available,
	}, nil
}

// NewItemLine is one requested line when registering a package.
type NewItemLine struct {
	ItemID       string          `json:"item_id" validate:"required"`
	RequestedQty decimal.Decimal `json:"requested_qty" validate:"required"`
}

// CreatePackage registers a draft package for a relief request with its
// requested item lines.
func (s *PackagingService) CreatePackage(ctx context.Context, reliefRequestID, createdBy string, lines []NewItemLine) (*repository.Package, error) {
	pkg := &repository.Package{
		ReliefRequestID: reliefRequestID,
		CreatedBy:       createdBy,
	}

	items := make([]repository.PackageItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, repository.PackageItem{
			ItemID:       line.ItemID,
			RequestedQty: line.RequestedQty,
		})
	}

	if err := s.packages.Create(ctx, pkg, items); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("relief_request_id", reliefRequestID).
		Int("item_count", len(items)).
		Msg("package registered")

	return pkg, nil
}
