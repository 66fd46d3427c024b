package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/pkg/database"
)

// StockReservation holds quantity back for a relief request at a warehouse
// while its package is still a draft.
type StockReservation struct {
	ID              string          `db:"id" json:"id"`
	ReliefRequestID string          `db:"relief_request_id" json:"relief_request_id"`
	ItemID          string          `db:"item_id" json:"item_id"`
	WarehouseID     string          `db:"warehouse_id" json:"warehouse_id"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// ReservationRepository handles stock reservation persistence
type ReservationRepository struct {
	db *database.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// GetQuantity returns the reserved quantity for a request/item/warehouse,
// zero when no row exists.
func (r *ReservationRepository) GetQuantity(ctx context.Context, reliefRequestID, itemID, warehouseID string) (decimal.Decimal, error) {
	var qty decimal.Decimal
	query := `
		SELECT quantity FROM stock_reservations
		WHERE relief_request_id = $1 AND item_id = $2 AND warehouse_id = $3
	`
	if err := r.db.GetContext(ctx, &qty, query, reliefRequestID, itemID, warehouseID); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return qty, nil
}

// SetQuantity upserts the reserved quantity. A non-positive quantity
// removes the row instead of storing a zero reservation.
func (r *ReservationRepository) SetQuantity(ctx context.Context, reliefRequestID, itemID, warehouseID string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		query := `
			DELETE FROM stock_reservations
			WHERE relief_request_id = $1 AND item_id = $2 AND warehouse_id = $3
		`
		if _, err := r.db.ExecContext(ctx, query, reliefRequestID, itemID, warehouseID); err != nil {
			return mapDBError(err)
		}
		return nil
	}

	query := `
		INSERT INTO stock_reservations (id, relief_request_id, item_id, warehouse_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT stock_reservations_unique
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query,
		uuid.New().String(), reliefRequestID, itemID, warehouseID, qty,
	); err != nil {
		return mapDBError(err)
	}
	return nil
}

// ListByRequest lists all reservations held for a relief request.
func (r *ReservationRepository) ListByRequest(ctx context.Context, reliefRequestID string) ([]StockReservation, error) {
	var reservations []StockReservation
	query := `
		SELECT * FROM stock_reservations
		WHERE relief_request_id = $1
		ORDER BY item_id, warehouse_id
	`
	if err := r.db.SelectContext(ctx, &reservations, query, reliefRequestID); err != nil {
		return nil, err
	}
	return reservations, nil
}

// ReleaseAll drops every reservation for a relief request. Used on cancel
// and when an expired lock is cleaned up.
func (r *ReservationRepository) ReleaseAll(ctx context.Context, reliefRequestID string) error {
	query := `DELETE FROM stock_reservations WHERE relief_request_id = $1`
	if _, err := r.db.ExecContext(ctx, query, reliefRequestID); err != nil {
		return mapDBError(err)
	}
	return nil
}
