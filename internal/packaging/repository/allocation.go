package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/pkg/database"
)

// BatchAllocation is one persisted draw from a batch for a package item.
type BatchAllocation struct {
	ID          string          `db:"id" json:"id"`
	PackageID   string          `db:"package_id" json:"package_id"`
	ItemID      string          `db:"item_id" json:"item_id"`
	WarehouseID string          `db:"warehouse_id" json:"warehouse_id"`
	BatchID     string          `db:"batch_id" json:"batch_id"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
}

// AllocationRepository handles batch allocation persistence
type AllocationRepository struct {
	db *database.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *database.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// ReplaceForItem swaps the full allocation set for one package item.
// Delete plus insert in one transaction, so readers never observe a
// partially applied edit.
func (r *AllocationRepository) ReplaceForItem(ctx context.Context, packageID, itemID string, allocations []BatchAllocation) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		deleteQuery := `DELETE FROM batch_allocations WHERE package_id = $1 AND item_id = $2`
		if _, err := tx.ExecContext(ctx, deleteQuery, packageID, itemID); err != nil {
			return mapDBError(err)
		}

		insertQuery := `
			INSERT INTO batch_allocations (id, package_id, item_id, warehouse_id, batch_id, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for i := range allocations {
			if !allocations[i].Quantity.IsPositive() {
				continue
			}
			if allocations[i].ID == "" {
				allocations[i].ID = uuid.New().String()
			}
			if _, err := tx.ExecContext(ctx, insertQuery,
				allocations[i].ID, packageID, itemID,
				allocations[i].WarehouseID, allocations[i].BatchID, allocations[i].Quantity,
			); err != nil {
				return mapDBError(err)
			}
		}
		return nil
	})
}

// ListByPackage lists all allocations for a package ordered by item and batch.
func (r *AllocationRepository) ListByPackage(ctx context.Context, packageID string) ([]BatchAllocation, error) {
	var allocations []BatchAllocation
	query := `
		SELECT * FROM batch_allocations
		WHERE package_id = $1
		ORDER BY item_id, batch_id
	`
	if err := r.db.SelectContext(ctx, &allocations, query, packageID); err != nil {
		return nil, err
	}
	return allocations, nil
}

// ListByItem lists allocations for one package item.
func (r *AllocationRepository) ListByItem(ctx context.Context, packageID, itemID string) ([]BatchAllocation, error) {
	var allocations []BatchAllocation
	query := `
		SELECT * FROM batch_allocations
		WHERE package_id = $1 AND item_id = $2
		ORDER BY batch_id
	`
	if err := r.db.SelectContext(ctx, &allocations, query, packageID, itemID); err != nil {
		return nil, err
	}
	return allocations, nil
}

// TrimDraftAllocations caps draft allocations of a batch at the given
// quantity. Submitted and dispatched packages are left alone; those went
// through validation against live stock already.
func (r *AllocationRepository) TrimDraftAllocations(ctx context.Context, batchID string, limit decimal.Decimal) (int64, error) {
	if limit.IsNegative() {
		limit = decimal.Zero
	}
	query := `
		UPDATE batch_allocations ba
		SET quantity = $2
		FROM packages p
		WHERE ba.package_id = p.id
		  AND p.status = $3
		  AND ba.batch_id = $1
		  AND ba.quantity > $2
	`
	result, err := r.db.ExecContext(ctx, query, batchID, limit, PackageStatusDraft)
	if err != nil {
		return 0, mapDBError(err)
	}
	return result.RowsAffected()
}

// DeleteByPackage removes every allocation of a package. Used on cancel.
func (r *AllocationRepository) DeleteByPackage(ctx context.Context, packageID string) error {
	query := `DELETE FROM batch_allocations WHERE package_id = $1`
	if _, err := r.db.ExecContext(ctx, query, packageID); err != nil {
		return mapDBError(err)
	}
	return nil
}
