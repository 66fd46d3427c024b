// Package repository persists relief packages, their batch allocations,
// stock reservations and fulfillment locks.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
)

// mapDBError translates constraint violations into AppErrors and passes
// everything else through unchanged.
func mapDBError(err error) error {
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// Package lifecycle statuses.
const (
	PackageStatusDraft      = "draft"
	PackageStatusSubmitted  = "submitted"
	PackageStatusDispatched = "dispatched"
	PackageStatusCancelled  = "cancelled"
)

// Package represents the fulfillment package for one relief request.
type Package struct {
	ID              string    `db:"id" json:"id"`
	ReliefRequestID string    `db:"relief_request_id" json:"relief_request_id"`
	Status          string    `db:"status" json:"status"`
	CreatedBy       string    `db:"created_by" json:"created_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PackageItem is one requested line inside a package.
type PackageItem struct {
	ID           string          `db:"id" json:"id"`
	PackageID    string          `db:"package_id" json:"package_id"`
	ItemID       string          `db:"item_id" json:"item_id"`
	RequestedQty decimal.Decimal `db:"requested_qty" json:"requested_qty"`
	Status       string          `db:"status" json:"status"`
	StatusReason *string         `db:"status_reason" json:"status_reason,omitempty"`
}

// PackageRepository handles package persistence
type PackageRepository struct {
	db *database.DB
}

// NewPackageRepository creates a new package repository
func NewPackageRepository(db *database.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create creates a package with its item lines in one transaction.
func (r *PackageRepository) Create(ctx context.Context, pkg *Package, items []PackageItem) error {
	if pkg.ID == "" {
		pkg.ID = uuid.New().String()
	}
	if pkg.Status == "" {
		pkg.Status = PackageStatusDraft
	}

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO packages (id, relief_request_id, status, created_by)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		if err := tx.QueryRowxContext(ctx, query,
			pkg.ID, pkg.ReliefRequestID, pkg.Status, pkg.CreatedBy,
		).Scan(&pkg.CreatedAt, &pkg.UpdatedAt); err != nil {
			return mapDBError(err)
		}

		itemQuery := `
			INSERT INTO package_items (id, package_id, item_id, requested_qty, status, status_reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.New().String()
			}
			items[i].PackageID = pkg.ID
			if items[i].Status == "" {
				items[i].Status = "R"
			}
			if _, err := tx.ExecContext(ctx, itemQuery,
				items[i].ID, items[i].PackageID, items[i].ItemID,
				items[i].RequestedQty, items[i].Status, items[i].StatusReason,
			); err != nil {
				return mapDBError(err)
			}
		}
		return nil
	})
}

// GetByReliefRequestID gets the package for a relief request.
func (r *PackageRepository) GetByReliefRequestID(ctx context.Context, reliefRequestID string) (*Package, error) {
	var pkg Package
	query := `SELECT * FROM packages WHERE relief_request_id = $1`
	if err := r.db.GetContext(ctx, &pkg, query, reliefRequestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("package")
		}
		return nil, err
	}
	return &pkg, nil
}

// GetItems lists the item lines of a package ordered by item ID.
func (r *PackageRepository) GetItems(ctx context.Context, packageID string) ([]PackageItem, error) {
	var items []PackageItem
	query := `SELECT * FROM package_items WHERE package_id = $1 ORDER BY item_id`
	if err := r.db.SelectContext(ctx, &items, query, packageID); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus moves the package through its lifecycle.
func (r *PackageRepository) UpdateStatus(ctx context.Context, packageID, status string) error {
	query := `UPDATE packages SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, packageID, status)
	if err != nil {
		return mapDBError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("package")
	}
	return nil
}

// UpdateItemStatus writes the derived or manual item status and its reason.
func (r *PackageRepository) UpdateItemStatus(ctx context.Context, packageID, itemID, status string, reason *string) error {
	query := `
		UPDATE package_items SET status = $3, status_reason = $4
		WHERE package_id = $1 AND item_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, packageID, itemID, status, reason)
	if err != nil {
		return mapDBError(err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("package item")
	}
	return nil
}
