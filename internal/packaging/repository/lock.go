package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
)

// FulfillmentLock lets one fulfiller at a time prepare a relief request.
type FulfillmentLock struct {
	ReliefRequestID string    `db:"relief_request_id" json:"relief_request_id"`
	LockedBy        string    `db:"locked_by" json:"locked_by"`
	LockedAt        time.Time `db:"locked_at" json:"locked_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
}

// LockRepository handles fulfillment lock persistence
type LockRepository struct {
	db *database.DB
}

// NewLockRepository creates a new lock repository
func NewLockRepository(db *database.DB) *LockRepository {
	return &LockRepository{db: db}
}

// Acquire takes the lock for a fulfiller. Re-acquiring one's own live
// lock extends the expiry; a live lock held by someone else fails with
// a Locked error. Expired locks are taken over.
func (r *LockRepository) Acquire(ctx context.Context, reliefRequestID, userID string, ttl time.Duration) (*FulfillmentLock, error) {
	expiresAt := time.Now().Add(ttl)

	query := `
		INSERT INTO fulfillment_locks (relief_request_id, locked_by, locked_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (relief_request_id) DO UPDATE
		SET locked_by = EXCLUDED.locked_by,
		    locked_at = NOW(),
		    expires_at = EXCLUDED.expires_at
		WHERE fulfillment_locks.locked_by = EXCLUDED.locked_by
		   OR fulfillment_locks.expires_at < NOW()
		RETURNING relief_request_id, locked_by, locked_at, expires_at
	`

	var lock FulfillmentLock
	err := r.db.QueryRowxContext(ctx, query, reliefRequestID, userID, expiresAt).StructScan(&lock)
	if err == sql.ErrNoRows {
		holder, getErr := r.Get(ctx, reliefRequestID)
		if getErr == nil {
			return nil, errors.Locked("relief request is being prepared by " + holder.LockedBy)
		}
		return nil, errors.Locked("relief request is being prepared by another fulfiller")
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return &lock, nil
}

// Get returns the current lock row for a relief request.
func (r *LockRepository) Get(ctx context.Context, reliefRequestID string) (*FulfillmentLock, error) {
	var lock FulfillmentLock
	query := `SELECT * FROM fulfillment_locks WHERE relief_request_id = $1`
	if err := r.db.GetContext(ctx, &lock, query, reliefRequestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("fulfillment lock")
		}
		return nil, err
	}
	return &lock, nil
}

// Release drops the lock if held by the given fulfiller.
func (r *LockRepository) Release(ctx context.Context, reliefRequestID, userID string) error {
	query := `DELETE FROM fulfillment_locks WHERE relief_request_id = $1 AND locked_by = $2`
	if _, err := r.db.ExecContext(ctx, query, reliefRequestID, userID); err != nil {
		return mapDBError(err)
	}
	return nil
}

// DeleteExpired removes lapsed locks and returns the relief request IDs
// they covered, so the caller can release their reservations.
func (r *LockRepository) DeleteExpired(ctx context.Context) ([]string, error) {
	var ids []string
	query := `DELETE FROM fulfillment_locks WHERE expires_at < NOW() RETURNING relief_request_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}
