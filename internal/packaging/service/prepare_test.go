package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drims/drims-backend/internal/packaging/allocation"
	"github.com/drims/drims-backend/internal/packaging/batchplan"
	"github.com/drims/drims-backend/internal/packaging/client"
	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/testutil"
)

func newPrepareService(t *testing.T, inv InventoryAPI) (*PackagingService, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("packaging-service-test", "development")
	db := database.NewFromSqlx(mockDB.DB, log)
	cfg := config.PackagingConfig{LockExpiry: 24 * time.Hour, ExpiryWarningDays: 30}

	svc := NewPackagingService(
		repository.NewPackageRepository(db),
		repository.NewAllocationRepository(db),
		repository.NewReservationRepository(db),
		repository.NewLockRepository(db),
		inv, nil, cfg, log,
	)
	return svc, mockDB
}

func expectLockAcquired(mockDB *testutil.MockDB, reliefRequestID, userID string) {
	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO fulfillment_locks").
		WithArgs(reliefRequestID, userID, testutil.AnyTime{}).
		WillReturnRows(testutil.MockRows("relief_request_id", "locked_by", "locked_at", "expires_at").
			AddRow(reliefRequestID, userID, now, now.Add(24*time.Hour)))
}

func expectPackageWithItem(mockDB *testutil.MockDB, status string) {
	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM packages WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "status", "created_by", "created_at", "updated_at").
			AddRow("pkg-1", "rr-1", status, "user-1", now, now))
	mockDB.ExpectQuery("SELECT * FROM package_items WHERE package_id = $1 ORDER BY item_id").
		WithArgs("pkg-1").
		WillReturnRows(testutil.MockRows("id", "package_id", "item_id", "requested_qty", "status", "status_reason").
			AddRow("line-1", "pkg-1", "item-1", "50", "R", nil))
}

func prepareInventory() *stubInventory {
	return &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FIFO", IsBatched: true, DefaultUOM: "BAG"},
		batches: []batchplan.BatchStock{
			stockLot("batch-1", "wh-1", date("2026-01-01"), nil, 40),
		},
	}
}

func TestPrepareRequest_SaveDraft(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	expectLockAcquired(mockDB, "rr-1", "user-1")
	expectPackageWithItem(mockDB, repository.PackageStatusDraft)

	// Persist allocations and the derived status.
	mockDB.ExpectBegin()
	mockDB.ExpectExec("DELETE FROM batch_allocations WHERE package_id = $1 AND item_id = $2").
		WithArgs("pkg-1", "item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec("INSERT INTO batch_allocations").
		WithArgs(testutil.AnyUUID{}, "pkg-1", "item-1", "wh-1", "batch-1", decimal.NewFromInt(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()
	mockDB.ExpectExec("UPDATE package_items SET status = $3, status_reason = $4").
		WithArgs("pkg-1", "item-1", "P", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Reservation moves to the new allocation total.
	mockDB.ExpectQuery("SELECT * FROM stock_reservations").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "item_id", "warehouse_id", "quantity", "created_at", "updated_at"))
	mockDB.ExpectQuery("SELECT quantity FROM stock_reservations").
		WithArgs("rr-1", "item-1", "wh-1").
		WillReturnRows(testutil.MockRows("quantity"))
	mockDB.ExpectExec("INSERT INTO stock_reservations").
		WithArgs(testutil.AnyUUID{}, "rr-1", "item-1", "wh-1", decimal.NewFromInt(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Event payload assembly.
	mockDB.ExpectQuery("SELECT * FROM batch_allocations").
		WithArgs("pkg-1").
		WillReturnRows(testutil.MockRows("id", "package_id", "item_id", "warehouse_id", "batch_id", "quantity").
			AddRow("alloc-1", "pkg-1", "item-1", "wh-1", "batch-1", "30"))

	form := url.Values{}
	form.Set(allocation.BatchAllocationKey("item-1", "batch-1"), "30")

	result, err := svc.PrepareRequest(context.Background(), "rr-1", "user-1", ActionSaveDraft, form)

	require.NoError(t, err)
	assert.Equal(t, repository.PackageStatusDraft, result.PackageStatus)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "P", result.Items[0].Status)
	assert.True(t, result.Items[0].AllocatedQty.Equal(decimal.NewFromInt(30)))
	mockDB.ExpectationsWereMet(t)
}

func TestPrepareRequest_SubmitRejectsOverAllocation(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	expectLockAcquired(mockDB, "rr-1", "user-1")
	expectPackageWithItem(mockDB, repository.PackageStatusDraft)

	form := url.Values{}
	form.Set(allocation.BatchAllocationKey("item-1", "batch-1"), "60")

	_, err := svc.PrepareRequest(context.Background(), "rr-1", "user-1", ActionSubmitForApproval, form)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details["batch_batch-1"], "exceeds available stock")
}

func TestPrepareRequest_DispatchRequiresFullAllocation(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	expectLockAcquired(mockDB, "rr-1", "user-1")
	expectPackageWithItem(mockDB, repository.PackageStatusSubmitted)

	form := url.Values{}
	form.Set(allocation.BatchAllocationKey("item-1", "batch-1"), "30")

	_, err := svc.PrepareRequest(context.Background(), "rr-1", "user-1", ActionApproveAndDispatch, form)

	require.Error(t, err)
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details["item_item-1_dispatch"], "not fully allocated")
}

func TestPrepareRequest_ManualStatusAllowsPartialDispatch(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	expectLockAcquired(mockDB, "rr-1", "user-1")
	expectPackageWithItem(mockDB, repository.PackageStatusSubmitted)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("DELETE FROM batch_allocations WHERE package_id = $1 AND item_id = $2").
		WithArgs("pkg-1", "item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec("INSERT INTO batch_allocations").
		WithArgs(testutil.AnyUUID{}, "pkg-1", "item-1", "wh-1", "batch-1", decimal.NewFromInt(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()
	// Limit Allowed was sent without a reason; a default one is written.
	mockDB.ExpectExec("UPDATE package_items SET status = $3, status_reason = $4").
		WithArgs("pkg-1", "item-1", "L", "approved below the requested quantity").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mockDB.ExpectQuery("SELECT * FROM stock_reservations").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "item_id", "warehouse_id", "quantity", "created_at", "updated_at"))
	mockDB.ExpectQuery("SELECT quantity FROM stock_reservations").
		WithArgs("rr-1", "item-1", "wh-1").
		WillReturnRows(testutil.MockRows("quantity"))
	mockDB.ExpectExec("INSERT INTO stock_reservations").
		WithArgs(testutil.AnyUUID{}, "rr-1", "item-1", "wh-1", decimal.NewFromInt(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mockDB.ExpectQuery("SELECT * FROM batch_allocations").
		WithArgs("pkg-1").
		WillReturnRows(testutil.MockRows("id", "package_id", "item_id", "warehouse_id", "batch_id", "quantity").
			AddRow("alloc-1", "pkg-1", "item-1", "wh-1", "batch-1", "30"))

	mockDB.ExpectExec("UPDATE packages SET status = $2, updated_at = NOW() WHERE id = $1").
		WithArgs("pkg-1", repository.PackageStatusDispatched).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Reservations are committed and released, then the lock is dropped.
	mockDB.ExpectQuery("SELECT * FROM stock_reservations").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "item_id", "warehouse_id", "quantity", "created_at", "updated_at").
			AddRow("res-1", "rr-1", "item-1", "wh-1", "30", time.Now(), time.Now()))
	mockDB.ExpectExec("DELETE FROM stock_reservations WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM fulfillment_locks WHERE relief_request_id = $1 AND locked_by = $2").
		WithArgs("rr-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	form := url.Values{}
	form.Set(allocation.BatchAllocationKey("item-1", "batch-1"), "30")
	form.Set(allocation.StatusKey("item-1"), "L")

	result, err := svc.PrepareRequest(context.Background(), "rr-1", "user-1", ActionApproveAndDispatch, form)

	require.NoError(t, err)
	assert.Equal(t, repository.PackageStatusDispatched, result.PackageStatus)
	assert.Equal(t, "L", result.Items[0].Status)
	require.NotNil(t, result.Items[0].StatusReason)
	assert.Equal(t, "approved below the requested quantity", *result.Items[0].StatusReason)
	mockDB.ExpectationsWereMet(t)
}

func TestPrepareRequest_RejectsUnknownAction(t *testing.T) {
	svc, _ := newPrepareService(t, prepareInventory())

	_, err := svc.PrepareRequest(context.Background(), "rr-1", "user-1", "publish", url.Values{})

	assert.True(t, errors.Is(err, errors.ErrBadRequest))
}

func TestPrepareRequest_RejectsDispatchedPackage(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	expectLockAcquired(mockDB, "rr-1", "user-1")
	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM packages WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "status", "created_by", "created_at", "updated_at").
			AddRow("pkg-1", "rr-1", repository.PackageStatusDispatched, "user-1", now, now))

	_, err := svc.PrepareRequest(context.Background(), "rr-1", "user-1", ActionSaveDraft, url.Values{})

	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestCancelRequest(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM packages WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "status", "created_by", "created_at", "updated_at").
			AddRow("pkg-1", "rr-1", repository.PackageStatusDraft, "user-1", now, now))
	mockDB.ExpectExec("DELETE FROM batch_allocations WHERE package_id = $1").
		WithArgs("pkg-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mockDB.ExpectQuery("SELECT * FROM stock_reservations").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "item_id", "warehouse_id", "quantity", "created_at", "updated_at").
			AddRow("res-1", "rr-1", "item-1", "wh-1", "30", now, now))
	mockDB.ExpectExec("DELETE FROM stock_reservations WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE packages SET status = $2, updated_at = NOW() WHERE id = $1").
		WithArgs("pkg-1", repository.PackageStatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("DELETE FROM fulfillment_locks WHERE relief_request_id = $1 AND locked_by = $2").
		WithArgs("rr-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.CancelRequest(context.Background(), "rr-1", "user-1")

	require.NoError(t, err)
	mockDB.ExpectationsWereMet(t)
}

func TestCancelRequest_DispatchedIsFinal(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	now := time.Now()
	mockDB.ExpectQuery("SELECT * FROM packages WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "status", "created_by", "created_at", "updated_at").
			AddRow("pkg-1", "rr-1", repository.PackageStatusDispatched, "user-1", now, now))

	err := svc.CancelRequest(context.Background(), "rr-1", "user-1")

	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestCleanupExpiredLocks(t *testing.T) {
	svc, mockDB := newPrepareService(t, prepareInventory())

	now := time.Now()
	mockDB.ExpectQuery("DELETE FROM fulfillment_locks WHERE expires_at < NOW() RETURNING relief_request_id").
		WillReturnRows(testutil.MockRows("relief_request_id").AddRow("rr-1"))
	mockDB.ExpectQuery("SELECT * FROM stock_reservations").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "item_id", "warehouse_id", "quantity", "created_at", "updated_at").
			AddRow("res-1", "rr-1", "item-1", "wh-1", "20", now, now))
	mockDB.ExpectExec("DELETE FROM stock_reservations WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	released, err := svc.CleanupExpiredLocks(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, released)
	mockDB.ExpectationsWereMet(t)
}
