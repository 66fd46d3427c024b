package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drims/drims-backend/internal/packaging/allocation"
	"github.com/drims/drims-backend/internal/packaging/batchplan"
	"github.com/drims/drims-backend/internal/packaging/client"
	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/internal/packaging/service"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/testutil"
)

type stubInventory struct {
	cfg     *client.ItemConfig
	batches []batchplan.BatchStock
	usable  decimal.Decimal
	held    decimal.Decimal
	err     error
}

func (f *stubInventory) FetchStock(ctx context.Context, itemID, warehouseID string) (decimal.Decimal, decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, decimal.Zero, f.err
	}
	return f.usable, f.held, nil
}

func (f *stubInventory) GetItemConfig(ctx context.Context, itemID string) (*client.ItemConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

func (f *stubInventory) GetBatches(ctx context.Context, itemID, requiredUOM string) ([]batchplan.BatchStock, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batches, nil
}

func (f *stubInventory) GetBatch(ctx context.Context, itemID, batchID string) (*batchplan.BatchStock, error) {
	for _, b := range f.batches {
		if b.BatchID == batchID {
			return &b, nil
		}
	}
	return nil, errors.NotFound("batch")
}

func newTestRouter(t *testing.T, inv service.InventoryAPI) (http.Handler, *testutil.MockDB) {
	t.Helper()
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("packaging-service-test", "development")
	db := database.NewFromSqlx(mockDB.DB, log)
	cfg := config.PackagingConfig{LockExpiry: 24 * time.Hour, ExpiryWarningDays: 30}

	svc := service.NewPackagingService(
		repository.NewPackageRepository(db),
		repository.NewAllocationRepository(db),
		repository.NewReservationRepository(db),
		repository.NewLockRepository(db),
		inv, nil, cfg, log,
	)

	h := NewPackagingHandler(svc, log)
	r := chi.NewRouter()
	r.Use(httputil.Actor)
	r.Route("/api/v1/packaging", h.Routes)
	return r, mockDB
}

func testDate(s string) *time.Time {
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &parsed
}

func TestGetStockCell(t *testing.T) {
	inv := &stubInventory{usable: decimal.NewFromInt(80), held: decimal.NewFromInt(10)}
	router, _ := newTestRouter(t, inv)

	req := testutil.NewHTTPRequest("GET", "/api/v1/packaging/inventory/item-1/wh-1", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"available_qty":"70"`)
}

func TestGetStockCell_Upstream(t *testing.T) {
	inv := &stubInventory{err: errors.Upstream("inventory service unreachable")}
	router, _ := newTestRouter(t, inv)

	req := testutil.NewHTTPRequest("GET", "/api/v1/packaging/inventory/item-1/wh-1", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadGateway)
	testutil.AssertBodyContains(t, rr, "UPSTREAM_UNAVAILABLE")
}

func TestListBatches(t *testing.T) {
	inv := &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FIFO", IsBatched: true, DefaultUOM: "BAG"},
		batches: []batchplan.BatchStock{
			{
				BatchID:     "batch-1",
				BatchNo:     "BN-001",
				ItemID:      "item-1",
				WarehouseID: "wh-1",
				BatchDate:   testDate("2026-01-10"),
				UsableQty:   decimal.NewFromInt(60),
				UOMCode:     "BAG",
				Active:      true,
			},
		},
	}
	router, _ := newTestRouter(t, inv)

	req := testutil.NewHTTPRequest("GET", "/api/v1/packaging/items/item-1/batches?remaining_qty=40&allocated_batch_ids=batch-1", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, `"issuance_order":"FIFO"`)
	testutil.AssertBodyContains(t, rr, `"can_fulfill":true`)
	testutil.AssertBodyContains(t, rr, `"batch_no":"BN-001"`)
}

func TestListBatches_BadRemainingQty(t *testing.T) {
	router, _ := newTestRouter(t, &stubInventory{})

	req := testutil.NewHTTPRequest("GET", "/api/v1/packaging/items/item-1/batches?remaining_qty=abc", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "remaining_qty must be a number")
}

func TestCreatePackage_RequiresItems(t *testing.T) {
	router, _ := newTestRouter(t, &stubInventory{})

	req := testutil.NewHTTPRequest("POST", "/api/v1/packaging/requests/rr-1", map[string]interface{}{})
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
}

func TestPrepare_UnknownAction(t *testing.T) {
	router, _ := newTestRouter(t, &stubInventory{})

	form := url.Values{}
	form.Set("action", "publish")
	rr := testutil.ExecuteRequest(router, newFormRequest("/api/v1/packaging/requests/rr-1/prepare", form))

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "unknown action")
}

func TestPrepare_ValidationFailureAggregates(t *testing.T) {
	inv := &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FIFO", IsBatched: true},
		batches: []batchplan.BatchStock{
			{
				BatchID:     "batch-1",
				ItemID:      "item-1",
				WarehouseID: "wh-1",
				BatchDate:   testDate("2026-01-10"),
				UsableQty:   decimal.NewFromInt(40),
				Active:      true,
			},
		},
	}
	router, mockDB := newTestRouter(t, inv)

	now := time.Now()
	mockDB.ExpectQuery("INSERT INTO fulfillment_locks").
		WillReturnRows(testutil.MockRows("relief_request_id", "locked_by", "locked_at", "expires_at").
			AddRow("rr-1", "user-1", now, now.Add(24*time.Hour)))
	mockDB.ExpectQuery("SELECT * FROM packages WHERE relief_request_id = $1").
		WithArgs("rr-1").
		WillReturnRows(testutil.MockRows("id", "relief_request_id", "status", "created_by", "created_at", "updated_at").
			AddRow("pkg-1", "rr-1", "draft", "user-1", now, now))
	mockDB.ExpectQuery("SELECT * FROM package_items WHERE package_id = $1 ORDER BY item_id").
		WithArgs("pkg-1").
		WillReturnRows(testutil.MockRows("id", "package_id", "item_id", "requested_qty", "status", "status_reason").
			AddRow("line-1", "pkg-1", "item-1", "50", "R", nil))

	form := url.Values{}
	form.Set("action", service.ActionSubmitForApproval)
	form.Set(allocation.BatchAllocationKey("item-1", "batch-1"), "60")

	rr := testutil.ExecuteRequest(router, newFormRequest("/api/v1/packaging/requests/rr-1/prepare", form))

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "VALIDATION_ERROR")
	testutil.AssertBodyContains(t, rr, "batch_batch-1")
}

func TestSummary_NotFound(t *testing.T) {
	router, mockDB := newTestRouter(t, &stubInventory{})

	mockDB.ExpectQuery("SELECT * FROM packages WHERE relief_request_id = $1").
		WithArgs("rr-missing").
		WillReturnRows(testutil.MockRows("id"))

	req := testutil.NewHTTPRequest("GET", "/api/v1/packaging/requests/rr-missing/summary", nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func newFormRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return testutil.WithUserHeaders(req, "user-1")
}

func TestRoutesAreMounted(t *testing.T) {
	router, _ := newTestRouter(t, &stubInventory{usable: decimal.NewFromInt(1), held: decimal.Zero})

	req := testutil.NewHTTPRequest("GET", "/api/v1/packaging/inventory/a/b", nil)
	rr := testutil.ExecuteRequest(router, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = testutil.NewHTTPRequest("DELETE", "/api/v1/packaging/inventory/a/b", nil)
	rr = testutil.ExecuteRequest(router, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
