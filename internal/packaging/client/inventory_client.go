// Package client talks to the inventory query service over HTTP. The
// packaging service never reads stock tables directly; every availability
// figure comes through this client.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/internal/packaging/batchplan"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
)

// InventoryClient provides HTTP client for calling the inventory service
// from the packaging service.
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewInventoryClient creates a new inventory service client.
func NewInventoryClient(baseURL string, timeout time.Duration, log *logger.Logger) *InventoryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InventoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// StockLevel is the per-item per-warehouse stock row from the inventory service.
type StockLevel struct {
	ItemID      string          `json:"item_id"`
	WarehouseID string          `json:"warehouse_id"`
	UsableQty   decimal.Decimal `json:"usable_qty"`
	ReservedQty decimal.Decimal `json:"reserved_qty"`
}

// ItemConfig is the item master row the planner needs.
type ItemConfig struct {
	ItemID        string `json:"item_id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	IssuanceOrder string `json:"issuance_order"`
	CanExpire     bool   `json:"can_expire"`
	IsBatched     bool   `json:"is_batched"`
	DefaultUOM    string `json:"default_uom"`
}

// batchRow mirrors the inventory service's batch payload.
type batchRow struct {
	BatchID       string          `json:"batch_id"`
	BatchNo       string          `json:"batch_no"`
	ItemID        string          `json:"item_id"`
	WarehouseID   string          `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	BatchDate     *time.Time      `json:"batch_date"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	UsableQty     decimal.Decimal `json:"usable_qty"`
	ReservedQty   decimal.Decimal `json:"reserved_qty"`
	SizeSpec      string          `json:"size_spec"`
	UOMCode       string          `json:"uom_code"`
	Active        bool            `json:"active"`
}

// FetchStock returns usable and reserved quantities for an item at a
// warehouse. Satisfies the stock ledger's fetcher interface.
func (c *InventoryClient) FetchStock(ctx context.Context, itemID, warehouseID string) (decimal.Decimal, decimal.Decimal, error) {
	path := fmt.Sprintf("%s/api/v1/inventory/%s/%s", c.baseURL, itemID, warehouseID)

	var level StockLevel
	if err := c.getJSON(ctx, path, &level); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return level.UsableQty, level.ReservedQty, nil
}

// GetItemConfig fetches the item master attributes that drive batch planning.
func (c *InventoryClient) GetItemConfig(ctx context.Context, itemID string) (*ItemConfig, error) {
	path := fmt.Sprintf("%s/api/v1/items/%s", c.baseURL, itemID)

	var cfg ItemConfig
	if err := c.getJSON(ctx, path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetBatches lists batch stock rows for an item, optionally restricted to
// a unit of measure.
func (c *InventoryClient) GetBatches(ctx context.Context, itemID, requiredUOM string) ([]batchplan.BatchStock, error) {
	path := fmt.Sprintf("%s/api/v1/items/%s/batches", c.baseURL, itemID)
	if requiredUOM != "" {
		path += "?required_uom=" + url.QueryEscape(requiredUOM)
	}

	var rows []batchRow
	if err := c.getJSON(ctx, path, &rows); err != nil {
		return nil, err
	}

	batches := make([]batchplan.BatchStock, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, batchplan.BatchStock{
			BatchID:       r.BatchID,
			BatchNo:       r.BatchNo,
			ItemID:        r.ItemID,
			WarehouseID:   r.WarehouseID,
			WarehouseName: r.WarehouseName,
			BatchDate:     r.BatchDate,
			ExpiryDate:    r.ExpiryDate,
			UsableQty:     r.UsableQty,
			ReservedQty:   r.ReservedQty,
			SizeSpec:      r.SizeSpec,
			UOMCode:       r.UOMCode,
			Active:        r.Active,
		})
	}
	return batches, nil
}

// GetBatch fetches a single batch row for allocation validation.
func (c *InventoryClient) GetBatch(ctx context.Context, itemID, batchID string) (*batchplan.BatchStock, error) {
	path := fmt.Sprintf("%s/api/v1/items/%s/batches/%s", c.baseURL, itemID, batchID)

	var row batchRow
	if err := c.getJSON(ctx, path, &row); err != nil {
		return nil, err
	}

	return &batchplan.BatchStock{
		BatchID:       row.BatchID,
		BatchNo:       row.BatchNo,
		ItemID:        row.ItemID,
		WarehouseID:   row.WarehouseID,
		WarehouseName: row.WarehouseName,
		BatchDate:     row.BatchDate,
		ExpiryDate:    row.ExpiryDate,
		UsableQty:     row.UsableQty,
		ReservedQty:   row.ReservedQty,
		SizeSpec:      row.SizeSpec,
		UOMCode:       row.UOMCode,
		Active:        row.Active,
	}, nil
}

// getJSON executes a GET and decodes the wrapped {"success":true,"data":...}
// envelope the inventory service responds with.
func (c *InventoryClient) getJSON(ctx context.Context, path string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("failed to call inventory service")
		return errors.Upstream("inventory service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.NotFound("inventory record")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Interface("error", errResp).
			Msg("inventory service request failed")
		return errors.Upstream(fmt.Sprintf("inventory service returned status %d", resp.StatusCode))
	}

	var response struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(response.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
