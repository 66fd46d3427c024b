// Package handler exposes the packaging service HTTP API.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/internal/packaging/service"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
)

// PackagingHandler handles packaging endpoints
type PackagingHandler struct {
	service *service.PackagingService
	logger  *logger.Logger
}

// NewPackagingHandler creates a new packaging handler
func NewPackagingHandler(svc *service.PackagingService, log *logger.Logger) *PackagingHandler {
	return &PackagingHandler{
		service: svc,
		logger:  log,
	}
}

// Routes mounts the packaging API on a chi router.
func (h *PackagingHandler) Routes(r chi.Router) {
	r.Get("/inventory/{itemID}/{warehouseID}", h.GetStockCell)
	r.Get("/items/{itemID}/batches", h.ListBatches)
	r.Post("/requests/{requestID}", h.CreatePackage)
	r.Post("/requests/{requestID}/prepare", h.Prepare)
	r.Post("/requests/{requestID}/cancel", h.Cancel)
	r.Get("/requests/{requestID}/summary", h.Summary)
}

// GetStockCell returns live stock for an item at a warehouse
func (h *PackagingHandler) GetStockCell(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	warehouseID := chi.URLParam(r, "warehouseID")

	cell, err := h.service.GetStockCell(r.Context(), itemID, warehouseID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cell)
}

// ListBatches returns the batch selection drawer listing for an item
func (h *PackagingHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	remaining := decimal.Zero
	if raw := r.URL.Query().Get("remaining_qty"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("remaining_qty must be a number"))
			return
		}
		remaining = parsed
	}

	requiredUOM := r.URL.Query().Get("required_uom")

	var allocatedIDs []string
	if raw := r.URL.Query().Get("allocated_batch_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				allocatedIDs = append(allocatedIDs, id)
			}
		}
	}

	listing, err := h.service.ListDrawerBatches(r.Context(), itemID, remaining, requiredUOM, allocatedIDs)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, listing)
}

// CreatePackage registers a draft package for a relief request
func (h *PackagingHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req struct {
		Items []service.NewItemLine `json:"items" validate:"required,min=1,dive"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	pkg, err := h.service.CreatePackage(r.Context(), requestID, httputil.GetActor(r.Context()), req.Items)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, pkg)
}

// Prepare processes a preparation form submission
func (h *PackagingHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	if err := r.ParseForm(); err != nil {
		httputil.Error(w, errors.BadRequest("invalid form body"))
		return
	}

	action := r.PostForm.Get("action")
	userID := httputil.GetActor(r.Context())

	result, err := h.service.PrepareRequest(r.Context(), requestID, userID, action, r.PostForm)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Cancel deletes draft allocations and releases reservations
func (h *PackagingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	if err := h.service.CancelRequest(r.Context(), requestID, httputil.GetActor(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Summary returns the fulfillment rollup for a relief request
func (h *PackagingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	summary, err := h.service.GetSummary(r.Context(), requestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
