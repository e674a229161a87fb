package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"supplier-catalog-service/internal/cache"
	"supplier-catalog-service/internal/catalog"
	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/store"
)

const serviceName = "SupplierCatalogService"

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	catalog   Catalog
	scheduler RefreshScheduler
	history   store.RefreshHistoryStorer
	validate  *validator.Validate
	log       *slog.Logger
	now       func() time.Time
}

// NewHTTPHandler creates a new HTTPHandler with dependencies. history may be
// nil, in which case the history endpoints answer 503.
func NewHTTPHandler(c Catalog, s RefreshScheduler, history store.RefreshHistoryStorer, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		catalog:   c,
		scheduler: s,
		history:   history,
		validate:  validator.New(),
		log:       logger.With(slog.String("component", "http")),
		now:       time.Now,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.log.Error("failed to encode JSON response", slog.Any("error", err))
		}
	}
}

// --- Catalog Handlers ---

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	input, err := parseListProductsQuery(r.URL.Query(), h.catalog.AttributeKeys)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateListInput(h.validate, input); err != nil {
		if errors.Is(err, errPriceRange) {
			h.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, h.catalog.ListProducts(r.Context(), input.Filters()))
}

// SearchResponse is the payload of a quick search.
type SearchResponse struct {
	Query string           `json:"query"`
	Items []domain.Product `json:"items"`
	Count int              `json:"count"`
}

func (h *HTTPHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := SearchInput{Query: q.Get("q")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid limit format")
			return
		}
		input.Limit = limit
	}
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	if input.Limit == 0 {
		input.Limit = defaultSearchLimit
	}

	items := h.catalog.SearchProducts(r.Context(), input.Query, input.Limit)
	h.respondWithJSON(w, http.StatusOK, SearchResponse{Query: input.Query, Items: items, Count: len(items)})
}

func (h *HTTPHandler) GetProductBySku(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	product, err := h.catalog.GetProductBySku(r.Context(), sku)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			h.respondWithError(w, http.StatusNotFound, "Product "+sku+" not found")
			return
		}
		h.log.Error("GetProductBySku failed", slog.String("sku", sku), slog.Any("error", err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}
	h.respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.catalog.Categories(r.Context()))
}

func (h *HTTPHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.catalog.Brands(r.Context()))
}

// --- Admin Handlers ---

// RefreshResponse reports the outcome of a manual refresh request.
type RefreshResponse struct {
	Started bool                  `json:"started"`
	Stats   domain.SchedulerStats `json:"stats"`
}

// TriggerRefresh runs a refresh cycle synchronously. The cycle is detached
// from the request so a disconnecting client does not abort it.
func (h *HTTPHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	stats, started := h.scheduler.TriggerManualRefresh(context.WithoutCancel(r.Context()))
	if !started {
		h.respondWithJSON(w, http.StatusConflict, RefreshResponse{Started: false, Stats: stats})
		return
	}
	h.respondWithJSON(w, http.StatusOK, RefreshResponse{Started: true, Stats: stats})
}

// SchedulerStatusResponse combines the scheduler state with the caches it
// keeps warm.
type SchedulerStatusResponse struct {
	Scheduler domain.SchedulerStats `json:"scheduler"`
	Caches    []cache.Status        `json:"caches"`
}

func (h *HTTPHandler) GetSchedulerStats(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, SchedulerStatusResponse{
		Scheduler: h.scheduler.Stats(),
		Caches:    h.catalog.CacheStatus(),
	})
}

func (h *HTTPHandler) ClearCaches(w http.ResponseWriter, r *http.Request) {
	cleared := h.catalog.ClearCaches()
	h.respondWithJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (h *HTTPHandler) ListRefreshHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Refresh history is not configured")
		return
	}
	q := r.URL.Query()
	input := HistoryInput{
		Trigger: q.Get("trigger"),
		Page:    intParam(q, "page", 1),
		Limit:   intParam(q, "limit", 20),
	}
	if input.Limit > maxHistoryPage {
		input.Limit = maxHistoryPage
	}
	if raw := q.Get("failed"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "Invalid failed value: must be true or false")
			return
		}
		input.Failed = b
	}
	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	params := store.ListRefreshesParams{
		Limit:      input.Limit,
		Offset:     (input.Page - 1) * input.Limit,
		FailedOnly: input.Failed,
	}
	if input.Trigger != "" {
		params.Trigger = &input.Trigger
	}

	cycles, totalCount, err := h.history.ListRefreshCycles(r.Context(), params)
	if err != nil {
		h.log.Error("ListRefreshCycles failed", slog.Any("error", err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve refresh history")
		return
	}

	response := struct {
		Data       []domain.RefreshCycle `json:"data"`
		Pagination domain.Pagination     `json:"pagination"`
	}{
		Data:       cycles,
		Pagination: domain.NewPagination(totalCount, input.Page, input.Limit),
	}
	h.respondWithJSON(w, http.StatusOK, response)
}

func (h *HTTPHandler) GetRefreshCycle(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Refresh history is not configured")
		return
	}
	id := chi.URLParam(r, "cycleId")
	cycle, err := h.history.GetRefreshCycle(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRefreshCycleNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrRefreshCycleNotFound.Error())
			return
		}
		h.log.Error("GetRefreshCycle failed", slog.String("cycle_id", id), slog.Any("error", err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve refresh cycle")
		return
	}
	h.respondWithJSON(w, http.StatusOK, cycle)
}

// Health reports liveness plus the scheduler and history backend state. It
// always answers 200; the payload carries the details.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	historyStatus := "disabled"
	if h.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		historyStatus = "healthy"
		if err := h.history.Ping(ctx); err != nil {
			historyStatus = "unhealthy"
			h.log.Warn("health check history ping failed", slog.Any("error", err))
		}
	}

	stats := h.scheduler.Stats()
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"serviceName":  serviceName,
		"timestamp":    h.now().UTC().Format(time.RFC3339),
		"history":      historyStatus,
		"isRefreshing": stats.IsRefreshing,
		"lastRefresh":  stats.LastRefresh,
		"refreshCount": stats.RefreshCount,
	})
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", h.Health)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			// Registered before {sku} so "search" is not taken as a SKU.
			r.Get("/search", h.SearchProducts)
			r.Get("/{sku}", h.GetProductBySku)
		})
		r.Get("/categories", h.ListCategories)
		r.Get("/brands", h.ListBrands)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh", h.TriggerRefresh)
			r.Get("/scheduler", h.GetSchedulerStats)
			r.Post("/cache/clear", h.ClearCaches)
			r.Get("/refresh/history", h.ListRefreshHistory)
			r.Get("/refresh/history/{cycleId}", h.GetRefreshCycle)
		})
	})
}
