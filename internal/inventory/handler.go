package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// CatalogService is the behaviour the HTTP handler needs.
type CatalogService interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (Product, bool, error)
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	Restock(ctx context.Context, id uuid.UUID, input RestockInput) (Product, error)
	LowStock(ctx context.Context) ([]LowStockAlert, error)
}

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger  *slog.Logger
	service CatalogService
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service CatalogService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/alerts/low-stock", h.handleLowStock)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Patch("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/restock", h.handleRestock)
	})
}

type listResponse struct {
	Data       []Product         `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Category: q.Get("category"), Search: q.Get("search")}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	products, page, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: products, Pagination: page})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, merged, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	httpx.JSON(w, status, product)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input UpdateProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input RestockInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Restock(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.LowStock(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": alerts})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("product request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func productID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return id, nil
}
