package sales

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// SaleService is implemented by *Service.
type SaleService interface {
	CreateSale(ctx context.Context, req CreateSaleRequest) (Sale, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, filter ListSalesFilter) (SalePage, error)
	GetReport(ctx context.Context, startDate, endDate string) (Report, error)
}

// Handler wires sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service SaleService
}

// NewHandler builds a sales handler.
func NewHandler(logger *slog.Logger, service SaleService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/report", h.report)
	r.Get("/{id}", h.show)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}
	sale, err := h.service.CreateSale(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListSalesFilter{Status: PaymentStatus(q.Get("status")), Range: rng}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", shared.ErrValidation))
			return
		}
		filter.CustomerID = &id
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	page, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := h.service.GetReport(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid sale id", shared.ErrValidation))
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
