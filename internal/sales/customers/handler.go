package customers

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

// CustomerService is implemented by *Service.
type CustomerService interface {
	Create(ctx context.Context, input CreateCustomerInput) (Customer, error)
	Get(ctx context.Context, id uuid.UUID) (Detail, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateCustomerInput) (Customer, error)
	List(ctx context.Context, filter ListFilter) ([]Detail, shared.Pagination, error)
	PaymentStatus(ctx context.Context, filter PaymentFilter) ([]PaymentSummary, error)
}

type Handler struct {
	logger  *slog.Logger
	service CustomerService
}

func NewHandler(logger *slog.Logger, service CustomerService) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/payment-status", h.PaymentStatus)
	r.Get("/{id}", h.Show)
	r.Patch("/{id}", h.Update)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("search")}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	details, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if details == nil {
		details = []Detail{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": details, "pagination": page})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input CreateCustomerInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", shared.ErrValidation))
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", shared.ErrValidation))
		return
	}
	var input UpdateCustomerInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.PaymentStatus(r.Context(), PaymentFilter(r.URL.Query().Get("filter")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []PaymentSummary{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": summaries})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("customer request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
