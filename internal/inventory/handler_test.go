package inventory

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/products", h.MountRoutes)
	return r, repo
}

func TestHandlerCreateAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"name":"Roti","category":"bakery","cost_price":"4000","sell_price":"6500","quantity":12}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, 12, created.Quantity)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/"+created.ID.String()+"/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code, "merge returns 200")
}

func TestHandlerErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/not-a-uuid/", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/"+uuid.NewString()+"/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/products/", strings.NewReader(`{"category":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerRestockAndLowStock(t *testing.T) {
	router, repo := newTestRouter(t)
	id := uuid.New()
	repo.products[id] = Product{ID: id, Name: "Susu", Category: "dairy", Quantity: 1, LowStockThreshold: 5, Barcode: "S1"}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/alerts/low-stock", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), id.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/products/"+id.String()+"/restock", strings.NewReader(`{"quantity":9}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, repo.products[id].Quantity)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/products/"+id.String()+"/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, repo.products)
}
