package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]Product
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[uuid.UUID]Product)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	snapshot := make(map[uuid.UUID]Product, len(r.products))
	for k, v := range r.products {
		snapshot[k] = v
	}
	if err := fn(ctx, r); err != nil {
		r.products = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRepo) FindByNameCategory(_ context.Context, name, category string) (Product, error) {
	for _, p := range r.products {
		if p.Name == name && p.Category == category {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) FindByBarcode(_ context.Context, barcode string) (Product, error) {
	for _, p := range r.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) Create(_ context.Context, p *Product) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.products[p.ID] = *p
	return nil
}

func (r *memoryRepo) Save(_ context.Context, p *Product) error {
	current, ok := r.products[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Quantity = current.Quantity
	p.UpdatedAt = time.Now()
	r.products[p.ID] = *p
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (r *memoryRepo) Restock(_ context.Context, id uuid.UUID, qty int) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	p.Quantity += qty
	r.products[id] = p
	return p, nil
}

func (r *memoryRepo) ListLowStock(_ context.Context) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.IsLowStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreateProductGeneratesBarcodeAndDefaults(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, nil)

	p, merged, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name: " Kopi Susu ", Category: "drinks", CostPrice: money("60"), SellPrice: money("100"), Quantity: 5,
	})
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, "Kopi Susu", p.Name)
	assert.Len(t, p.Barcode, 10)
	assert.Equal(t, DefaultLowStockThreshold, p.LowStockThreshold)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "products:create", audit.logs[0].Action)
}

func TestCreateProductMergesSameNameAndCategory(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	first, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Teh", Category: "drinks", CostPrice: money("5"), SellPrice: money("8"), Quantity: 4})
	require.NoError(t, err)

	second, merged, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Teh", Category: "drinks", CostPrice: money("6"), SellPrice: money("9"), Quantity: 3})
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, second.Quantity)
	assert.True(t, second.SellPrice.Equal(money("9")))
	assert.Len(t, repo.products, 1)
}

func TestCreateProductMergesUnicodeVariants(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	first, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Caf\u00e9 Latte", Category: "drinks", CostPrice: money("10"), SellPrice: money("20"), Quantity: 2})
	require.NoError(t, err)

	second, merged, err := svc.CreateProduct(ctx, CreateProductInput{Name: " Cafe\u0301 Latte ", Category: "drinks", CostPrice: money("10"), SellPrice: money("20"), Quantity: 1})
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Caf\u00e9 Latte", second.Name)
	assert.Equal(t, 3, second.Quantity)
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "A", Category: "x", SellPrice: money("1"), Barcode: "ABC"})
	require.NoError(t, err)
	_, _, err = svc.CreateProduct(ctx, CreateProductInput{Name: "B", Category: "x", SellPrice: money("1"), Barcode: "ABC"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	_, _, err := svc.CreateProduct(ctx, CreateProductInput{Category: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.CreateProduct(ctx, CreateProductInput{Name: "A", Category: "x", CostPrice: money("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.CreateProduct(ctx, CreateProductInput{Name: "A", Category: "x", Quantity: -2})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.CreateProduct(ctx, CreateProductInput{Name: "A", Category: "x", SellPrice: money("10.005")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = svc.CreateProduct(ctx, CreateProductInput{Name: "A", Category: "x", SellPrice: money("10.500")})
	require.NoError(t, err)
}

func TestUpdateProductRejectsBlankLabels(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	p, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Teh Manis", Category: "minuman", SellPrice: money("8")})
	require.NoError(t, err)

	for _, blank := range []string{"", "   "} {
		label := blank
		_, err = svc.UpdateProduct(ctx, p.ID, UpdateProductInput{Name: &label})
		require.ErrorIs(t, err, shared.ErrValidation, "name %q", blank)
		_, err = svc.UpdateProduct(ctx, p.ID, UpdateProductInput{Category: &label})
		require.ErrorIs(t, err, shared.ErrValidation, "category %q", blank)
	}
	cost := money("2.125")
	_, err = svc.UpdateProduct(ctx, p.ID, UpdateProductInput{CostPrice: &cost})
	require.ErrorIs(t, err, shared.ErrValidation)

	stored := repo.products[p.ID]
	assert.Equal(t, "Teh Manis", stored.Name)
	assert.Equal(t, "minuman", stored.Category)
	assert.True(t, stored.CostPrice.IsZero())

	name := "  Teh Tarik "
	updated, err := svc.UpdateProduct(ctx, p.ID, UpdateProductInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Teh Tarik", updated.Name)
}

func TestUpdateProductBarcodeConflictLeavesProductUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	a, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "A", Category: "x", SellPrice: money("1"), Barcode: "AAA"})
	require.NoError(t, err)
	_, _, err = svc.CreateProduct(ctx, CreateProductInput{Name: "B", Category: "x", SellPrice: money("1"), Barcode: "BBB"})
	require.NoError(t, err)

	name := "renamed"
	barcode := "BBB"
	_, err = svc.UpdateProduct(ctx, a.ID, UpdateProductInput{Name: &name, Barcode: &barcode})
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "A", repo.products[a.ID].Name)

	price := money("12.5")
	updated, err := svc.UpdateProduct(ctx, a.ID, UpdateProductInput{Name: &name, SellPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.True(t, updated.SellPrice.Equal(price))
}

func TestRestockAndLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	p, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Gula", Category: "pantry", SellPrice: money("3"), Quantity: 2})
	require.NoError(t, err)

	alerts, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, p.ID, alerts[0].ProductID)
	assert.Equal(t, 2, alerts[0].Quantity)

	_, err = svc.Restock(ctx, p.ID, RestockInput{Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	restocked, err := svc.Restock(ctx, p.ID, RestockInput{Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 12, restocked.Quantity)

	alerts, err = svc.LowStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	_, err = svc.Restock(ctx, uuid.New(), RestockInput{Quantity: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListProductsPagination(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _, err := svc.CreateProduct(ctx, CreateProductInput{Name: fmt.Sprintf("P%d", i), Category: "x", SellPrice: money("1")})
		require.NoError(t, err)
	}

	products, page, err := svc.ListProducts(ctx, ListFilter{PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, products, 3)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
}

func TestGenerateBarcodeIsUppercaseHex(t *testing.T) {
	code := GenerateBarcode()
	require.Len(t, code, 10)
	for _, c := range code {
		assert.Contains(t, "0123456789ABCDEF", string(c))
	}
}
