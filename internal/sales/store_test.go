package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// memoryStore serialises transactions and restores a snapshot on error.
type memoryStore struct {
	mu        sync.Mutex
	products  map[uuid.UUID]inventory.Product
	customers map[uuid.UUID]customers.Customer
	sales     []Sale

	createErr      error
	missKeyLookups int
	rangeCalls     int

	// rangeGate holds FindByDateRange until closed; rangeStarted is signalled
	// on entry.
	rangeGate    chan struct{}
	rangeStarted chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products:  make(map[uuid.UUID]inventory.Product),
		customers: make(map[uuid.UUID]customers.Customer),
	}
}

func (m *memoryStore) addProduct(name string, cost, sell int64, qty int) inventory.Product {
	p := inventory.Product{
		ID:                uuid.New(),
		Name:              name,
		Category:          "general",
		CostPrice:         decimal.NewFromInt(cost),
		SellPrice:         decimal.NewFromInt(sell),
		Quantity:          qty,
		LowStockThreshold: inventory.DefaultLowStockThreshold,
		Barcode:           inventory.GenerateBarcode(),
	}
	m.products[p.ID] = p
	return p
}

func (m *memoryStore) addCustomer(name string, pending int64) customers.Customer {
	c := customers.Customer{ID: uuid.New(), Name: name, PendingAmount: decimal.NewFromInt(pending), SaleIDs: []uuid.UUID{}}
	m.customers[c.ID] = c
	return c
}

func (m *memoryStore) product(id uuid.UUID) inventory.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id]
}

func (m *memoryStore) customer(id uuid.UUID) customers.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customers[id]
}

func (m *memoryStore) saleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make(map[uuid.UUID]inventory.Product, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	custs := make(map[uuid.UUID]customers.Customer, len(m.customers))
	for k, v := range m.customers {
		v.SaleIDs = append([]uuid.UUID(nil), v.SaleIDs...)
		custs[k] = v
	}
	sales := append([]Sale(nil), m.sales...)

	err := fn(ctx, TxRepositories{
		Products:  memoryProducts{m},
		Customers: memoryCustomers{m},
		Sales:     &memorySales{store: m},
	})
	if err != nil {
		m.products, m.customers, m.sales = products, custs, sales
		return err
	}
	return nil
}

func (m *memoryStore) Sales() SaleRepository {
	return &memorySales{store: m, locking: true}
}

type memoryProducts struct{ store *memoryStore }

func (r memoryProducts) FindManyByIDs(_ context.Context, ids []uuid.UUID) ([]inventory.Product, error) {
	var out []inventory.Product
	for _, id := range ids {
		if p, ok := r.store.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memoryProducts) FindByID(_ context.Context, id uuid.UUID) (inventory.Product, error) {
	p, ok := r.store.products[id]
	if !ok {
		return inventory.Product{}, fmt.Errorf("product %s: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r memoryProducts) DecrementStock(_ context.Context, id uuid.UUID, qty int) (int, bool, error) {
	p, ok := r.store.products[id]
	if !ok || p.Quantity < qty {
		return 0, false, nil
	}
	p.Quantity -= qty
	r.store.products[id] = p
	return p.Quantity, true, nil
}

type memoryCustomers struct{ store *memoryStore }

func (r memoryCustomers) FindByID(_ context.Context, id uuid.UUID) (customers.Customer, error) {
	c, ok := r.store.customers[id]
	if !ok {
		return customers.Customer{}, fmt.Errorf("customer %s: %w", id, shared.ErrNotFound)
	}
	return c, nil
}

func (r memoryCustomers) AdjustPending(_ context.Context, id uuid.UUID, delta decimal.Decimal) error {
	c, ok := r.store.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.PendingAmount = c.PendingAmount.Add(delta)
	r.store.customers[id] = c
	return nil
}

func (r memoryCustomers) AppendSaleRef(_ context.Context, id, saleID uuid.UUID) error {
	c, ok := r.store.customers[id]
	if !ok {
		return shared.ErrNotFound
	}
	c.SaleIDs = append(c.SaleIDs, saleID)
	r.store.customers[id] = c
	return nil
}

type memorySales struct {
	store   *memoryStore
	locking bool
}

func (r *memorySales) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memorySales) Create(_ context.Context, s *Sale) error {
	if r.store.createErr != nil {
		return r.store.createErr
	}
	for _, existing := range r.store.sales {
		if s.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *s.IdempotencyKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	r.store.sales = append(r.store.sales, *s)
	return nil
}

func (r *memorySales) FindByID(_ context.Context, id uuid.UUID) (Sale, error) {
	defer r.lock()()
	for _, s := range r.store.sales {
		if s.ID == id {
			return s, nil
		}
	}
	return Sale{}, fmt.Errorf("sale %s: %w", id, shared.ErrNotFound)
}

func (r *memorySales) FindByIdempotencyKey(_ context.Context, key string) (Sale, error) {
	defer r.lock()()
	if r.store.missKeyLookups > 0 {
		r.store.missKeyLookups--
		return Sale{}, shared.ErrNotFound
	}
	for _, s := range r.store.sales {
		if s.IdempotencyKey != nil && *s.IdempotencyKey == key {
			return s, nil
		}
	}
	return Sale{}, shared.ErrNotFound
}

func (r *memorySales) FindByDateRange(ctx context.Context, rng DateRange) ([]Sale, error) {
	if r.store.rangeGate != nil {
		select {
		case r.store.rangeStarted <- struct{}{}:
		default:
		}
		select {
		case <-r.store.rangeGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer r.lock()()
	r.store.rangeCalls++
	var out []Sale
	for _, s := range r.store.sales {
		if rng.Contains(s.CreatedAt) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memorySales) List(_ context.Context, filter ListSalesFilter) ([]Sale, int, error) {
	defer r.lock()()
	var matched []Sale
	for _, s := range r.store.sales {
		if filter.CustomerID != nil && (s.CustomerID == nil || *s.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if !filter.Range.Contains(s.CreatedAt) {
			continue
		}
		matched = append(matched, s)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	page := shared.NewPagination(filter.Page, filter.PerPage, len(matched))
	start := page.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}
