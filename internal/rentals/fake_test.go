package rentals

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rental-backend/internal/inventory"
	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/clock"
)

// fakeRepo はインメモリの Repository（ロールバックなし）
type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	orders   map[int64]*Order
	lines    map[int64][]Line
	payments []Payment
	names    map[int64]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: map[int64]*Order{},
		lines:  map[int64][]Line{},
		names:  map[int64]string{},
	}
}

func (f *fakeRepo) id() int64 { f.nextID++; return f.nextID }

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRepo) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRepo) InsertOrder(_ context.Context, o *Order) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	cp := *o
	cp.ID = id
	f.orders[id] = &cp
	return id, nil
}

func (f *fakeRepo) UpdateOrder(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
	return nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id int64, status string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[id].Status = status
	f.orders[id].UpdatedAt = now
	return nil
}

func (f *fakeRepo) DeleteOrder(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[id]; !ok {
		return apierr.NotFound("rental order not found")
	}
	delete(f.orders, id)
	delete(f.lines, id)
	kept := f.payments[:0]
	for _, p := range f.payments {
		if p.OrderID != id {
			kept = append(kept, p)
		}
	}
	f.payments = kept
	return nil
}

func (f *fakeRepo) GetOrder(_ context.Context, key orderKey, _ bool) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if (key.ULID != "" && o.ULID == key.ULID) || (key.ULID == "" && o.ID == key.ID) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apierr.NotFound("rental order not found")
}

func (f *fakeRepo) ListOrders(_ context.Context, flt OrderFilter, p Page) ([]Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Order{}
	for _, o := range f.orders {
		if flt.Status != "" && o.Status != flt.Status {
			continue
		}
		if flt.ClientID != nil && (o.ClientID == nil || *o.ClientID != *flt.ClientID) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if p.Order == "asc" {
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	total := int64(len(out))
	if p.Offset >= len(out) {
		return []Order{}, total, nil
	}
	out = out[p.Offset:]
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

func (f *fakeRepo) ReplaceLines(_ context.Context, orderID int64, lines []Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.ID = f.id()
		l.OrderID = orderID
		out = append(out, l)
	}
	f.lines[orderID] = out
	return nil
}

func (f *fakeRepo) ListLines(_ context.Context, orderIDs []int64) (map[int64][]Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64][]Line{}
	for _, id := range orderIDs {
		for _, l := range f.lines[id] {
			l.UnitTypeName = f.names[l.UnitTypeID]
			out[id] = append(out[id], l)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertPayment(_ context.Context, p *Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id()
	f.payments = append(f.payments, *p)
	return nil
}

func (f *fakeRepo) ListPayments(_ context.Context, orderID int64) ([]Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Payment{}
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// ===== fake inventory =====

// fakeInventory は fakeRepo の受注から引当数量を数える在庫
type fakeInventory struct {
	repo     *fakeRepo
	stock    map[int64]int64
	prices   map[int64]decimal.Decimal
	prepared int
	checked  int
}

func newFakeInventory(repo *fakeRepo) *fakeInventory {
	return &fakeInventory{repo: repo, stock: map[int64]int64{}, prices: map[int64]decimal.Decimal{}}
}

func (f *fakeInventory) addType(id int64, name string, available int64, price string) {
	f.stock[id] = available
	f.prices[id] = decimal.RequireFromString(price)
	f.repo.names[id] = name
}

func (f *fakeInventory) PrepareBooking(_ context.Context, ids []int64) (map[int64]decimal.Decimal, error) {
	f.prepared++
	out := map[int64]decimal.Decimal{}
	for _, id := range ids {
		p, ok := f.prices[id]
		if !ok {
			return nil, apierr.NotFound(fmt.Sprintf("unit type %d not found", id))
		}
		out[id] = p
	}
	return out, nil
}

func (f *fakeInventory) CheckBooking(_ context.Context, from, to time.Time, exclude *int64, lines []inventory.BookingLine) error {
	f.checked++
	requested := map[int64]int64{}
	for _, l := range lines {
		requested[l.UnitTypeID] += l.Quantity
	}

	f.repo.mu.Lock()
	committed := map[int64]int64{}
	for id, o := range f.repo.orders {
		if exclude != nil && id == *exclude {
			continue
		}
		if inventory.IsTerminal(o.Status) || o.DateFrom == nil || o.DateTo == nil {
			continue
		}
		if o.DateFrom.After(to) || o.DateTo.Before(from) {
			continue
		}
		for _, l := range f.repo.lines[id] {
			committed[l.UnitTypeID] += l.Quantity
		}
	}
	f.repo.mu.Unlock()

	for id, n := range requested {
		if free := max(0, f.stock[id]-committed[id]); n > free {
			return apierr.InsufficientStock(fmt.Sprintf("unit type %d: requested %d, available %d", id, n, free))
		}
	}
	return nil
}

var testNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestService(repo *fakeRepo, inv Inventory) *Service {
	return NewServiceWith(repo, inv, clock.NewFixed(testNow), clock.NewULIDGen(), nil)
}
