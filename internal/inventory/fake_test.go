package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/clock"
)

// fakeRepo はインメモリの Repository。
// WithTx は Tx 同士を直列化し、fn がエラーならバケツと移動履歴を開始時点へ戻す
type fakeRepo struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	failUpsert error
	nextID     int64
	types      map[int64]UnitType
	buckets    map[int64]*Bucket
	commits    []Commitment
	movements  []Movement
	referenced map[int64]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		types:      map[int64]UnitType{},
		buckets:    map[int64]*Bucket{},
		referenced: map[int64]bool{},
	}
}

func (f *fakeRepo) id() int64 { f.nextID++; return f.nextID }

// ===== seed helpers =====

func (f *fakeRepo) addType(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.types[id] = UnitType{ID: id, Name: name, NameKey: NameKey(name)}
	return id
}

func (f *fakeRepo) addBucket(typeID int64, state string, qty int64, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	f.buckets[id] = &Bucket{ID: id, UnitTypeID: typeID, State: state, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func (f *fakeRepo) addCommitment(orderID, typeID, qty int64, from, to, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := Commitment{OrderID: orderID, UnitTypeID: typeID, Quantity: qty, Status: status}
	if from != "" {
		t, _ := time.Parse(dateLayout, from)
		c.DateFrom = &t
	}
	if to != "" {
		t, _ := time.Parse(dateLayout, to)
		c.DateTo = &t
	}
	f.commits = append(f.commits, c)
}

// bucket は (種別, 状態) の現在値。無ければ nil
func (f *fakeRepo) bucket(typeID int64, state string) *Bucket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.find(typeID, state); b != nil {
		cp := *b
		return &cp
	}
	return nil
}

func (f *fakeRepo) find(typeID int64, state string) *Bucket {
	for _, b := range f.buckets {
		if b.UnitTypeID == typeID && b.State == state {
			return b
		}
	}
	return nil
}

// ===== Repository =====

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	buckets := make(map[int64]*Bucket, len(f.buckets))
	for id, b := range f.buckets {
		cp := *b
		buckets[id] = &cp
	}
	movements := append([]Movement(nil), f.movements...)
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.buckets, f.movements = buckets, movements
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeRepo) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRepo) ListUnitTypes(context.Context) ([]UnitType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UnitType, 0, len(f.types))
	for _, t := range f.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameKey < out[j].NameKey })
	return out, nil
}

func (f *fakeRepo) GetUnitType(_ context.Context, id int64) (*UnitType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.types[id]
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("unit type %d not found", id))
	}
	return &t, nil
}

func (f *fakeRepo) FindUnitTypeByKey(_ context.Context, key string) (*UnitType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.types {
		if t.NameKey == key {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) InsertUnitType(_ context.Context, name, key string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.types {
		if t.NameKey == key {
			return 0, apierr.Conflict("unit type name already exists")
		}
	}
	id := f.id()
	f.types[id] = UnitType{ID: id, Name: name, NameKey: key, CreatedAt: now}
	return id, nil
}

func (f *fakeRepo) RenameUnitType(_ context.Context, id int64, name, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.types[id]
	t.Name, t.NameKey = name, key
	f.types[id] = t
	return nil
}

func (f *fakeRepo) DeleteUnitType(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.types, id)
	return nil
}

func (f *fakeRepo) UnitTypeReferenced(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.referenced[id] {
		return true, nil
	}
	for _, b := range f.buckets {
		if b.UnitTypeID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) LockUnitTypes(_ context.Context, ids []int64) ([]UnitType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []UnitType{}
	for _, id := range ids {
		t, ok := f.types[id]
		if !ok {
			return nil, apierr.NotFound(fmt.Sprintf("unit type %d not found", id))
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeRepo) ListBuckets(_ context.Context, flt BucketFilter) ([]Bucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Bucket{}
	for _, b := range f.buckets {
		if flt.UnitTypeID != nil && b.UnitTypeID != *flt.UnitTypeID {
			continue
		}
		if flt.State != nil && b.State != *flt.State {
			continue
		}
		cp := *b
		cp.UnitTypeName = f.types[b.UnitTypeID].Name
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitTypeID != out[j].UnitTypeID {
			return out[i].UnitTypeID < out[j].UnitTypeID
		}
		return out[i].State < out[j].State
	})
	return out, nil
}

func (f *fakeRepo) LockBucket(_ context.Context, typeID int64, state string) (*Bucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.find(typeID, state); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

// DecrementBucket は store と同じく「足りる時だけ減らす」を1操作で行う
func (f *fakeRepo) DecrementBucket(_ context.Context, bucketID, qty int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buckets[bucketID]
	if !ok || b.Quantity < qty {
		return apierr.InsufficientStock("not enough stock in bucket")
	}
	b.Quantity -= qty
	return nil
}

func (f *fakeRepo) DeleteBucketIfEmpty(_ context.Context, bucketID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.buckets[bucketID]; ok && b.Quantity == 0 {
		delete(f.buckets, bucketID)
	}
	return nil
}

func (f *fakeRepo) UpsertBucket(_ context.Context, typeID int64, state string, qty int64, insertPrice decimal.Decimal, overwrite *decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return f.failUpsert
	}
	if b := f.find(typeID, state); b != nil {
		b.Quantity += qty
		if overwrite != nil {
			b.UnitPrice = *overwrite
		}
		return nil
	}
	id := f.id()
	f.buckets[id] = &Bucket{ID: id, UnitTypeID: typeID, State: state, Quantity: qty, UnitPrice: insertPrice}
	return nil
}

func (f *fakeRepo) RepriceUnitType(_ context.Context, typeID int64, price decimal.Decimal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.buckets {
		if b.UnitTypeID == typeID {
			b.UnitPrice = price
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ListCommitments(context.Context, time.Time, time.Time) ([]Commitment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Commitment(nil), f.commits...), nil
}

func (f *fakeRepo) InsertMovement(_ context.Context, m *Movement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.id()
	f.movements = append(f.movements, *m)
	return nil
}

func (f *fakeRepo) ListMovements(_ context.Context, flt MovementFilter, p Page) ([]Movement, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Movement{}
	for _, m := range f.movements {
		if flt.UnitTypeID != nil && m.UnitTypeID != *flt.UnitTypeID {
			continue
		}
		if flt.Action != "" && m.Action != flt.Action {
			continue
		}
		out = append(out, m)
	}
	total := int64(len(out))
	if p.Offset >= len(out) {
		return []Movement{}, total, nil
	}
	out = out[p.Offset:]
	if len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	return NewServiceWith(repo, clock.NewFixed(testNow), clock.NewULIDGen(), nil)
}
