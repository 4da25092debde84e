package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/db"
)

// Repository は Service が使う永続化の口。テストではインメモリ実装に差し替える
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error

	ListUnitTypes(ctx context.Context) ([]UnitType, error)
	GetUnitType(ctx context.Context, id int64) (*UnitType, error)
	FindUnitTypeByKey(ctx context.Context, key string) (*UnitType, error)
	InsertUnitType(ctx context.Context, name, key string, now time.Time) (int64, error)
	RenameUnitType(ctx context.Context, id int64, name, key string) error
	DeleteUnitType(ctx context.Context, id int64) error
	UnitTypeReferenced(ctx context.Context, id int64) (bool, error)
	LockUnitTypes(ctx context.Context, ids []int64) ([]UnitType, error)

	ListBuckets(ctx context.Context, f BucketFilter) ([]Bucket, error)
	LockBucket(ctx context.Context, unitTypeID int64, state string) (*Bucket, error)
	DecrementBucket(ctx context.Context, bucketID, qty int64) error
	DeleteBucketIfEmpty(ctx context.Context, bucketID int64) error
	UpsertBucket(ctx context.Context, unitTypeID int64, state string, qty int64, insertPrice decimal.Decimal, overwrite *decimal.Decimal) error
	RepriceUnitType(ctx context.Context, unitTypeID int64, price decimal.Decimal) (int64, error)

	ListCommitments(ctx context.Context, from, to time.Time) ([]Commitment, error)

	InsertMovement(ctx context.Context, m *Movement) error
	ListMovements(ctx context.Context, f MovementFilter, p Page) ([]Movement, int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, s.db, fn)
}

func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.ReadOnly(ctx, s.db, fn)
}

func (s *Store) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, s.db) }

var unitTypeMsgs = apierr.MySQLMessages{
	Duplicate:  "unit type name already exists",
	Referenced: "unit type is referenced by stock or rentals",
	MissingRef: "unit type does not exist",
}

// ===== unit types =====

func (s *Store) ListUnitTypes(ctx context.Context) ([]UnitType, error) {
	const q = `SELECT unit_type_id, name, name_key, created_at FROM unit_types ORDER BY name_key`
	rows, err := s.conn(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UnitType{}
	for rows.Next() {
		var u UnitType
		if err := rows.Scan(&u.ID, &u.Name, &u.NameKey, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUnitType(ctx context.Context, id int64) (*UnitType, error) {
	const q = `SELECT unit_type_id, name, name_key, created_at FROM unit_types WHERE unit_type_id = ?`
	var u UnitType
	err := s.conn(ctx).QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Name, &u.NameKey, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound(fmt.Sprintf("unit type %d not found", id))
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUnitTypeByKey は見つからなければ nil, nil
func (s *Store) FindUnitTypeByKey(ctx context.Context, key string) (*UnitType, error) {
	const q = `SELECT unit_type_id, name, name_key, created_at FROM unit_types WHERE name_key = ?`
	var u UnitType
	err := s.conn(ctx).QueryRowContext(ctx, q, key).Scan(&u.ID, &u.Name, &u.NameKey, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) InsertUnitType(ctx context.Context, name, key string, now time.Time) (int64, error) {
	const q = `INSERT INTO unit_types (name, name_key, created_at) VALUES (?, ?, ?)`
	res, err := s.conn(ctx).ExecContext(ctx, q, name, key, now)
	if err != nil {
		return 0, apierr.FromMySQL(err, unitTypeMsgs)
	}
	return res.LastInsertId()
}

func (s *Store) RenameUnitType(ctx context.Context, id int64, name, key string) error {
	const q = `UPDATE unit_types SET name = ?, name_key = ? WHERE unit_type_id = ?`
	if _, err := s.conn(ctx).ExecContext(ctx, q, name, key, id); err != nil {
		return apierr.FromMySQL(err, unitTypeMsgs)
	}
	return nil
}

func (s *Store) DeleteUnitType(ctx context.Context, id int64) error {
	const q = `DELETE FROM unit_types WHERE unit_type_id = ?`
	res, err := s.conn(ctx).ExecContext(ctx, q, id)
	if err != nil {
		return apierr.FromMySQL(err, unitTypeMsgs)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apierr.NotFound(fmt.Sprintf("unit type %d not found", id))
	}
	return nil
}

// UnitTypeReferenced: 在庫バケツか受注明細から参照されているか
func (s *Store) UnitTypeReferenced(ctx context.Context, id int64) (bool, error) {
	const q = `
	SELECT EXISTS(SELECT 1 FROM stock_buckets WHERE unit_type_id = ?)
	    OR EXISTS(SELECT 1 FROM rental_lines WHERE unit_type_id = ?)`
	var ref bool
	if err := s.conn(ctx).QueryRowContext(ctx, q, id, id).Scan(&ref); err != nil {
		return false, err
	}
	return ref, nil
}

// LockUnitTypes は id 昇順で行ロックを取る（デッドロック回避のため順序固定）。
// 存在しない id があれば NotFound
func (s *Store) LockUnitTypes(ctx context.Context, ids []int64) ([]UnitType, error) {
	if len(ids) == 0 {
		return []UnitType{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := fmt.Sprintf(`
	SELECT unit_type_id, name, name_key, created_at
	FROM unit_types
	WHERE unit_type_id IN (%s)
	ORDER BY unit_type_id
	FOR UPDATE`, placeholders(len(ids)))

	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[int64]bool{}
	out := make([]UnitType, 0, len(ids))
	for rows.Next() {
		var u UnitType
		if err := rows.Scan(&u.ID, &u.Name, &u.NameKey, &u.CreatedAt); err != nil {
			return nil, err
		}
		found[u.ID] = true
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if !found[id] {
			return nil, apierr.NotFound(fmt.Sprintf("unit type %d not found", id))
		}
	}
	return out, nil
}

// ===== buckets =====

func (s *Store) ListBuckets(ctx context.Context, f BucketFilter) ([]Bucket, error) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(`
	SELECT b.bucket_id, b.unit_type_id, t.name, b.state, b.quantity, b.unit_price
	FROM stock_buckets b
	JOIN unit_types t ON t.unit_type_id = b.unit_type_id
	WHERE 1=1`)
	if f.UnitTypeID != nil {
		sb.WriteString(" AND b.unit_type_id = ?")
		args = append(args, *f.UnitTypeID)
	}
	if f.State != nil {
		sb.WriteString(" AND b.state = ?")
		args = append(args, *f.State)
	}
	sb.WriteString(" ORDER BY t.name_key, b.state")
	if f.ForShare {
		sb.WriteString(" LOCK IN SHARE MODE")
	}

	rows, err := s.conn(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.ID, &b.UnitTypeID, &b.UnitTypeName, &b.State, &b.Quantity, &b.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LockBucket は (種別, 状態) のバケツを FOR UPDATE で読む。無ければ nil, nil
func (s *Store) LockBucket(ctx context.Context, unitTypeID int64, state string) (*Bucket, error) {
	const q = `
	SELECT b.bucket_id, b.unit_type_id, t.name, b.state, b.quantity, b.unit_price
	FROM stock_buckets b
	JOIN unit_types t ON t.unit_type_id = b.unit_type_id
	WHERE b.unit_type_id = ? AND b.state = ?
	FOR UPDATE`
	var b Bucket
	err := s.conn(ctx).QueryRowContext(ctx, q, unitTypeID, state).
		Scan(&b.ID, &b.UnitTypeID, &b.UnitTypeName, &b.State, &b.Quantity, &b.UnitPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DecrementBucket は条件付き減算。残数が足りず0行更新なら InsufficientStock
func (s *Store) DecrementBucket(ctx context.Context, bucketID, qty int64) error {
	const q = `UPDATE stock_buckets SET quantity = quantity - ? WHERE bucket_id = ? AND quantity >= ?`
	res, err := s.conn(ctx).ExecContext(ctx, q, qty, bucketID, qty)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return apierr.InsufficientStock("not enough stock in bucket")
	}
	return nil
}

func (s *Store) DeleteBucketIfEmpty(ctx context.Context, bucketID int64) error {
	const q = `DELETE FROM stock_buckets WHERE bucket_id = ? AND quantity = 0`
	_, err := s.conn(ctx).ExecContext(ctx, q, bucketID)
	return err
}

// UpsertBucket は (種別, 状態) のバケツに qty を加算し、無ければ insertPrice で作る。
// overwrite が nil でなければ既存バケツの単価も上書きする
func (s *Store) UpsertBucket(ctx context.Context, unitTypeID int64, state string, qty int64, insertPrice decimal.Decimal, overwrite *decimal.Decimal) error {
	const q = `
	INSERT INTO stock_buckets (unit_type_id, state, quantity, unit_price)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	  quantity = quantity + VALUES(quantity),
	  unit_price = COALESCE(?, unit_price)`
	var ow any
	if overwrite != nil {
		ow = *overwrite
	}
	_, err := s.conn(ctx).ExecContext(ctx, q, unitTypeID, state, qty, insertPrice, ow)
	return apierr.FromMySQL(err, unitTypeMsgs)
}

func (s *Store) RepriceUnitType(ctx context.Context, unitTypeID int64, price decimal.Decimal) (int64, error) {
	const q = `UPDATE stock_buckets SET unit_price = ? WHERE unit_type_id = ?`
	res, err := s.conn(ctx).ExecContext(ctx, q, price, unitTypeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ===== commitments =====

// ListCommitments は [from, to] と日付が重なる受注の明細を返す。
// 終端ステータスの除外は呼び出し側で行う（表記ゆれの正規化が Go 側にあるため）。
// ロックは取らない。予約時の直列化は種別行の FOR UPDATE で行う
func (s *Store) ListCommitments(ctx context.Context, from, to time.Time) ([]Commitment, error) {
	const q = `
	SELECT o.order_id, l.unit_type_id, l.quantity, o.date_from, o.date_to, o.status
	FROM rental_lines l
	JOIN rental_orders o ON o.order_id = l.order_id
	WHERE o.date_from IS NOT NULL AND o.date_to IS NOT NULL
	  AND o.date_from <= ? AND o.date_to >= ?`
	rows, err := s.conn(ctx).QueryContext(ctx, q, to, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Commitment{}
	for rows.Next() {
		var c Commitment
		var df, dt sql.NullTime
		if err := rows.Scan(&c.OrderID, &c.UnitTypeID, &c.Quantity, &df, &dt, &c.Status); err != nil {
			return nil, err
		}
		c.DateFrom = nullTimePtr(df)
		c.DateTo = nullTimePtr(dt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ===== movements =====

func (s *Store) InsertMovement(ctx context.Context, m *Movement) error {
	const q = `
	INSERT INTO stock_movements
	(movement_ulid, unit_type_id, action, from_state, to_state, quantity, unit_price, performed_by, note, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var price any
	if m.UnitPrice != nil {
		price = *m.UnitPrice
	}
	res, err := s.conn(ctx).ExecContext(ctx, q,
		m.ULID, m.UnitTypeID, m.Action, m.FromState, m.ToState, m.Quantity, price, m.PerformedBy, m.Note, m.CreatedAt)
	if err != nil {
		return apierr.FromMySQL(err, unitTypeMsgs)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (s *Store) ListMovements(ctx context.Context, f MovementFilter, p Page) ([]Movement, int64, error) {
	var where strings.Builder
	args := []any{}
	where.WriteString(" WHERE 1=1")
	if f.UnitTypeID != nil {
		where.WriteString(" AND unit_type_id = ?")
		args = append(args, *f.UnitTypeID)
	}
	if f.Action != "" {
		where.WriteString(" AND action = ?")
		args = append(args, f.Action)
	}

	var total int64
	if err := s.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_movements"+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		order = "ASC"
	}
	q := fmt.Sprintf(`
	SELECT movement_id, movement_ulid, unit_type_id, action, from_state, to_state, quantity, unit_price, performed_by, note, created_at
	FROM stock_movements%s
	ORDER BY movement_id %s
	LIMIT ? OFFSET ?`, where.String(), order)

	rows, err := s.conn(ctx).QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Movement{}
	for rows.Next() {
		var m Movement
		var from, to, by, note sql.NullString
		var price decimal.NullDecimal
		if err := rows.Scan(&m.ID, &m.ULID, &m.UnitTypeID, &m.Action, &from, &to, &m.Quantity, &price, &by, &note, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		m.FromState = nullStringPtr(from)
		m.ToState = nullStringPtr(to)
		m.PerformedBy = nullStringPtr(by)
		m.Note = nullStringPtr(note)
		if price.Valid {
			d := price.Decimal
			m.UnitPrice = &d
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// ===== helpers =====

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
