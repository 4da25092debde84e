package rentals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/db"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error

	InsertOrder(ctx context.Context, o *Order) (int64, error)
	UpdateOrder(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, id int64, status string, now time.Time) error
	DeleteOrder(ctx context.Context, id int64) error
	GetOrder(ctx context.Context, key orderKey, forUpdate bool) (*Order, error)
	ListOrders(ctx context.Context, f OrderFilter, p Page) ([]Order, int64, error)

	ReplaceLines(ctx context.Context, orderID int64, lines []Line) error
	ListLines(ctx context.Context, orderIDs []int64) (map[int64][]Line, error)

	InsertPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, orderID int64) ([]Payment, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

// bookingTx: 空き台数の集計を非ロック読みで最新のコミット済み状態から取るため READ COMMITTED
var bookingTx = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTxOptions(ctx, s.db, bookingTx, fn)
}

func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.ReadOnly(ctx, s.db, fn)
}

func (s *Store) conn(ctx context.Context) db.DBTX { return db.Conn(ctx, s.db) }

var lineMsgs = apierr.MySQLMessages{MissingRef: "unit type does not exist"}

// ===== orders =====

const orderColumns = `order_id, order_ulid, client_id, location, date_from, date_to, total_price, status, note, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanOrder(r scanner) (*Order, error) {
	var o Order
	var client sql.NullInt64
	var df, dt sql.NullTime
	var note sql.NullString
	if err := r.Scan(&o.ID, &o.ULID, &client, &o.Location, &df, &dt, &o.TotalPrice, &o.Status, &note, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if client.Valid {
		v := client.Int64
		o.ClientID = &v
	}
	if df.Valid {
		t := df.Time
		o.DateFrom = &t
	}
	if dt.Valid {
		t := dt.Time
		o.DateTo = &t
	}
	if note.Valid {
		n := note.String
		o.Note = &n
	}
	return &o, nil
}

func (s *Store) InsertOrder(ctx context.Context, o *Order) (int64, error) {
	const q = `
	INSERT INTO rental_orders
	(order_ulid, client_id, location, date_from, date_to, total_price, status, note, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.conn(ctx).ExecContext(ctx, q,
		o.ULID, o.ClientID, o.Location, o.DateFrom, o.DateTo, o.TotalPrice, o.Status, o.Note, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return 0, apierr.FromMySQL(err, apierr.MySQLMessages{Duplicate: "order already exists"})
	}
	return res.LastInsertId()
}

func (s *Store) UpdateOrder(ctx context.Context, o *Order) error {
	const q = `
	UPDATE rental_orders
	SET client_id = ?, location = ?, date_from = ?, date_to = ?, total_price = ?, status = ?, note = ?, updated_at = ?
	WHERE order_id = ?`
	// 存在確認は呼び出し側の FOR UPDATE で済ませている（値が同じだと affected=0 になるため）
	_, err := s.conn(ctx).ExecContext(ctx, q,
		o.ClientID, o.Location, o.DateFrom, o.DateTo, o.TotalPrice, o.Status, o.Note, o.UpdatedAt, o.ID)
	return apierr.FromMySQL(err, apierr.MySQLMessages{})
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status string, now time.Time) error {
	const q = `UPDATE rental_orders SET status = ?, updated_at = ? WHERE order_id = ?`
	_, err := s.conn(ctx).ExecContext(ctx, q, status, now, id)
	return apierr.FromMySQL(err, apierr.MySQLMessages{})
}

// DeleteOrder: 明細・入金は FK の ON DELETE CASCADE で消える
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	const q = `DELETE FROM rental_orders WHERE order_id = ?`
	res, err := s.conn(ctx).ExecContext(ctx, q, id)
	if err != nil {
		return apierr.FromMySQL(err, apierr.MySQLMessages{})
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return apierr.NotFound("rental order not found")
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, key orderKey, forUpdate bool) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM rental_orders WHERE order_id = ?`
	var arg any = key.ID
	if key.ULID != "" {
		q = `SELECT ` + orderColumns + ` FROM rental_orders WHERE order_ulid = ?`
		arg = key.ULID
	}
	if forUpdate {
		q += ` FOR UPDATE`
	}
	o, err := scanOrder(s.conn(ctx).QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("rental order not found")
	}
	return o, err
}

func (s *Store) ListOrders(ctx context.Context, f OrderFilter, p Page) ([]Order, int64, error) {
	var where strings.Builder
	args := []any{}
	where.WriteString(" WHERE 1=1")
	if f.Status != "" {
		where.WriteString(" AND status = ?")
		args = append(args, f.Status)
	}
	if f.ClientID != nil {
		where.WriteString(" AND client_id = ?")
		args = append(args, *f.ClientID)
	}
	if f.To != nil {
		where.WriteString(" AND date_from <= ?")
		args = append(args, *f.To)
	}
	if f.From != nil {
		where.WriteString(" AND date_to >= ?")
		args = append(args, *f.From)
	}

	var total int64
	if err := s.conn(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM rental_orders"+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		order = "ASC"
	}
	q := fmt.Sprintf(`SELECT %s FROM rental_orders%s ORDER BY order_id %s LIMIT ? OFFSET ?`, orderColumns, where.String(), order)
	rows, err := s.conn(ctx).QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

// ===== lines =====

// ReplaceLines は受注の明細を丸ごと入れ替える
func (s *Store) ReplaceLines(ctx context.Context, orderID int64, lines []Line) error {
	if _, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM rental_lines WHERE order_id = ?`, orderID); err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	vals := make([]string, 0, len(lines))
	args := make([]any, 0, len(lines)*4)
	for _, l := range lines {
		vals = append(vals, "(?, ?, ?, ?)")
		args = append(args, orderID, l.UnitTypeID, l.Quantity, l.UnitPrice)
	}
	q := `INSERT INTO rental_lines (order_id, unit_type_id, quantity, unit_price) VALUES ` + strings.Join(vals, ", ")
	if _, err := s.conn(ctx).ExecContext(ctx, q, args...); err != nil {
		return apierr.FromMySQL(err, lineMsgs)
	}
	return nil
}

func (s *Store) ListLines(ctx context.Context, orderIDs []int64) (map[int64][]Line, error) {
	out := map[int64][]Line{}
	if len(orderIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	q := fmt.Sprintf(`
	SELECT l.line_id, l.order_id, l.unit_type_id, t.name, l.quantity, l.unit_price
	FROM rental_lines l
	JOIN unit_types t ON t.unit_type_id = l.unit_type_id
	WHERE l.order_id IN (%s)
	ORDER BY l.order_id, l.line_id`, strings.TrimSuffix(strings.Repeat("?, ", len(orderIDs)), ", "))

	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.UnitTypeID, &l.UnitTypeName, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

// ===== payments =====

func (s *Store) InsertPayment(ctx context.Context, p *Payment) error {
	const q = `
	INSERT INTO payments (payment_ulid, order_id, paid_on, amount, method, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.conn(ctx).ExecContext(ctx, q, p.ULID, p.OrderID, p.PaidOn, p.Amount, p.Method, p.Status, p.CreatedAt)
	if err != nil {
		return apierr.FromMySQL(err, apierr.MySQLMessages{MissingRef: "rental order does not exist"})
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *Store) ListPayments(ctx context.Context, orderID int64) ([]Payment, error) {
	const q = `
	SELECT payment_id, payment_ulid, order_id, paid_on, amount, method, status, created_at
	FROM payments
	WHERE order_id = ?
	ORDER BY paid_on, payment_id`
	rows, err := s.conn(ctx).QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.ULID, &p.OrderID, &p.PaidOn, &p.Amount, &p.Method, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
