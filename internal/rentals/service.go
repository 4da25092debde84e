package rentals

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rental-backend/internal/inventory"
	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/clock"
)

const (
	StatusConfirmed = "confirmed"
	StatusDelivered = "delivered"

	maxLocationLen = 255
	maxNoteLen     = 1000
	maxPageLimit   = 200
)

// 受け付けるステータス（正規化後）。終端は inventory.IsTerminal が判定する
var knownStatuses = map[string]bool{
	StatusPending:                  true,
	StatusConfirmed:                true,
	StatusDelivered:                true,
	inventory.StatusReadyForPickup: true,
	inventory.StatusFinished:       true,
	inventory.StatusCancelled:      true,
}

// Inventory は受注登録時に在庫側へ問い合わせる口。ctx の Tx を共有する
type Inventory interface {
	PrepareBooking(ctx context.Context, unitTypeIDs []int64) (map[int64]decimal.Decimal, error)
	CheckBooking(ctx context.Context, from, to time.Time, excludeOrderID *int64, lines []inventory.BookingLine) error
}

type Service struct {
	repo  Repository
	inv   Inventory
	clock clock.Clock
	id    clock.IDGen
	log   *zap.Logger
}

func NewService(conn *sql.DB, inv Inventory, log *zap.Logger) *Service {
	return NewServiceWith(NewStore(conn), inv, clock.Real{}, clock.NewULIDGen(), log)
}

func NewServiceWith(repo Repository, inv Inventory, c clock.Clock, id clock.IDGen, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, inv: inv, clock: c, id: id, log: log}
}

// ===== input =====

// orderDraft は検証済みの OrderRequest
type orderDraft struct {
	clientID *int64
	location string
	from     *time.Time
	to       *time.Time
	total    *decimal.Decimal
	status   string
	note     *string
	lines    []lineDraft
}

type lineDraft struct {
	unitTypeID int64
	qty        int64
	price      *decimal.Decimal
}

func parseOrder(in OrderRequest) (orderDraft, error) {
	d := orderDraft{
		clientID: in.ClientID,
		location: strings.TrimSpace(in.Location),
		total:    in.TotalPrice,
		note:     in.Note,
	}
	if d.location == "" {
		return d, apierr.Invalid("location is required")
	}
	if len([]rune(d.location)) > maxLocationLen {
		return d, apierr.Invalidf("location must be at most %d characters", maxLocationLen)
	}
	if d.note != nil && len([]rune(*d.note)) > maxNoteLen {
		return d, apierr.Invalidf("note must be at most %d characters", maxNoteLen)
	}
	if d.clientID != nil && *d.clientID <= 0 {
		return d, apierr.Invalid("client_id must be a positive integer")
	}

	var err error
	if d.from, err = parseOptionalDate("date_from", in.DateFrom); err != nil {
		return d, err
	}
	if d.to, err = parseOptionalDate("date_to", in.DateTo); err != nil {
		return d, err
	}
	if d.from != nil && d.to != nil && d.to.Before(*d.from) {
		return d, apierr.Invalid("date_to must not be before date_from")
	}

	if d.status, err = parseStatus(in.Status, StatusPending); err != nil {
		return d, err
	}
	if d.total != nil && d.total.IsNegative() {
		return d, apierr.Invalid("total_price must be >= 0")
	}

	for i, l := range in.Lines {
		if l.UnitTypeID <= 0 {
			return d, apierr.Invalidf("lines[%d].unit_type_id is required", i)
		}
		if l.Quantity <= 0 {
			return d, apierr.Invalidf("lines[%d].quantity must be a positive integer", i)
		}
		if l.UnitPrice != nil && l.UnitPrice.IsNegative() {
			return d, apierr.Invalidf("lines[%d].unit_price must be >= 0", i)
		}
		d.lines = append(d.lines, lineDraft{unitTypeID: l.UnitTypeID, qty: int64(l.Quantity), price: l.UnitPrice})
	}
	return d, nil
}

func parseOptionalDate(field string, v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(*v), time.UTC)
	if err != nil {
		return nil, apierr.Invalidf("%s must be YYYY-MM-DD", field)
	}
	return &t, nil
}

func parseStatus(raw, def string) (string, error) {
	st := inventory.NormalizeStatus(raw)
	if st == "" {
		st = def
	}
	if !knownStatuses[st] {
		return "", apierr.Invalidf("unknown status %q", raw)
	}
	return st, nil
}

// parseKey は数値IDか ULID を受け付ける
func parseKey(raw string) (orderKey, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n <= 0 {
			return orderKey{}, apierr.Invalid("order id must be a positive integer")
		}
		return orderKey{ID: n}, nil
	}
	u, err := ulid.ParseStrict(raw)
	if err != nil {
		return orderKey{}, apierr.Invalid("order key must be a numeric id or a ULID")
	}
	return orderKey{ULID: u.String()}, nil
}

// ===== booking =====

// book は明細単価と合計を確定し、必要なら空き台数を検証する。ctx の Tx 内で呼ぶ
func (s *Service) book(ctx context.Context, d orderDraft, exclude *int64) ([]Line, decimal.Decimal, error) {
	lines := make([]Line, 0, len(d.lines))
	if len(d.lines) > 0 {
		ids := make([]int64, 0, len(d.lines))
		for _, l := range d.lines {
			ids = append(ids, l.unitTypeID)
		}
		prices, err := s.inv.PrepareBooking(ctx, ids)
		if err != nil {
			return nil, decimal.Zero, err
		}
		for _, l := range d.lines {
			price := prices[l.unitTypeID]
			if l.price != nil {
				price = *l.price
			}
			lines = append(lines, Line{UnitTypeID: l.unitTypeID, Quantity: l.qty, UnitPrice: price})
		}
	}

	total := decimal.Zero
	if d.total != nil {
		total = *d.total
	} else {
		for _, l := range lines {
			total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
		}
	}

	if err := s.checkAvailability(ctx, d.status, d.from, d.to, exclude, lines); err != nil {
		return nil, decimal.Zero, err
	}
	return lines, total, nil
}

// checkAvailability: 終端ステータスや日付未定の受注は在庫を占有しないので検証しない
func (s *Service) checkAvailability(ctx context.Context, status string, from, to *time.Time, exclude *int64, lines []Line) error {
	if inventory.IsTerminal(status) || from == nil || to == nil || len(lines) == 0 {
		return nil
	}
	bl := make([]inventory.BookingLine, 0, len(lines))
	for _, l := range lines {
		bl = append(bl, inventory.BookingLine{UnitTypeID: l.UnitTypeID, Quantity: l.Quantity})
	}
	return s.inv.CheckBooking(ctx, *from, *to, exclude, bl)
}

// ===== orders =====

func (s *Service) Create(ctx context.Context, in OrderRequest) (OrderResponse, error) {
	d, err := parseOrder(in)
	if err != nil {
		return OrderResponse{}, err
	}

	var res OrderResponse
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		lines, total, err := s.book(ctx, d, nil)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		o := Order{
			ULID:       s.id.NewULID(now),
			ClientID:   d.clientID,
			Location:   d.location,
			DateFrom:   d.from,
			DateTo:     d.to,
			TotalPrice: total,
			Status:     d.status,
			Note:       d.note,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if o.ID, err = s.repo.InsertOrder(ctx, &o); err != nil {
			return err
		}
		if err := s.repo.ReplaceLines(ctx, o.ID, lines); err != nil {
			return err
		}
		saved, err := s.repo.ListLines(ctx, []int64{o.ID})
		if err != nil {
			return err
		}
		res = toOrderResponse(o, saved[o.ID])
		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}
	s.log.Info("rental order created",
		zap.Int64("order_id", res.OrderID),
		zap.String("order_ulid", res.OrderULID),
		zap.String("status", res.Status),
		zap.Int("lines", len(res.Lines)))
	return res, nil
}

// Update はヘッダと明細を丸ごと置き換える。空き検証では自分自身を除外する
func (s *Service) Update(ctx context.Context, rawKey string, in OrderRequest) (OrderResponse, error) {
	key, err := parseKey(rawKey)
	if err != nil {
		return OrderResponse{}, err
	}
	d, err := parseOrder(in)
	if err != nil {
		return OrderResponse{}, err
	}

	var res OrderResponse
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, key, true)
		if err != nil {
			return err
		}
		lines, total, err := s.book(ctx, d, &o.ID)
		if err != nil {
			return err
		}
		o.ClientID = d.clientID
		o.Location = d.location
		o.DateFrom, o.DateTo = d.from, d.to
		o.TotalPrice = total
		o.Status = d.status
		o.Note = d.note
		o.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.repo.ReplaceLines(ctx, o.ID, lines); err != nil {
			return err
		}
		saved, err := s.repo.ListLines(ctx, []int64{o.ID})
		if err != nil {
			return err
		}
		res = toOrderResponse(*o, saved[o.ID])
		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}
	s.log.Info("rental order updated", zap.Int64("order_id", res.OrderID), zap.String("status", res.Status))
	return res, nil
}

// ChangeStatus: 終端から有効ステータスへ戻す時は空き台数を再検証する
func (s *Service) ChangeStatus(ctx context.Context, rawKey string, in StatusRequest) (OrderResponse, error) {
	key, err := parseKey(rawKey)
	if err != nil {
		return OrderResponse{}, err
	}
	if strings.TrimSpace(in.Status) == "" {
		return OrderResponse{}, apierr.Invalid("status is required")
	}
	next, err := parseStatus(in.Status, "")
	if err != nil {
		return OrderResponse{}, err
	}

	var res OrderResponse
	var prev string
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, key, true)
		if err != nil {
			return err
		}
		prev = o.Status
		all, err := s.repo.ListLines(ctx, []int64{o.ID})
		if err != nil {
			return err
		}
		lines := all[o.ID]

		if inventory.IsTerminal(prev) && !inventory.IsTerminal(next) && len(lines) > 0 {
			ids := make([]int64, 0, len(lines))
			for _, l := range lines {
				ids = append(ids, l.UnitTypeID)
			}
			if _, err := s.inv.PrepareBooking(ctx, ids); err != nil {
				return err
			}
			if err := s.checkAvailability(ctx, next, o.DateFrom, o.DateTo, &o.ID, lines); err != nil {
				return err
			}
		}

		if next != prev {
			o.Status = next
			o.UpdatedAt = s.clock.Now()
			if err := s.repo.UpdateStatus(ctx, o.ID, next, o.UpdatedAt); err != nil {
				return err
			}
		}
		res = toOrderResponse(*o, lines)
		return nil
	})
	if err != nil {
		return OrderResponse{}, err
	}
	s.log.Info("rental order status changed",
		zap.Int64("order_id", res.OrderID),
		zap.String("from", prev),
		zap.String("to", next))
	return res, nil
}

func (s *Service) Delete(ctx context.Context, rawKey string) error {
	key, err := parseKey(rawKey)
	if err != nil {
		return err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, key, true)
		if err != nil {
			return err
		}
		id = o.ID
		return s.repo.DeleteOrder(ctx, o.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info("rental order deleted", zap.Int64("order_id", id))
	return nil
}

// Get は明細・入金・入金済み合計・残額付きで返す
func (s *Service) Get(ctx context.Context, rawKey string) (OrderResponse, error) {
	key, err := parseKey(rawKey)
	if err != nil {
		return OrderResponse{}, err
	}

	var o *Order
	var lines map[int64][]Line
	var payments []Payment
	err = s.repo.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.repo.GetOrder(ctx, key, false); err != nil {
			return err
		}
		if lines, err = s.repo.ListLines(ctx, []int64{o.ID}); err != nil {
			return err
		}
		payments, err = s.repo.ListPayments(ctx, o.ID)
		return err
	})
	if err != nil {
		return OrderResponse{}, err
	}

	res := toOrderResponse(*o, lines[o.ID])
	paid := decimal.Zero
	res.Payments = make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		res.Payments = append(res.Payments, toPaymentResponse(p))
		if p.Status == PaymentPaid {
			paid = paid.Add(p.Amount)
		}
	}
	balance := o.TotalPrice.Sub(paid)
	res.Paid, res.Balance = &paid, &balance
	return res, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]OrderResponse, int64, error) {
	f := OrderFilter{ClientID: q.ClientID}
	if strings.TrimSpace(q.Status) != "" {
		st, err := parseStatus(q.Status, "")
		if err != nil {
			return nil, 0, err
		}
		f.Status = st
	}
	var err error
	if f.From, err = parseOptionalDate("from", &q.From); err != nil {
		return nil, 0, err
	}
	if f.To, err = parseOptionalDate("to", &q.To); err != nil {
		return nil, 0, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apierr.Invalid("to must not be before from")
	}

	var orders []Order
	var total int64
	var lines map[int64][]Line
	err = s.repo.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if orders, total, err = s.repo.ListOrders(ctx, f, normalizePage(q.Page)); err != nil {
			return err
		}
		ids := make([]int64, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		lines, err = s.repo.ListLines(ctx, ids)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o, lines[o.ID]))
	}
	return out, total, nil
}

// ===== payments =====

func (s *Service) AddPayment(ctx context.Context, rawKey string, in PaymentRequest) (PaymentResponse, error) {
	key, err := parseKey(rawKey)
	if err != nil {
		return PaymentResponse{}, err
	}
	if !in.Amount.IsPositive() {
		return PaymentResponse{}, apierr.Invalid("amount must be > 0")
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		return PaymentResponse{}, apierr.Invalid("method is required")
	}
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = PaymentPaid
	}
	now := s.clock.Now()
	paidOn := dateOf(now)
	if d, err := parseOptionalDate("date", in.Date); err != nil {
		return PaymentResponse{}, err
	} else if d != nil {
		paidOn = *d
	}

	var p Payment
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, key, true)
		if err != nil {
			return err
		}
		p = Payment{
			ULID:      s.id.NewULID(now),
			OrderID:   o.ID,
			PaidOn:    paidOn,
			Amount:    in.Amount,
			Method:    method,
			Status:    status,
			CreatedAt: now,
		}
		return s.repo.InsertPayment(ctx, &p)
	})
	if err != nil {
		return PaymentResponse{}, err
	}
	s.log.Info("payment recorded",
		zap.Int64("order_id", p.OrderID),
		zap.String("payment_ulid", p.ULID),
		zap.String("amount", p.Amount.StringFixed(2)))
	return toPaymentResponse(p), nil
}

func (s *Service) ListPayments(ctx context.Context, rawKey string) ([]PaymentResponse, error) {
	key, err := parseKey(rawKey)
	if err != nil {
		return nil, err
	}
	var payments []Payment
	err = s.repo.ReadOnly(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, key, false)
		if err != nil {
			return err
		}
		payments, err = s.repo.ListPayments(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out, nil
}

// ===== helpers =====

func normalizePage(p Page) Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
