package rentals

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending = "pending"
	PaymentPaid   = "paid"
)

// Order は rental_orders の1行
type Order struct {
	ID         int64
	ULID       string
	ClientID   *int64
	Location   string
	DateFrom   *time.Time
	DateTo     *time.Time
	TotalPrice decimal.Decimal
	Status     string
	Note       *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Line は rental_lines の1行
type Line struct {
	ID           int64
	OrderID      int64
	UnitTypeID   int64
	UnitTypeName string
	Quantity     int64
	UnitPrice    decimal.Decimal
}

type Payment struct {
	ID        int64
	ULID      string
	OrderID   int64
	PaidOn    time.Time
	Amount    decimal.Decimal
	Method    string
	Status    string
	CreatedAt time.Time
}

// 受注一覧の検索条件。From/To は期間が重なる受注を拾う
type OrderFilter struct {
	Status   string
	ClientID *int64
	From     *time.Time
	To       *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

// orderKey は :key パスパラメータ（数値IDか ULID）
type orderKey struct {
	ID   int64
	ULID string
}
