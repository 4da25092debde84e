package rentals

import (
	"time"

	"github.com/shopspring/decimal"

	"rental-backend/internal/inventory"
)

// ===== Requests =====

type LineInput struct {
	UnitTypeID int64              `json:"unit_type_id"`
	Quantity   inventory.Quantity `json:"quantity"`
	UnitPrice  *decimal.Decimal   `json:"unit_price,omitempty"` // 省略時は available バケツの単価
}

// OrderRequest は作成・更新（全置換）共通。日付は YYYY-MM-DD、null 可
type OrderRequest struct {
	ClientID   *int64           `json:"client_id,omitempty"`
	Location   string           `json:"location"`
	DateFrom   *string          `json:"date_from,omitempty"`
	DateTo     *string          `json:"date_to,omitempty"`
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"` // 省略時は明細合計
	Status     string           `json:"status,omitempty"`
	Note       *string          `json:"note,omitempty"`
	Lines      []LineInput      `json:"lines"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type PaymentRequest struct {
	Date   *string         `json:"date,omitempty"` // 省略時は当日
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	Status string          `json:"status,omitempty"` // 省略時は paid
}

// ListQuery は GET /rentals のクエリ。From/To は YYYY-MM-DD（任意）
type ListQuery struct {
	Status   string
	ClientID *int64
	From     string
	To       string
	Page     Page
}

// ===== Responses =====

type LineResponse struct {
	UnitTypeID   int64           `json:"unit_type_id"`
	UnitTypeName string          `json:"unit_type_name,omitempty"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

type PaymentResponse struct {
	PaymentULID string          `json:"payment_ulid"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderResponse struct {
	OrderID    int64             `json:"order_id"`
	OrderULID  string            `json:"order_ulid"`
	ClientID   *int64            `json:"client_id,omitempty"`
	Location   string            `json:"location"`
	DateFrom   *string           `json:"date_from"`
	DateTo     *string           `json:"date_to"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	Status     string            `json:"status"`
	Note       *string           `json:"note,omitempty"`
	Lines      []LineResponse    `json:"lines"`
	Payments   []PaymentResponse `json:"payments,omitempty"`
	Paid       *decimal.Decimal  `json:"paid,omitempty"`
	Balance    *decimal.Decimal  `json:"balance,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

const dateLayout = "2006-01-02"

func fmtDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func toLineResponses(ls []Line) []LineResponse {
	out := make([]LineResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, LineResponse{
			UnitTypeID:   l.UnitTypeID,
			UnitTypeName: l.UnitTypeName,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
		})
	}
	return out
}

func toPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		PaymentULID: p.ULID,
		Date:        p.PaidOn.Format(dateLayout),
		Amount:      p.Amount,
		Method:      p.Method,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
	}
}

func toOrderResponse(o Order, lines []Line) OrderResponse {
	return OrderResponse{
		OrderID:    o.ID,
		OrderULID:  o.ULID,
		ClientID:   o.ClientID,
		Location:   o.Location,
		DateFrom:   fmtDate(o.DateFrom),
		DateTo:     fmtDate(o.DateTo),
		TotalPrice: o.TotalPrice,
		Status:     o.Status,
		Note:       o.Note,
		Lines:      toLineResponses(lines),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
