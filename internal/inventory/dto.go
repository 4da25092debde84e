package inventory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quantity は JSON の数値と数字文字列の両方を受け付ける整数
type Quantity int64

func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		u, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("quantity: invalid string %s", s)
		}
		s = strings.TrimSpace(u)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("quantity must be an integer, got %s", s)
	}
	*q = Quantity(n)
	return nil
}

// ===== Requests =====

type CreateUnitTypeRequest struct {
	Name string `json:"name"`
}

type UpdateUnitTypeRequest struct {
	Name string `json:"name"`
}

// TransitionRequest は POST /inventory/transitions のボディ
type TransitionRequest struct {
	UnitTypeID  int64            `json:"unit_type_id"`
	Quantity    *Quantity        `json:"quantity,omitempty"`
	Action      string           `json:"action,omitempty"` // reprice | retire | move | default(空)
	TargetState string           `json:"target_state,omitempty"`
	SourceState string           `json:"source_state,omitempty"`
	DestState   string           `json:"dest_state,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Note        *string          `json:"note,omitempty"`
}

type AvailabilityQuery struct {
	From           string
	To             string
	ExcludeOrderID *int64
}

// BookingLine は受注側から渡される引当要求
type BookingLine struct {
	UnitTypeID int64
	Quantity   int64
}

// ===== Responses =====

type UnitTypeResponse struct {
	UnitTypeID int64     `json:"unit_type_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

type SummaryItem struct {
	UnitTypeID int64            `json:"unit_type_id"`
	Name       string           `json:"name"`
	Available  int64            `json:"available"`
	Rented     int64            `json:"rented"`
	InService  int64            `json:"in_service"`
	Other      map[string]int64 `json:"other,omitempty"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
}

type AvailabilityItem struct {
	UnitTypeID int64           `json:"unit_type_id"`
	Name       string          `json:"name"`
	Available  int64           `json:"available"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

type AvailabilityResponse struct {
	From  string             `json:"from"`
	To    string             `json:"to"`
	Items []AvailabilityItem `json:"items"`
}

type BucketResponse struct {
	BucketID     int64           `json:"bucket_id"`
	UnitTypeID   int64           `json:"unit_type_id"`
	UnitTypeName string          `json:"unit_type_name"`
	State        string          `json:"state"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

type TransitionResponse struct {
	Message      string           `json:"message"`
	MovementULID string           `json:"movement_ulid"`
	Action       string           `json:"action"`
	UnitTypeID   int64            `json:"unit_type_id"`
	Buckets      []BucketResponse `json:"buckets"`
}

type MovementResponse struct {
	MovementULID string           `json:"movement_ulid"`
	UnitTypeID   int64            `json:"unit_type_id"`
	Action       string           `json:"action"`
	FromState    *string          `json:"from_state,omitempty"`
	ToState      *string          `json:"to_state,omitempty"`
	Quantity     int64            `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	PerformedBy  *string          `json:"performed_by,omitempty"`
	Note         *string          `json:"note,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// OccupancyItem は監査ジョブ向け。Physical は全状態の合計
type OccupancyItem struct {
	UnitTypeID int64
	Name       string
	Physical   int64
	Committed  int64
}

func (o OccupancyItem) Overbooked() bool { return o.Committed > o.Physical }

func toUnitTypeResponse(u UnitType) UnitTypeResponse {
	return UnitTypeResponse{UnitTypeID: u.ID, Name: u.Name, CreatedAt: u.CreatedAt}
}

func toBucketResponse(b Bucket) BucketResponse {
	return BucketResponse{
		BucketID:     b.ID,
		UnitTypeID:   b.UnitTypeID,
		UnitTypeName: b.UnitTypeName,
		State:        b.State,
		Quantity:     b.Quantity,
		UnitPrice:    b.UnitPrice,
	}
}

func toMovementResponse(m Movement) MovementResponse {
	return MovementResponse{
		MovementULID: m.ULID,
		UnitTypeID:   m.UnitTypeID,
		Action:       m.Action,
		FromState:    m.FromState,
		ToState:      m.ToState,
		Quantity:     m.Quantity,
		UnitPrice:    m.UnitPrice,
		PerformedBy:  m.PerformedBy,
		Note:         m.Note,
		CreatedAt:    m.CreatedAt,
	}
}
