package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// 既知の在庫状態。これ以外の文字列も move で作れる（カスタム状態）
const (
	StateAvailable = "available"
	StateRented    = "rented"
	StateInService = "in_service"
)

// 在庫変動アクション
const (
	ActionReprice = "reprice"
	ActionRetire  = "retire"
	ActionMove    = "move"
	ActionDefault = "default"
)

// 受注ステータス（在庫計算で参照するものだけ）
const (
	StatusFinished       = "finished"
	StatusCancelled      = "cancelled"
	StatusReadyForPickup = "ready_for_pickup"
)

type UnitType struct {
	ID        int64
	Name      string
	NameKey   string
	CreatedAt time.Time
}

// Bucket は stock_buckets の1行（種別×状態ごとの台数）
type Bucket struct {
	ID           int64
	UnitTypeID   int64
	UnitTypeName string
	State        string
	Quantity     int64
	UnitPrice    decimal.Decimal
}

// Commitment は受注明細から導出される引当（1明細=1行）
type Commitment struct {
	OrderID    int64
	UnitTypeID int64
	Quantity   int64
	DateFrom   *time.Time
	DateTo     *time.Time
	Status     string
}

type Movement struct {
	ID          int64
	ULID        string
	UnitTypeID  int64
	Action      string
	FromState   *string
	ToState     *string
	Quantity    int64
	UnitPrice   *decimal.Decimal
	PerformedBy *string
	Note        *string
	CreatedAt   time.Time
}

type BucketFilter struct {
	UnitTypeID *int64
	State      *string
	// ForShare は LOCK IN SHARE MODE で最新のコミット済み行を読む（予約チェック用）
	ForShare bool
}

type MovementFilter struct {
	UnitTypeID *int64
	Action     string
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

// ===== normalize =====

// NameKey は種別名の一意キー。大文字小文字と前後空白を無視する。
// cases.Caser はゴルーチン間で共有できないので毎回作る。
func NameKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// NormalizeState: "In Service" / "in-service" → "in_service"
func NormalizeState(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

var statusAliases = map[string]string{
	"completed":       StatusFinished,
	"complete":        StatusFinished,
	"done":            StatusFinished,
	"canceled":        StatusCancelled,
	"ready_to_pickup": StatusReadyForPickup,
	"awaiting_pickup": StatusReadyForPickup,
}

// NormalizeStatus は受注ステータスを正規化し、別名を正式名に寄せる
func NormalizeStatus(s string) string {
	n := NormalizeState(s)
	if alias, ok := statusAliases[n]; ok {
		return alias
	}
	return n
}

// IsTerminal: この状態の受注は在庫を占有しない
func IsTerminal(status string) bool {
	switch NormalizeStatus(status) {
	case StatusFinished, StatusCancelled, StatusReadyForPickup:
		return true
	}
	return false
}

// isCommittedState: default 遷移でここへ入れる時は available から引き落とす
func isCommittedState(state string) bool {
	return state == StateRented || state == StateInService
}

// overlaps は閉区間どうしの重なり判定。日付が欠けた受注は重ならない扱い
func overlaps(c Commitment, from, to time.Time) bool {
	if c.DateFrom == nil || c.DateTo == nil {
		return false
	}
	return !dateOnly(*c.DateFrom).After(to) && !dateOnly(*c.DateTo).Before(from)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
