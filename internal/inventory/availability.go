package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rental-backend/internal/platform/apierr"
)

const dateLayout = "2006-01-02"

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, apierr.Invalidf("%s is required (YYYY-MM-DD)", field)
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, apierr.Invalidf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

// committedByType は [from, to] と重なる有効な受注の数量を種別ごとに合計する。
// 終端ステータスの受注と exclude の受注は数えない
func committedByType(cs []Commitment, from, to time.Time, exclude *int64) map[int64]int64 {
	out := map[int64]int64{}
	for _, c := range cs {
		if exclude != nil && c.OrderID == *exclude {
			continue
		}
		if IsTerminal(c.Status) || !overlaps(c, from, to) {
			continue
		}
		out[c.UnitTypeID] += c.Quantity
	}
	return out
}

// Availability は期間内に新たに貸し出せる台数を種別ごとに返す。
// 総数は available バケツの台数のみ（in_service は数えない）
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (AvailabilityResponse, error) {
	from, err := parseDate("from", q.From)
	if err != nil {
		return AvailabilityResponse{}, err
	}
	to, err := parseDate("to", q.To)
	if err != nil {
		return AvailabilityResponse{}, err
	}
	if to.Before(from) {
		return AvailabilityResponse{}, apierr.Invalid("to must not be before from")
	}

	var types []UnitType
	var buckets []Bucket
	var cs []Commitment
	err = s.repo.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if types, err = s.repo.ListUnitTypes(ctx); err != nil {
			return err
		}
		st := StateAvailable
		if buckets, err = s.repo.ListBuckets(ctx, BucketFilter{State: &st}); err != nil {
			return err
		}
		cs, err = s.repo.ListCommitments(ctx, from, to)
		return err
	})
	if err != nil {
		return AvailabilityResponse{}, err
	}

	stock := map[int64]Bucket{}
	for _, b := range buckets {
		stock[b.UnitTypeID] = b
	}
	committed := committedByType(cs, from, to, q.ExcludeOrderID)

	items := make([]AvailabilityItem, 0, len(types))
	for _, t := range types {
		b := stock[t.ID]
		items = append(items, AvailabilityItem{
			UnitTypeID: t.ID,
			Name:       t.Name,
			Available:  max(0, b.Quantity-committed[t.ID]),
			UnitPrice:  b.UnitPrice,
		})
	}
	return AvailabilityResponse{From: from.Format(dateLayout), To: to.Format(dateLayout), Items: items}, nil
}

// ===== booking (rentals から同一Tx内で呼ばれる) =====

// PrepareBooking は明細で使う種別の行を id 昇順でロックし、available バケツの単価を返す。
// 存在しない種別があれば NotFound。ctx に Tx が載っている前提
func (s *Service) PrepareBooking(ctx context.Context, unitTypeIDs []int64) (map[int64]decimal.Decimal, error) {
	ids := uniqueSorted(unitTypeIDs)
	if _, err := s.repo.LockUnitTypes(ctx, ids); err != nil {
		return nil, err
	}
	st := StateAvailable
	buckets, err := s.repo.ListBuckets(ctx, BucketFilter{State: &st, ForShare: true})
	if err != nil {
		return nil, err
	}
	prices := make(map[int64]decimal.Decimal, len(ids))
	for _, id := range ids {
		prices[id] = decimal.Zero
	}
	for _, b := range buckets {
		if _, ok := prices[b.UnitTypeID]; ok {
			prices[b.UnitTypeID] = b.UnitPrice
		}
	}
	return prices, nil
}

// CheckBooking は要求数量が期間内の空き台数に収まるか確認する。
// PrepareBooking と同じ Tx で呼ぶこと（種別行ロックで同種別の予約が直列化される）。
// 受注明細は非ロックで読むので、Tx は READ COMMITTED で開始しておく（db.WithTxOptions）
func (s *Service) CheckBooking(ctx context.Context, from, to time.Time, excludeOrderID *int64, lines []BookingLine) error {
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) {
		return apierr.Invalid("date_to must not be before date_from")
	}

	requested := map[int64]int64{}
	for _, l := range lines {
		requested[l.UnitTypeID] += l.Quantity
	}
	if len(requested) == 0 {
		return nil
	}

	st := StateAvailable
	buckets, err := s.repo.ListBuckets(ctx, BucketFilter{State: &st, ForShare: true})
	if err != nil {
		return err
	}
	cs, err := s.repo.ListCommitments(ctx, from, to)
	if err != nil {
		return err
	}

	stock := map[int64]Bucket{}
	for _, b := range buckets {
		stock[b.UnitTypeID] = b
	}
	committed := committedByType(cs, from, to, excludeOrderID)

	for _, id := range uniqueSorted(keys(requested)) {
		free := max(0, stock[id].Quantity-committed[id])
		if requested[id] > free {
			s.log.Info("booking rejected",
				zap.Int64("unit_type_id", id),
				zap.Int64("requested", requested[id]),
				zap.Int64("available", free))
			return apierr.InsufficientStock(fmt.Sprintf(
				"unit type %d: requested %d, available %d for %s..%s",
				id, requested[id], free, from.Format(dateLayout), to.Format(dateLayout)))
		}
	}
	return nil
}

// Occupancy は day 時点の種別ごとの物理台数（全状態の合計）と引当数量を返す
func (s *Service) Occupancy(ctx context.Context, day time.Time) ([]OccupancyItem, error) {
	day = dateOnly(day)
	var types []UnitType
	var buckets []Bucket
	var cs []Commitment
	err := s.repo.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if types, err = s.repo.ListUnitTypes(ctx); err != nil {
			return err
		}
		if buckets, err = s.repo.ListBuckets(ctx, BucketFilter{}); err != nil {
			return err
		}
		cs, err = s.repo.ListCommitments(ctx, day, day)
		return err
	})
	if err != nil {
		return nil, err
	}

	physical := map[int64]int64{}
	for _, b := range buckets {
		physical[b.UnitTypeID] += b.Quantity
	}
	committed := committedByType(cs, day, day, nil)

	out := make([]OccupancyItem, 0, len(types))
	for _, t := range types {
		out = append(out, OccupancyItem{
			UnitTypeID: t.ID,
			Name:       t.Name,
			Physical:   physical[t.ID],
			Committed:  committed[t.ID],
		})
	}
	return out, nil
}

func uniqueSorted(ids []int64) []int64 {
	seen := map[int64]bool{}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func keys(m map[int64]int64) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
