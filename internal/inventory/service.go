package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"rental-backend/internal/platform/apierr"
	"rental-backend/internal/platform/clock"
)

const (
	maxNameLen   = 100
	maxPageLimit = 200
)

type Service struct {
	repo  Repository
	clock clock.Clock
	id    clock.IDGen
	log   *zap.Logger
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	return NewServiceWith(NewStore(conn), clock.Real{}, clock.NewULIDGen(), log)
}

// NewServiceWith は依存を差し替えて組み立てる（テスト用）
func NewServiceWith(repo Repository, c clock.Clock, id clock.IDGen, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, clock: c, id: id, log: log}
}

// ===== unit types =====

func (s *Service) ListUnitTypes(ctx context.Context) ([]UnitTypeResponse, error) {
	types, err := s.repo.ListUnitTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UnitTypeResponse, 0, len(types))
	for _, t := range types {
		out = append(out, toUnitTypeResponse(t))
	}
	return out, nil
}

func (s *Service) CreateUnitType(ctx context.Context, in CreateUnitTypeRequest) (UnitTypeResponse, error) {
	name, key, err := validateName(in.Name)
	if err != nil {
		return UnitTypeResponse{}, err
	}

	var out UnitType
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.FindUnitTypeByKey(ctx, key)
		if err != nil {
			return err
		}
		if exists != nil {
			return apierr.Conflict(fmt.Sprintf("unit type %q already exists", exists.Name))
		}
		now := s.clock.Now()
		id, err := s.repo.InsertUnitType(ctx, name, key, now)
		if err != nil {
			return err
		}
		out = UnitType{ID: id, Name: name, NameKey: key, CreatedAt: now}
		return nil
	})
	if err != nil {
		return UnitTypeResponse{}, err
	}
	s.log.Info("unit type created", zap.Int64("unit_type_id", out.ID), zap.String("name", out.Name))
	return toUnitTypeResponse(out), nil
}

func (s *Service) RenameUnitType(ctx context.Context, id int64, in UpdateUnitTypeRequest) (UnitTypeResponse, error) {
	name, key, err := validateName(in.Name)
	if err != nil {
		return UnitTypeResponse{}, err
	}

	var out *UnitType
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.GetUnitType(ctx, id)
		if err != nil {
			return err
		}
		other, err := s.repo.FindUnitTypeByKey(ctx, key)
		if err != nil {
			return err
		}
		if other != nil && other.ID != id {
			return apierr.Conflict(fmt.Sprintf("unit type %q already exists", other.Name))
		}
		if err := s.repo.RenameUnitType(ctx, id, name, key); err != nil {
			return err
		}
		cur.Name, cur.NameKey = name, key
		out = cur
		return nil
	})
	if err != nil {
		return UnitTypeResponse{}, err
	}
	return toUnitTypeResponse(*out), nil
}

// DeleteUnitType: 在庫か受注明細から参照されていれば Conflict（論理削除はしない）
func (s *Service) DeleteUnitType(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetUnitType(ctx, id); err != nil {
			return err
		}
		ref, err := s.repo.UnitTypeReferenced(ctx, id)
		if err != nil {
			return err
		}
		if ref {
			return apierr.Conflict("unit type is referenced by stock or rentals")
		}
		return s.repo.DeleteUnitType(ctx, id)
	})
}

func validateName(raw string) (name, key string, err error) {
	name = strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", "", apierr.Invalid("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", "", apierr.Invalidf("name must be at most %d characters", maxNameLen)
	}
	return name, NameKey(name), nil
}

// ===== read models =====

// Summary は種別ごとの状態別台数（available / rented / in_service）と単価
func (s *Service) Summary(ctx context.Context) ([]SummaryItem, error) {
	var types []UnitType
	var buckets []Bucket
	err := s.repo.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if types, err = s.repo.ListUnitTypes(ctx); err != nil {
			return err
		}
		buckets, err = s.repo.ListBuckets(ctx, BucketFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}

	idx := make(map[int64]*SummaryItem, len(types))
	out := make([]SummaryItem, len(types))
	for i, t := range types {
		out[i] = SummaryItem{UnitTypeID: t.ID, Name: t.Name}
		idx[t.ID] = &out[i]
	}
	priced := map[int64]bool{}
	for _, b := range buckets {
		it, ok := idx[b.UnitTypeID]
		if !ok {
			continue
		}
		switch b.State {
		case StateAvailable:
			it.Available += b.Quantity
			it.UnitPrice = b.UnitPrice
			priced[b.UnitTypeID] = true
		case StateRented:
			it.Rented += b.Quantity
		case StateInService:
			it.InService += b.Quantity
		default:
			if it.Other == nil {
				it.Other = map[string]int64{}
			}
			it.Other[b.State] += b.Quantity
		}
		// available が無い種別は最初に見つかったバケツの単価を出す
		if !priced[b.UnitTypeID] && it.UnitPrice.IsZero() {
			it.UnitPrice = b.UnitPrice
		}
	}
	return out, nil
}

// ListUnits は状態・種別でバケツを絞り込む
func (s *Service) ListUnits(ctx context.Context, state string, unitTypeID *int64) ([]BucketResponse, error) {
	f := BucketFilter{UnitTypeID: unitTypeID}
	if st := NormalizeState(state); st != "" {
		f.State = &st
	}
	buckets, err := s.repo.ListBuckets(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]BucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, toBucketResponse(b))
	}
	return out, nil
}

func (s *Service) ListMovements(ctx context.Context, f MovementFilter, p Page) ([]MovementResponse, int64, error) {
	if f.Action != "" {
		f.Action = strings.ToLower(strings.TrimSpace(f.Action))
		if !validAction(f.Action) {
			return nil, 0, apierr.Invalidf("unknown action %q", f.Action)
		}
	}
	p = normalizePage(p)
	items, total, err := s.repo.ListMovements(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]MovementResponse, 0, len(items))
	for _, m := range items {
		out = append(out, toMovementResponse(m))
	}
	return out, total, nil
}

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
