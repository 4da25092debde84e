package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rental-backend/internal/platform/apierr"
)

func validAction(a string) bool {
	switch a {
	case ActionReprice, ActionRetire, ActionMove, ActionDefault:
		return true
	}
	return false
}

// transitionPlan は入力検証後の遷移内容。ここまでで弾けば何も書き込まない
type transitionPlan struct {
	action  string
	typeID  int64
	qty     int64
	from    string
	to      string
	price   *decimal.Decimal
	note    *string
	actorID *string
}

func planTransition(in TransitionRequest, actor string) (transitionPlan, error) {
	p := transitionPlan{
		action: strings.ToLower(strings.TrimSpace(in.Action)),
		typeID: in.UnitTypeID,
		price:  in.Price,
		note:   in.Note,
	}
	if p.action == "" {
		p.action = ActionDefault
	}
	if !validAction(p.action) {
		return p, apierr.Invalidf("unknown action %q", in.Action)
	}
	if p.typeID <= 0 {
		return p, apierr.Invalid("unit_type_id is required")
	}
	if actor != "" {
		p.actorID = &actor
	}
	if p.price != nil && p.price.IsNegative() {
		return p, apierr.Invalid("price must be >= 0")
	}

	if p.action == ActionReprice {
		if p.price == nil {
			return p, apierr.Invalid("price is required for reprice")
		}
		return p, nil
	}

	if in.Quantity == nil || *in.Quantity <= 0 {
		return p, apierr.Invalid("quantity must be a positive integer")
	}
	p.qty = int64(*in.Quantity)

	target := NormalizeState(in.TargetState)
	switch p.action {
	case ActionRetire:
		p.from = firstNonEmpty(NormalizeState(in.SourceState), target, StateAvailable)
	case ActionMove:
		p.from = firstNonEmpty(NormalizeState(in.SourceState), StateAvailable)
		p.to = firstNonEmpty(NormalizeState(in.DestState), target)
		if p.to == "" {
			return p, apierr.Invalid("dest_state is required for move")
		}
		if p.from == p.to {
			return p, apierr.Invalid("source and destination state must differ")
		}
	case ActionDefault:
		if target == "" {
			return p, apierr.Invalid("target_state is required")
		}
		p.to = target
		if isCommittedState(target) {
			p.from = StateAvailable
		}
	}
	return p, nil
}

// ApplyTransition は在庫変動を1トランザクションで適用し、移動履歴を1行残す
func (s *Service) ApplyTransition(ctx context.Context, in TransitionRequest, actor string) (TransitionResponse, error) {
	p, err := planTransition(in, actor)
	if err != nil {
		return TransitionResponse{}, err
	}

	var res TransitionResponse
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetUnitType(ctx, p.typeID); err != nil {
			return err
		}

		var recorded *decimal.Decimal
		switch p.action {
		case ActionReprice:
			if _, err := s.repo.RepriceUnitType(ctx, p.typeID, *p.price); err != nil {
				return err
			}
			recorded = p.price

		case ActionRetire:
			src, err := s.take(ctx, p.typeID, p.from, p.qty)
			if err != nil {
				return err
			}
			recorded = &src.UnitPrice

		case ActionMove:
			src, err := s.take(ctx, p.typeID, p.from, p.qty)
			if err != nil {
				return err
			}
			// 新規作成時のみ移動元の単価を引き継ぐ
			if err := s.repo.UpsertBucket(ctx, p.typeID, p.to, p.qty, src.UnitPrice, nil); err != nil {
				return err
			}
			recorded = &src.UnitPrice

		case ActionDefault:
			if p.from != "" {
				if _, err := s.take(ctx, p.typeID, p.from, p.qty); err != nil {
					return err
				}
			}
			insertPrice := decimal.Zero
			if p.price != nil {
				insertPrice = *p.price
			}
			if err := s.repo.UpsertBucket(ctx, p.typeID, p.to, p.qty, insertPrice, p.price); err != nil {
				return err
			}
			recorded = p.price
		}

		mv := &Movement{
			ULID:        s.id.NewULID(s.clock.Now()),
			UnitTypeID:  p.typeID,
			Action:      p.action,
			FromState:   strPtr(p.from),
			ToState:     strPtr(p.to),
			Quantity:    p.qty,
			UnitPrice:   recorded,
			PerformedBy: p.actorID,
			Note:        p.note,
			CreatedAt:   s.clock.Now(),
		}
		if err := s.repo.InsertMovement(ctx, mv); err != nil {
			return err
		}

		buckets, err := s.repo.ListBuckets(ctx, BucketFilter{UnitTypeID: &p.typeID})
		if err != nil {
			return err
		}
		res = TransitionResponse{
			Message:      transitionMessage(p),
			MovementULID: mv.ULID,
			Action:       p.action,
			UnitTypeID:   p.typeID,
			Buckets:      make([]BucketResponse, 0, len(buckets)),
		}
		for _, b := range buckets {
			res.Buckets = append(res.Buckets, toBucketResponse(b))
		}
		return nil
	})
	if err != nil {
		if apierr.Is(err, apierr.CodeInsufficientStock) {
			s.log.Info("transition rejected",
				zap.String("action", p.action),
				zap.Int64("unit_type_id", p.typeID),
				zap.String("state", p.from),
				zap.Int64("quantity", p.qty))
		}
		return TransitionResponse{}, err
	}
	s.log.Info("transition applied",
		zap.String("action", p.action),
		zap.Int64("unit_type_id", p.typeID),
		zap.String("from", p.from),
		zap.String("to", p.to),
		zap.Int64("quantity", p.qty))
	return res, nil
}

// take はバケツから qty を引き落とす。ちょうど0になったバケツは削除する
func (s *Service) take(ctx context.Context, typeID int64, state string, qty int64) (*Bucket, error) {
	b, err := s.repo.LockBucket(ctx, typeID, state)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apierr.InsufficientStock(fmt.Sprintf("no %q stock for unit type %d", state, typeID))
	}
	if b.Quantity < qty {
		return nil, apierr.InsufficientStock(fmt.Sprintf("only %d in %q, requested %d", b.Quantity, state, qty))
	}
	if err := s.repo.DecrementBucket(ctx, b.ID, qty); err != nil {
		return nil, err
	}
	// 同時実行で別Txが先に減らしている場合もあるので、読んだ値に関係なく0なら消す
	if err := s.repo.DeleteBucketIfEmpty(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

func transitionMessage(p transitionPlan) string {
	switch p.action {
	case ActionReprice:
		return fmt.Sprintf("price set to %s", p.price.StringFixed(2))
	case ActionRetire:
		return fmt.Sprintf("retired %d from %s", p.qty, p.from)
	case ActionMove:
		return fmt.Sprintf("moved %d from %s to %s", p.qty, p.from, p.to)
	default:
		return fmt.Sprintf("added %d to %s", p.qty, p.to)
	}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
