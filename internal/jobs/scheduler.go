package jobs

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"rental-backend/internal/inventory"
	"rental-backend/internal/platform/clock"
	"rental-backend/internal/platform/db"
)

const auditTimeout = time.Minute

// OccupancySource は監査対象の占有状況を返す（inventory.Service）
type OccupancySource interface {
	Occupancy(ctx context.Context, day time.Time) ([]inventory.OccupancyItem, error)
}

// Scheduler は定期ジョブ（在庫の過剰予約監査）を回す
type Scheduler struct {
	cron  *cron.Cron
	inv   OccupancySource
	clock clock.Clock
	loc   *time.Location
	log   *zap.Logger
}

// NewScheduler: cfg.OccupancyAuditCron が空なら監査ジョブは登録しない
func NewScheduler(cfg db.JobsConfig, inv OccupancySource, c clock.Clock, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("jobs.timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{log.Sugar()})),
		),
		inv:   inv,
		clock: c,
		loc:   loc,
		log:   log,
	}

	if cfg.OccupancyAuditCron == "" {
		log.Info("occupancy audit disabled")
		return s, nil
	}
	if _, err := s.cron.AddFunc(cfg.OccupancyAuditCron, s.runAudit); err != nil {
		return nil, fmt.Errorf("jobs.occupancy_audit_cron %q: %w", cfg.OccupancyAuditCron, err)
	}
	log.Info("occupancy audit scheduled",
		zap.String("cron", cfg.OccupancyAuditCron),
		zap.String("timezone", loc.String()))
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop は実行中のジョブが終わるまで待つ（ctx で打ち切り）
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", zap.Error(ctx.Err()))
	}
}

func (s *Scheduler) runAudit() {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if _, err := s.AuditOccupancy(ctx); err != nil {
		s.log.Error("occupancy audit failed", zap.Error(err))
	}
}

// AuditOccupancy は今日（設定タイムゾーン）の引当数量が物理台数を超える種別を警告ログに出す。
// 戻り値は過剰予約の種別
func (s *Scheduler) AuditOccupancy(ctx context.Context) ([]inventory.OccupancyItem, error) {
	today := s.clock.Now().In(s.loc)
	items, err := s.inv.Occupancy(ctx, today)
	if err != nil {
		return nil, err
	}

	var over []inventory.OccupancyItem
	for _, it := range items {
		if !it.Overbooked() {
			continue
		}
		over = append(over, it)
		s.log.Warn("unit type overbooked",
			zap.String("day", today.Format("2006-01-02")),
			zap.Int64("unit_type_id", it.UnitTypeID),
			zap.String("name", it.Name),
			zap.Int64("physical", it.Physical),
			zap.Int64("committed", it.Committed))
	}
	s.log.Info("occupancy audit finished",
		zap.String("day", today.Format("2006-01-02")),
		zap.Int("types", len(items)),
		zap.Int("overbooked", len(over)))
	return over, nil
}

// cronLogger は cron.Logger を zap に繋ぐ
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
