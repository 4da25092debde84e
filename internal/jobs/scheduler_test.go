package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rental-backend/internal/inventory"
	"rental-backend/internal/platform/clock"
	"rental-backend/internal/platform/db"
)

type fakeOccupancy struct {
	items []inventory.OccupancyItem
	err   error
	day   time.Time
}

func (f *fakeOccupancy) Occupancy(_ context.Context, day time.Time) ([]inventory.OccupancyItem, error) {
	f.day = day
	return f.items, f.err
}

func TestNewScheduler(t *testing.T) {
	src := &fakeOccupancy{}
	c := clock.NewFixed(time.Now())

	s, err := NewScheduler(db.JobsConfig{OccupancyAuditCron: "0 6 * * *", Timezone: "UTC"}, src, c, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)

	s, err = NewScheduler(db.JobsConfig{Timezone: "UTC"}, src, c, nil)
	require.NoError(t, err)
	assert.Empty(t, s.cron.Entries())

	_, err = NewScheduler(db.JobsConfig{OccupancyAuditCron: "every morning", Timezone: "UTC"}, src, c, nil)
	assert.Error(t, err)

	_, err = NewScheduler(db.JobsConfig{OccupancyAuditCron: "0 6 * * *", Timezone: "Mars/Olympus"}, src, c, nil)
	assert.Error(t, err)
}

func TestAuditOccupancy(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	src := &fakeOccupancy{items: []inventory.OccupancyItem{
		{UnitTypeID: 1, Name: "Standard", Physical: 10, Committed: 10},
		{UnitTypeID: 2, Name: "Deluxe", Physical: 2, Committed: 3},
		{UnitTypeID: 3, Name: "Trailer", Physical: 0, Committed: 0},
	}}
	// UTC 16:00 は東京では翌日
	now := time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)
	s, err := NewScheduler(db.JobsConfig{Timezone: "Asia/Tokyo"}, src, clock.NewFixed(now), zap.New(core))
	require.NoError(t, err)

	over, err := s.AuditOccupancy(context.Background())
	require.NoError(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, int64(2), over[0].UnitTypeID)
	assert.Equal(t, 2, src.day.Day())

	warns := logs.FilterMessage("unit type overbooked").All()
	require.Len(t, warns, 1)
	assert.Equal(t, zapcore.WarnLevel, warns[0].Level)
	assert.Equal(t, "Deluxe", warns[0].ContextMap()["name"])
	assert.Equal(t, "2025-06-02", warns[0].ContextMap()["day"])
}

func TestAuditOccupancy_Error(t *testing.T) {
	src := &fakeOccupancy{err: errors.New("db down")}
	s, err := NewScheduler(db.JobsConfig{Timezone: "UTC"}, src, clock.NewFixed(time.Now()), nil)
	require.NoError(t, err)

	_, err = s.AuditOccupancy(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestStop_WaitsOrTimesOut(t *testing.T) {
	s, err := NewScheduler(db.JobsConfig{Timezone: "UTC"}, &fakeOccupancy{}, clock.Real{}, nil)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
