// Package store persists profiler samples and grid readings in SQLite via
// gorm and answers the time-window queries the aggregator needs.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ja7ad/ecotrace/pkg/profiler"
)

// busyTimeoutMs is how long a writer waits on a locked database.
const busyTimeoutMs = 5000

// Store is safe for concurrent use. All writes go through a single
// connection, so appends from overlapping cycles serialize on it.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates the
// schema. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoPath
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyTimeoutMs)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Sample{}, &CarbonIntensity{}, &PowerBreakdown{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Append stores one row per metric of a successful outcome, atomically, and
// returns the number of rows written. Failed outcomes are not stored.
// All rows share one timestamp taken at insert time.
func (s *Store) Append(ctx context.Context, out profiler.Outcome) (int, error) {
	if !out.OK() || len(out.Metrics) == 0 {
		return 0, nil
	}

	ts := s.now().UTC()
	cpu, ram := out.CPUPercent, out.MemoryPercent
	cycle := ""
	if out.CycleID != uuid.Nil {
		cycle = out.CycleID.String()
	}

	rows := make([]Sample, 0, len(out.Metrics))
	for _, m := range out.Metrics {
		row := Sample{
			CycleID:      cycle,
			PID:          out.PID,
			ProcessName:  out.ProcessName,
			ResourceType: string(out.Resource),
			MetricName:   m.Name,
			MetricValue:  m.Value,
			CPUUsage:     &cpu,
			RAMUsage:     &ram,
			Timestamp:    ts,
		}
		if m.Unit != "" {
			unit := m.Unit
			row.Unit = &unit
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: append pid=%d resource=%s: %v", ErrPersistence, out.PID, out.Resource, err)
	}
	return len(rows), nil
}

// QueryWindow returns samples of one resource with timestamp >= since,
// oldest first.
func (s *Store) QueryWindow(ctx context.Context, resource profiler.Resource, since time.Time) ([]Sample, error) {
	var rows []Sample
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND timestamp >= ?", string(resource), since.UTC()).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrPersistence, resource, err)
	}
	return rows, nil
}

// QueryRecent returns samples of every resource from the last window.
func (s *Store) QueryRecent(ctx context.Context, window time.Duration) ([]Sample, error) {
	var rows []Sample
	since := s.now().UTC().Add(-window)
	err := s.db.WithContext(ctx).
		Where("timestamp >= ?", since).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query recent: %v", ErrPersistence, err)
	}
	return rows, nil
}

// QueryToday returns samples of one resource since 00:00 UTC.
func (s *Store) QueryToday(ctx context.Context, resource profiler.Resource) ([]Sample, error) {
	return s.QueryWindow(ctx, resource, StartOfDay(s.now()))
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SaveCarbonIntensity stores one reading. FetchedAt defaults to now.
func (s *Store) SaveCarbonIntensity(ctx context.Context, ci *CarbonIntensity) error {
	if ci.FetchedAt.IsZero() {
		ci.FetchedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(ci).Error; err != nil {
		return fmt.Errorf("%w: save carbon intensity: %v", ErrPersistence, err)
	}
	return nil
}

// LatestCarbonIntensity returns the most recently fetched reading for zone.
func (s *Store) LatestCarbonIntensity(ctx context.Context, zone string) (*CarbonIntensity, error) {
	var ci CarbonIntensity
	err := s.db.WithContext(ctx).
		Where("zone = ?", zone).
		Order("fetched_at DESC, id DESC").
		First(&ci).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: carbon intensity for %s", ErrNotFound, zone)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest carbon intensity: %v", ErrPersistence, err)
	}
	return &ci, nil
}

// CarbonIntensityHistory returns readings for zone fetched at or after since,
// oldest first.
func (s *Store) CarbonIntensityHistory(ctx context.Context, zone string, since time.Time) ([]CarbonIntensity, error) {
	var rows []CarbonIntensity
	err := s.db.WithContext(ctx).
		Where("zone = ? AND fetched_at >= ?", zone, since.UTC()).
		Order("fetched_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: carbon intensity history: %v", ErrPersistence, err)
	}
	return rows, nil
}

// SavePowerBreakdown stores one reading. FetchedAt defaults to now.
func (s *Store) SavePowerBreakdown(ctx context.Context, pb *PowerBreakdown) error {
	if pb.FetchedAt.IsZero() {
		pb.FetchedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(pb).Error; err != nil {
		return fmt.Errorf("%w: save power breakdown: %v", ErrPersistence, err)
	}
	return nil
}
