package rawlog

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
)

const sweepEvery = 6 * time.Hour

var filenamePattern = regexp.MustCompile(`^ecofloc-(\d{4}-\d{2}-\d{2})\.ndjson$`)

// Rotator deletes raw log files older than the retention period.
type Rotator struct {
	dir           string
	retentionDays int
	log           *zap.Logger
	now           func() time.Time
	stopCh        chan struct{}
	doneCh        chan struct{}
}

func NewRotator(dir string, retentionDays int, log *zap.Logger) *Rotator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rotator{
		dir:           dir,
		retentionDays: retentionDays,
		log:           log,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (r *Rotator) Start() {
	go r.run()
}

func (r *Rotator) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Rotator) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	r.rotate()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.rotate()
		}
	}
}

// rotate returns how many files were removed.
func (r *Rotator) rotate() int {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0
	}

	cutoff := r.now().UTC().AddDate(0, 0, -r.retentionDays)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := filenamePattern.FindStringSubmatch(entry.Name())
		if len(m) != 2 {
			continue
		}
		day, err := time.Parse(dayLayout, m[1])
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, entry.Name())); err != nil {
			r.log.Warn("raw log cleanup failed", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		r.log.Info("raw logs expired", zap.Int("removed", removed), zap.Int("retention_days", r.retentionDays))
	}
	return removed
}
