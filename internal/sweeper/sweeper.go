// Package sweeper removes stale artifacts from the shared downloads
// directory so disk usage stays bounded across requests.
package sweeper

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mator/internal/metrics"
)

type Sweeper struct {
	dir       string
	maxAge    time.Duration
	logger    *logrus.Entry
	scheduler *cron.Cron

	// Serializes pre-open sweeps with scheduled ones.
	mu sync.Mutex
}

func New(dir string, maxAge time.Duration, logger *logrus.Entry) *Sweeper {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Sweeper{
		dir:       dir,
		maxAge:    maxAge,
		logger:    logger,
		scheduler: cron.New(),
	}
}

// Sweep removes entries directly under the downloads directory whose
// modification time is older than the retention age, directories included.
// It is best-effort: every error is logged and swallowed so housekeeping
// never blocks or fails a download request. Returns the number of entries
// removed.
func (s *Sweeper) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnf("list downloads dir: %v", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			s.logger.Warnf("stat %s: %v", entry.Name(), err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warnf("remove stale artifact %s: %v", entry.Name(), err)
			continue
		}
		removed++
		s.logger.Infof("removed stale artifact %s (idle since %s)",
			entry.Name(), info.ModTime().Format(time.RFC3339))
	}

	if removed > 0 {
		metrics.SweptArtifactsTotal.Add(float64(removed))
	}
	return removed
}

// Schedule runs periodic sweeps on the given cron expression until Stop is
// called.
func (s *Sweeper) Schedule(spec string) error {
	if _, err := s.scheduler.AddFunc(spec, func() {
		if n := s.Sweep(); n > 0 {
			s.logger.Infof("scheduled sweep removed %d stale artifact(s)", n)
		}
	}); err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	s.scheduler.Start()
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}
