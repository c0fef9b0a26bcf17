package download

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mator/internal/domain"
	"mator/internal/engine"
	"mator/internal/magnet"
	"mator/internal/metrics"
	"mator/internal/service"
	"mator/internal/storage"
	"mator/internal/sweeper"
)

type Config struct {
	SaveDir         string
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	MaxSize         int64
	ListenPort      int
	UserAgent       string
	ArchiveBucket   string
	ArchivePrefix   string
}

// Service runs magnet download requests end to end: validation, retention
// sweep, session open, phase control, artifact resolution, history, and
// optional archival. Every request produces exactly one outcome.
type Service struct {
	cfg        Config
	sessions   *SessionManager
	controller *Controller
	sweeper    *sweeper.Sweeper
	history    service.HistoryService
	archive    storage.Service
	logger     *logrus.Logger

	active atomic.Int64
}

func NewService(cfg Config, eng engine.Engine, sw *sweeper.Sweeper, history service.HistoryService, archive storage.Service, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 60 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 300 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 500 << 20
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 6881
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mator/1.0"
	}
	return &Service{
		cfg:        cfg,
		sessions:   NewSessionManager(eng, cfg.ListenPort, cfg.UserAgent, logrus.NewEntry(logger)),
		controller: NewController(cfg.MetadataTimeout, cfg.DownloadTimeout, cfg.MaxSize),
		sweeper:    sw,
		history:    history,
		archive:    archive,
		logger:     logger,
	}
}

// ActiveTransfers reports how many requests currently hold an engine
// session.
func (s *Service) ActiveTransfers() int {
	return int(s.active.Load())
}

// Download runs one magnet request to its terminal outcome. Exactly one
// of success or fail is non-nil on return.
func (s *Service) Download(ctx context.Context, magnetURI string) (success *domain.Success, fail *domain.Failure) {
	requestID := uuid.NewString()
	logger := s.logger.WithField("request_id", requestID)
	start := time.Now()

	var (
		rec      *domain.Download
		meta     engine.Metadata
		archived string
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic in download request: %v\n%s", r, debug.Stack())
			success = nil
			fail = domain.AsFailure(fmt.Errorf("panic: %v", r))
		}
		s.finish(ctx, logger, rec, success, fail, meta, archived, start)
	}()

	trimmed := strings.TrimSpace(magnetURI)
	if trimmed == "" {
		logger.Warn("empty magnet link submitted")
		return nil, domain.Failf(domain.FailureEmptyInput, "Please provide a magnet link.")
	}
	if !magnet.Validate(trimmed) {
		logger.Warnf("invalid magnet format submitted: %.50s...", trimmed)
		return nil, domain.Failf(domain.FailureInvalidMagnetFormat,
			"Invalid magnet link format. Please ensure it starts with '%s' and contains a valid hash.",
			magnet.Prefix)
	}
	if infoHash, err := magnet.InfoHash(trimmed); err == nil {
		logger = logger.WithField("infohash", infoHash)
		rec = s.beginHistory(ctx, logger, requestID, trimmed, infoHash)
	} else {
		rec = s.beginHistory(ctx, logger, requestID, trimmed, "")
	}

	s.active.Add(1)
	metrics.ActiveTransfers.Inc()
	defer func() {
		s.active.Add(-1)
		metrics.ActiveTransfers.Dec()
	}()

	// Bound disk usage before committing new engine resources.
	s.sweeper.Sweep()

	transfer, openFail := s.sessions.Open(trimmed, s.cfg.SaveDir)
	if openFail != nil {
		return nil, openFail
	}
	defer func() {
		if err := transfer.Close(); err != nil {
			logger.Warnf("close engine session: %v", err)
		}
	}()

	artifactPath, size, runMeta, runFail := s.controller.Run(transfer, logger)
	meta = runMeta
	if runFail != nil {
		return nil, runFail
	}

	absPath, err := filepath.Abs(artifactPath)
	if err != nil {
		absPath = artifactPath
	}
	success = &domain.Success{Path: absPath, Size: size, Name: filepath.Base(absPath)}

	archived = s.archiveArtifact(ctx, logger, requestID, success)
	logger.Infof("download succeeded: %s (%s) in %s",
		success.Name, formatBytes(size), time.Since(start).Round(time.Millisecond))
	return success, nil
}

func (s *Service) beginHistory(ctx context.Context, logger *logrus.Entry, requestID, magnetURI, infoHash string) *domain.Download {
	if s.history == nil {
		return nil
	}
	rec, err := s.history.Begin(ctx, requestID, magnetURI, infoHash)
	if err != nil {
		logger.Warnf("record download start: %v", err)
		return nil
	}
	return rec
}

// archiveArtifact mirrors a finished artifact into object storage.
// Archival is best-effort: a failed upload is logged and counted but
// never fails the request.
func (s *Service) archiveArtifact(ctx context.Context, logger *logrus.Entry, requestID string, success *domain.Success) string {
	if s.archive == nil {
		return ""
	}

	key := path.Join(strings.Trim(s.cfg.ArchivePrefix, "/"), requestID, success.Name)
	location, err := s.archive.ArchiveFile(ctx, success.Path, storage.ArchiveOptions{
		Bucket:           s.cfg.ArchiveBucket,
		Key:              key,
		ProgressCallback: newArchiveProgressLogger(logger),
	})
	if err != nil {
		metrics.ArchiveFailuresTotal.Inc()
		logger.Warnf("archive artifact: %v", err)
		return ""
	}
	logger.Infof("artifact archived to %s", location)
	return location
}

// finish settles metrics and history for a terminal outcome. It runs once
// per request, on every exit path.
func (s *Service) finish(ctx context.Context, logger *logrus.Entry, rec *domain.Download, success *domain.Success, fail *domain.Failure, meta engine.Metadata, archived string, start time.Time) {
	elapsed := time.Since(start)
	metrics.DownloadDuration.Observe(elapsed.Seconds())
	if success != nil {
		metrics.DownloadsTotal.WithLabelValues("succeeded", "none").Inc()
		metrics.ArtifactSizeBytes.Observe(float64(success.Size))
	} else if fail != nil {
		metrics.DownloadsTotal.WithLabelValues("failed", string(fail.Kind)).Inc()
	}

	if s.history == nil || rec == nil {
		return
	}
	rec.TorrentName = meta.Name
	rec.TotalSize = meta.TotalSize
	rec.DurationMS = elapsed.Milliseconds()
	rec.ArchiveLocation = archived
	if success != nil {
		rec.Status = domain.DownloadStatusSucceeded
		rec.FilePath = success.Path
		rec.FileName = success.Name
		rec.FileSize = success.Size
	} else {
		rec.Status = domain.DownloadStatusFailed
		if fail != nil {
			rec.FailureKind = string(fail.Kind)
			rec.Message = fail.Message
		}
	}
	if err := s.history.Finish(ctx, rec); err != nil {
		logger.Warnf("record download outcome: %v", err)
	}

	if len(meta.Files) > 0 {
		files := make([]domain.DownloadFile, 0, len(meta.Files))
		for _, file := range meta.Files {
			files = append(files, domain.DownloadFile{
				DownloadID: rec.ID,
				Path:       file.Path,
				Size:       file.Length,
			})
		}
		if err := s.history.RecordFiles(ctx, rec.ID, files); err != nil {
			logger.Warnf("record torrent files: %v", err)
		}
	}
}

func newArchiveProgressLogger(logger *logrus.Entry) func(done, total int64) {
	var lastLog time.Time
	return func(done, total int64) {
		now := time.Now()
		if total == 0 {
			if now.Sub(lastLog) < 500*time.Millisecond && done != 0 {
				return
			}
			lastLog = now
			logger.Infof("archive progress: %s uploaded", formatBytes(done))
			return
		}

		percent := float64(done) / float64(total) * 100
		if now.Sub(lastLog) < 500*time.Millisecond && done != total {
			return
		}
		lastLog = now
		logger.Infof("archive progress: %.1f%% (%s/%s)", percent, formatBytes(done), formatBytes(total))
	}
}
