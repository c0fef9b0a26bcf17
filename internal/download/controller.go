package download

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"mator/internal/domain"
	"mator/internal/engine"
)

type Phase string

const (
	PhaseOpening      Phase = "opening"
	PhaseMetadataWait Phase = "metadata_wait"
	PhaseTransferring Phase = "transferring"
	PhaseComplete     Phase = "complete"
	PhaseFailed       Phase = "failed"
)

const (
	metadataPollInterval = time.Second
	transferPollInterval = 2 * time.Second
	stallThreshold       = 30 * time.Second
	earlyExitProgress    = 0.95
)

// Controller drives one transfer through metadata acquisition and bulk
// download, applying the timeout, stall, and size policies. Each request
// runs as a single sequential poll loop that sleeps between ticks.
type Controller struct {
	metadataTimeout time.Duration
	downloadTimeout time.Duration
	maxSize         int64

	now   func() time.Time
	sleep func(time.Duration)
}

func NewController(metadataTimeout, downloadTimeout time.Duration, maxSize int64) *Controller {
	return &Controller{
		metadataTimeout: metadataTimeout,
		downloadTimeout: downloadTimeout,
		maxSize:         maxSize,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// Run polls the transfer until it reaches a terminal phase and resolves
// the final artifact path. It does not close the transfer; the caller
// owns teardown. The returned metadata is zero-valued when the request
// failed before metadata arrived.
func (c *Controller) Run(t *Transfer, logger *logrus.Entry) (string, int64, engine.Metadata, *domain.Failure) {
	c.logTransition(logger, PhaseOpening, PhaseMetadataWait)

	if fail := c.waitForMetadata(t, logger); fail != nil {
		c.logFailure(logger, PhaseMetadataWait, fail)
		return "", 0, engine.Metadata{}, fail
	}
	c.logTransition(logger, PhaseMetadataWait, PhaseTransferring)

	meta, err := t.handle.Metadata()
	if err != nil {
		fail := domain.Failf(domain.FailureEngineError, "Torrent engine error: %v", err)
		c.logFailure(logger, PhaseTransferring, fail)
		return "", 0, engine.Metadata{}, fail
	}
	if fail := c.checkMetadata(meta); fail != nil {
		c.logFailure(logger, PhaseTransferring, fail)
		return "", 0, meta, fail
	}
	logger.Infof("torrent %q: %d file(s), %s total", meta.Name, len(meta.Files), formatBytes(meta.TotalSize))

	if fail := c.runTransfer(t, meta, logger); fail != nil {
		c.logFailure(logger, PhaseTransferring, fail)
		return "", 0, meta, fail
	}
	c.logTransition(logger, PhaseTransferring, PhaseComplete)

	path, size, fail := resolveArtifact(meta, t.saveDir, c.now())
	if fail != nil {
		c.logFailure(logger, PhaseComplete, fail)
		return "", 0, meta, fail
	}
	logger.Infof("resolved artifact %s (%s)", filepath.Base(path), formatBytes(size))
	return path, size, meta, nil
}

// waitForMetadata polls until torrent metadata arrives, an error alert
// surfaces, or the metadata timeout passes.
func (c *Controller) waitForMetadata(t *Transfer, logger *logrus.Entry) *domain.Failure {
	deadline := c.now().Add(c.metadataTimeout)
	for {
		if fail := c.checkAlerts(t, logger); fail != nil {
			return fail
		}
		if t.handle.HasMetadata() {
			return nil
		}
		if c.now().After(deadline) {
			return domain.Failf(domain.FailureMetadataTimeout,
				"Could not fetch torrent metadata within %s. The torrent may have no reachable seeders.",
				c.metadataTimeout)
		}
		c.sleep(metadataPollInterval)
	}
}

// checkMetadata gates the transfer phase on the torrent's declared
// contents.
func (c *Controller) checkMetadata(meta engine.Metadata) *domain.Failure {
	if len(meta.Files) == 0 {
		return domain.Failf(domain.FailureNoFilesInTorrent, "The torrent does not contain any files.")
	}
	if meta.TotalSize > c.maxSize {
		return domain.Failf(domain.FailureFileTooLarge,
			"Torrent size %s exceeds the maximum allowed %s.",
			formatBytes(meta.TotalSize), formatBytes(c.maxSize))
	}
	return nil
}

// runTransfer polls the bulk transfer until it finishes, stalls out, or
// times out. At 95% progress a materialized artifact on disk is accepted
// without waiting for the engine's finished signal, since the last pieces
// can hang indefinitely on slow peers.
func (c *Controller) runTransfer(t *Transfer, meta engine.Metadata, logger *logrus.Entry) *domain.Failure {
	deadline := c.now().Add(c.downloadTimeout)
	var stall stallTracker

	for {
		if fail := c.checkAlerts(t, logger); fail != nil {
			return fail
		}

		status := t.handle.Status()
		logger.Infof("progress %.1f%%, %s/s, %d peer(s), %d seed(s)",
			status.Progress*100, formatBytes(int64(status.DownloadRate)), status.Peers, status.Seeds)

		if stalledFor := stall.observe(status.Progress, transferPollInterval); stalledFor > 0 {
			logger.Warnf("no transfer progress for %s", stalledFor)
			if stalledFor > stallThreshold {
				return domain.Failf(domain.FailureStalledDownload,
					"The download stalled: no progress for over %s.", stallThreshold)
			}
		}

		if c.now().After(deadline) {
			return domain.Failf(domain.FailureDownloadTimeout,
				"The download did not complete within %s.", c.downloadTimeout)
		}

		if status.Progress >= earlyExitProgress && c.artifactMaterialized(meta, t.saveDir) {
			logger.Infof("early exit at %.1f%%: artifact already on disk", status.Progress*100)
			return nil
		}

		if status.Finished {
			return nil
		}

		c.sleep(transferPollInterval)
	}
}

// artifactMaterialized probes the primary candidate paths (the declared
// first-file path and its sanitized variant) for a non-empty file.
func (c *Controller) artifactMaterialized(meta engine.Metadata, saveDir string) bool {
	candidates := candidatePaths(meta, saveDir, c.now())
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	for _, candidate := range candidates {
		if _, ok := fileAt(candidate); ok {
			return true
		}
	}
	return false
}

// checkAlerts drains pending session alerts. The first error-category
// alert fails the request; the rest are logged.
func (c *Controller) checkAlerts(t *Transfer, logger *logrus.Entry) *domain.Failure {
	for _, alert := range t.session.DrainAlerts() {
		switch alert.Category {
		case engine.AlertError:
			return domain.Failf(domain.FailureEngineError, "Torrent engine error: %s", alert.Message)
		case engine.AlertWarning:
			logger.Warnf("engine: %s", alert.Message)
		default:
			logger.Debugf("engine: %s", alert.Message)
		}
	}
	return nil
}

func (c *Controller) logTransition(logger *logrus.Entry, from, to Phase) {
	logger.WithField("phase", string(to)).Infof("phase %s -> %s", from, to)
}

func (c *Controller) logFailure(logger *logrus.Entry, phase Phase, fail *domain.Failure) {
	logger.WithField("phase", string(phase)).Errorf("download failed (%s): %s", fail.Kind, fail.Message)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}
