package anacrolix

import (
	"fmt"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"mator/internal/engine"
)

// session wraps one anacrolix client. A session carries at most one
// torrent; the download core opens a fresh session per request.
type session struct {
	client   *torrent.Client
	trackers []string

	mu             sync.Mutex
	handle         *handle
	store          storage.ClientImplCloser
	closedReported bool
}

func (s *session) SubmitMagnet(uri, saveDir string) (engine.Handle, error) {
	spec, err := torrent.TorrentSpecFromMagnetUri(uri)
	if err != nil {
		return nil, fmt.Errorf("parse magnet: %w", err)
	}

	// File-backed storage writes pieces at their offsets without
	// pre-zeroing, so large torrents start as sparse files.
	store := storage.NewFile(saveDir)
	spec.Storage = store
	for _, tracker := range s.trackers {
		spec.Trackers = append(spec.Trackers, []string{tracker})
	}

	t, _, err := s.client.AddTorrentSpec(spec)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("add torrent: %w", err)
	}

	h := &handle{t: t}
	s.mu.Lock()
	s.handle = h
	s.store = store
	s.mu.Unlock()
	return h, nil
}

// DrainAlerts surfaces engine-side failures since the previous drain. The
// anacrolix client reports problems by closing the torrent, so an
// unexpected closure maps to a single error alert.
func (s *session) DrainAlerts() []engine.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil || s.closedReported {
		return nil
	}
	select {
	case <-s.handle.t.Closed():
		s.closedReported = true
		return []engine.Alert{{Category: engine.AlertError, Message: "torrent dropped by engine"}}
	default:
		return nil
	}
}

func (s *session) Close() error {
	s.mu.Lock()
	h := s.handle
	store := s.store
	s.handle = nil
	s.store = nil
	s.mu.Unlock()

	if h != nil {
		h.t.Drop()
	}
	errs := s.client.Close()
	if store != nil {
		_ = store.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// handle adapts one anacrolix torrent to the engine handle interface.
type handle struct {
	t *torrent.Torrent

	start sync.Once

	mu        sync.Mutex
	lastAt    time.Time
	lastBytes int64
}

func (h *handle) HasMetadata() bool {
	select {
	case <-h.t.GotInfo():
		// anacrolix fetches no piece data until asked; kick off the bulk
		// transfer the moment metadata lands.
		h.start.Do(h.t.DownloadAll)
		return true
	default:
		return false
	}
}

func (h *handle) Metadata() (engine.Metadata, error) {
	if !h.HasMetadata() {
		return engine.Metadata{}, fmt.Errorf("torrent metadata not available yet")
	}
	info := h.t.Info()
	if info == nil {
		return engine.Metadata{}, fmt.Errorf("missing torrent info")
	}

	files := h.t.Files()
	meta := engine.Metadata{
		Name:      info.BestName(),
		TotalSize: info.TotalLength(),
		Files:     make([]engine.FileInfo, 0, len(files)),
	}
	for _, file := range files {
		meta.Files = append(meta.Files, engine.FileInfo{
			Path:   file.Path(),
			Length: file.Length(),
		})
	}
	return meta, nil
}

func (h *handle) Status() engine.Status {
	stats := h.t.Stats()
	status := engine.Status{
		Peers: stats.ActivePeers,
		Seeds: stats.ConnectedSeeders,
	}
	if !h.HasMetadata() {
		return status
	}

	completed := h.t.BytesCompleted()
	if length := h.t.Length(); length > 0 {
		status.Progress = float64(completed) / float64(length)
	}
	status.Finished = h.t.BytesMissing() == 0
	status.DownloadRate = h.sampleRate(completed)
	return status
}

// sampleRate derives bytes/sec from the completed-byte delta since the
// previous status read.
func (h *handle) sampleRate(completed int64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	defer func() {
		h.lastAt = now
		h.lastBytes = completed
	}()

	if h.lastAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(h.lastAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	delta := completed - h.lastBytes
	if delta < 0 {
		delta = 0
	}
	return float64(delta) / elapsed
}

var _ engine.Session = (*session)(nil)
var _ engine.Handle = (*handle)(nil)
