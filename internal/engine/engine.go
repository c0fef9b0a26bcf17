// Package engine defines the torrent engine abstraction the download core
// drives. Implementations own the peer-wire machinery; the core only sees
// sessions, handles, status snapshots, and alerts.
package engine

// SessionConfig selects the networking features for one engine session.
type SessionConfig struct {
	ListenPort     int
	UserAgent      string
	DHT            bool
	LocalDiscovery bool
	PortForwarding bool
}

type AlertCategory string

const (
	AlertInfo    AlertCategory = "info"
	AlertWarning AlertCategory = "warning"
	AlertError   AlertCategory = "error"
)

// Alert is a message the engine surfaced since the previous drain.
type Alert struct {
	Category AlertCategory
	Message  string
}

// Status is a point-in-time snapshot of one transfer.
type Status struct {
	Progress     float64
	DownloadRate float64
	Peers        int
	Seeds        int
	Finished     bool
}

// FileInfo describes one file declared by torrent metadata. Path is
// relative to the save directory the magnet was submitted with.
type FileInfo struct {
	Path   string
	Length int64
}

// Metadata is the torrent's declared content, readable once the handle
// reports HasMetadata.
type Metadata struct {
	Name      string
	TotalSize int64
	Files     []FileInfo
}

// Handle is one active transfer bound to a session.
type Handle interface {
	HasMetadata() bool
	Metadata() (Metadata, error)
	Status() Status
}

// Session is an engine networking context owning the sockets and DHT
// state for one download request. Close releases those resources and must
// be called on every exit path.
type Session interface {
	SubmitMagnet(uri, saveDir string) (Handle, error)
	DrainAlerts() []Alert
	Close() error
}

// Engine opens sessions. The production implementation lives in
// engine/anacrolix; tests substitute in-memory fakes.
type Engine interface {
	OpenSession(cfg SessionConfig) (Session, error)
}
