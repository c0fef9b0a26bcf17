// Package anacrolix adapts github.com/anacrolix/torrent to the engine
// interfaces consumed by the download core.
package anacrolix

import (
	"fmt"

	"github.com/anacrolix/torrent"

	"mator/internal/engine"
)

// Engine opens one anacrolix client per session so every request owns its
// network resources and can be torn down independently.
type Engine struct {
	trackers []string
}

func New() *Engine {
	return &Engine{trackers: defaultTrackers()}
}

func (e *Engine) OpenSession(cfg engine.SessionConfig) (engine.Session, error) {
	clientConfig := buildClientConfig(cfg)

	client, err := torrent.NewClient(clientConfig)
	if err != nil && cfg.ListenPort != 0 {
		// The fixed port may be held by a concurrent session; retry on an
		// ephemeral port instead of failing the request.
		clientConfig.ListenPort = 0
		client, err = torrent.NewClient(clientConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("create torrent client: %w", err)
	}

	return &session{client: client, trackers: e.trackers}, nil
}

func buildClientConfig(cfg engine.SessionConfig) *torrent.ClientConfig {
	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.ListenPort = cfg.ListenPort
	clientConfig.NoDHT = !cfg.DHT
	clientConfig.DisablePEX = !cfg.LocalDiscovery
	clientConfig.NoDefaultPortForwarding = !cfg.PortForwarding
	clientConfig.NoUpload = false
	clientConfig.Seed = false
	if cfg.UserAgent != "" {
		clientConfig.HTTPUserAgent = cfg.UserAgent
		clientConfig.ExtendedHandshakeClientVersion = cfg.UserAgent
	}
	return clientConfig
}

func defaultTrackers() []string {
	return []string{
		"udp://tracker.opentrackr.org:1337/announce",
		"udp://tracker.openbittorrent.com:6969/announce",
		"udp://open.stealth.si:80/announce",
		"udp://exodus.desync.com:6969/announce",
		"http://tracker.opentrackr.org:1337/announce",
		"http://tracker.openbittorrent.com:80/announce",
		"udp://tracker.torrent.eu.org:451/announce",
		"udp://tracker.moeking.me:6969/announce",
	}
}

var _ engine.Engine = (*Engine)(nil)
