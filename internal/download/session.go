package download

import (
	"os"

	"github.com/sirupsen/logrus"

	"mator/internal/domain"
	"mator/internal/engine"
)

// Transfer owns the engine resources backing one download request: the
// session, the torrent handle, and the directory data lands in.
type Transfer struct {
	session engine.Session
	handle  engine.Handle
	saveDir string
}

// Close releases the session's network resources. It must run on every
// exit path of a request, exactly once.
func (t *Transfer) Close() error {
	return t.session.Close()
}

// SessionManager opens engine sessions configured for one-shot magnet
// downloads: DHT, local peer discovery, and port forwarding on, a fixed
// listen port, and a distinct user agent.
type SessionManager struct {
	engine     engine.Engine
	listenPort int
	userAgent  string
	logger     *logrus.Entry
}

func NewSessionManager(eng engine.Engine, listenPort int, userAgent string, logger *logrus.Entry) *SessionManager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &SessionManager{
		engine:     eng,
		listenPort: listenPort,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Open ensures the save directory exists, opens an engine session, and
// submits the magnet. The caller owns the returned transfer and must
// Close it.
func (m *SessionManager) Open(magnetURI, saveDir string) (*Transfer, *domain.Failure) {
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		m.logger.Errorf("create downloads dir: %v", err)
		return nil, domain.AsFailure(err)
	}

	sess, err := m.engine.OpenSession(engine.SessionConfig{
		ListenPort:     m.listenPort,
		UserAgent:      m.userAgent,
		DHT:            true,
		LocalDiscovery: true,
		PortForwarding: true,
	})
	if err != nil {
		m.logger.Errorf("open engine session: %v", err)
		return nil, domain.Failf(domain.FailureEngineUnavailable,
			"The torrent engine is unavailable. Please try again later.")
	}

	handle, err := sess.SubmitMagnet(magnetURI, saveDir)
	if err != nil {
		m.logger.Errorf("submit magnet: %v", err)
		if cerr := sess.Close(); cerr != nil {
			m.logger.Warnf("close session after rejected magnet: %v", cerr)
		}
		return nil, domain.Failf(domain.FailureInvalidMagnetHandle,
			"The torrent engine rejected the magnet link.")
	}

	return &Transfer{session: sess, handle: handle, saveDir: saveDir}, nil
}
