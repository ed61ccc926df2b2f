package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Manager is the registry behind the HTTP surface. Sessions opened with the
// same client id share a Controller, so a client never holds two cameras.
type Manager struct {
	cfg    ControllerConfig
	logger *slog.Logger

	obsMu     sync.RWMutex
	observers observers

	mu          sync.RWMutex
	sessions    map[string]*Session
	controllers map[string]*Controller
	// opening counts Open calls in progress per client. A controller is
	// pruned only when it holds no session and nobody is opening on it.
	opening map[string]int
}

func NewManager(cfg ControllerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{
		logger:      cfg.Logger.With("component", "session-manager"),
		sessions:    make(map[string]*Session),
		controllers: make(map[string]*Controller),
		opening:     make(map[string]int),
	}
	if cfg.Observer != nil {
		m.observers = append(m.observers, cfg.Observer)
	}
	cfg.Observer = m
	cfg.OnClose = m.forget
	m.cfg = cfg
	return m
}

// Subscribe adds an observer for every session opened afterwards as well as
// those already running.
func (m *Manager) Subscribe(o Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) OnEvent(ev Event) {
	m.obsMu.RLock()
	obs := m.observers
	m.obsMu.RUnlock()
	obs.OnEvent(ev)
}

func (m *Manager) Sources() []string {
	names := make([]string, 0, len(m.cfg.Sources))
	for name := range m.cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Open(ctx context.Context, clientID string, opts OpenOptions) (*Session, error) {
	ctrl := m.controllerFor(clientID)

	sess, err := ctrl.Open(ctx, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if clientID != "" {
		m.opening[clientID]--
		if m.opening[clientID] <= 0 {
			delete(m.opening, clientID)
		}
		m.pruneLocked(clientID, ctrl)
	}
	if err != nil {
		return nil, err
	}
	if sess.Active() {
		m.sessions[sess.ID()] = sess
	}
	return sess, nil
}

func (m *Manager) controllerFor(clientID string) *Controller {
	if clientID == "" {
		return NewController(m.cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opening[clientID]++
	ctrl, ok := m.controllers[clientID]
	if !ok {
		cfg := m.cfg
		cfg.OnClose = func(s *Session) {
			m.forget(s)
			m.mu.Lock()
			m.pruneLocked(clientID, ctrl)
			m.mu.Unlock()
		}
		ctrl = NewController(cfg)
		m.controllers[clientID] = ctrl
	}
	return ctrl
}

// pruneLocked drops a client's controller once it is idle.
func (m *Manager) pruneLocked(clientID string, ctrl *Controller) {
	if m.opening[clientID] > 0 || m.controllers[clientID] != ctrl {
		return
	}
	if ctrl.Current() == nil {
		delete(m.controllers, clientID)
	}
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID())
}

// Clients reports how many client ids currently own a controller.
func (m *Manager) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.controllers)
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt().Equal(out[j].OpenedAt()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].OpenedAt().Before(out[j].OpenedAt())
	})
	return out
}

// Close ends a session by id. It reports whether the session was still open.
func (m *Manager) Close(id string) bool {
	s, ok := m.Get(id)
	if !ok {
		return false
	}
	s.Close()
	return true
}

func (m *Manager) CloseAll() {
	sessions := m.List()
	for _, s := range sessions {
		s.Close()
	}

	m.mu.Lock()
	m.controllers = make(map[string]*Controller)
	m.mu.Unlock()

	if len(sessions) > 0 {
		m.logger.Info("closed all sessions", "count", len(sessions))
	}
}
