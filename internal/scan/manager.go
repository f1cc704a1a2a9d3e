package scan

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"checkout-scan-backend/internal/decode"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("scan session not found")

// Manager owns the live detection sessions, one per scanner device.
type Manager struct {
	cfg         Config
	frameBuffer int
	lookup      ProductLookup
	carts       CartAdder
	notifier    Notifier

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg Config, frameBuffer int, lookup ProductLookup, carts CartAdder, notifier Notifier) *Manager {
	if frameBuffer <= 0 {
		frameBuffer = 8
	}
	return &Manager{
		cfg:         cfg,
		frameBuffer: frameBuffer,
		lookup:      lookup,
		carts:       carts,
		notifier:    notifier,
		sessions:    make(map[string]*Session),
	}
}

// Open creates a session for a device with the given capabilities. Devices
// without a viable backend still get a session, locked to manual entry.
func (m *Manager) Open(caps decode.Capabilities) *Session {
	id := uuid.NewString()
	s := NewSession(id, m.cfg, caps, m.frameBuffer, m.lookup, m.carts, m.notifier)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Get looks up a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops and removes a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	return nil
}

// Shutdown stops every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
