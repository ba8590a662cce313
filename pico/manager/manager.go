// Package manager is the caller-facing directory of open sessions. External
// collaborators (relay server, playback, notification hooks) share one
// session per port through it instead of opening the same device twice.
package manager

import (
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/channel"
	"github.com/allape/picolink/pico/channel/serialport"
	"github.com/allape/picolink/pico/session"
	"sync"
)

var l = gogger.New("pico.manager")

type Manager struct {
	// NewChannel builds the line channel for a port; swappable in tests.
	NewChannel func(name string, baud int) channel.Channel

	Baud int

	locker   sync.Mutex
	sessions map[string]*session.Session
}

func New(baud int) *Manager {
	return &Manager{
		NewChannel: serialport.New,
		Baud:       baud,
		sessions:   map[string]*session.Session{},
	}
}

// OpenSession returns the session already open on port, or opens a new one.
// The returned session stays owned by the manager; callers must not close
// it directly, only through CloseSession or Close.
func (m *Manager) OpenSession(port string) (*session.Session, error) {
	m.locker.Lock()
	defer m.locker.Unlock()

	if s, ok := m.sessions[port]; ok && s.State() != session.Closed {
		return s, nil
	}

	s := session.New(port, m.NewChannel(port, m.Baud))
	err := s.Open()
	if err != nil {
		return nil, err
	}

	l.Verbose().Println("opened session on", port)
	m.sessions[port] = s
	return s, nil
}

func (m *Manager) CloseSession(port string) error {
	m.locker.Lock()
	s, ok := m.sessions[port]
	delete(m.sessions, port)
	m.locker.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

// Close tears down every open session.
func (m *Manager) Close() error {
	m.locker.Lock()
	sessions := m.sessions
	m.sessions = map[string]*session.Session{}
	m.locker.Unlock()

	var err error
	for port, s := range sessions {
		e := s.Close()
		if e != nil {
			l.Warn().Println("close", port, ":", e)
			err = e
		}
	}
	return err
}
