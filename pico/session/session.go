// Package session turns a raw line channel into a command/acknowledgment
// protocol endpoint.
//
// The peripheral replies ACK/NACK with no command identifier, so a session
// keeps a strict FIFO of pending acknowledgments and never has more than one
// un-acknowledged command on the wire. A single writer goroutine is what
// enforces that; do not add a second write path to the channel.
package session

import (
	"errors"
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/channel"
	"github.com/allape/picolink/pico/protocol"
	"sync"
	"time"
)

var l = gogger.New("pico.session")

const (
	DefaultAckTimeout   = 1500 * time.Millisecond
	DefaultReadyTimeout = 12 * time.Second

	// ReadyDebounce suppresses handshake probes when a beacon was seen
	// moments ago; the Pico re-emits PICO_READY every ~1s until first
	// contact.
	ReadyDebounce = time.Second

	finalizeWindow   = 800 * time.Millisecond
	readySlice       = 100 * time.Millisecond
	firstReadyWait   = 2 * time.Second
	retryReadyWait   = 1500 * time.Millisecond
	retryMinBudget   = 400 * time.Millisecond
	shutdownJoinWait = time.Second
)

var (
	ErrAlreadyOpen      = errors.New("session already open")
	ErrClosed           = errors.New("session closed")
	ErrHandshakeTimeout = errors.New("device not responding")
)

type State int32

const (
	Closed State = iota
	Opening
	AwaitingReady
	Ready
	Active
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case AwaitingReady:
		return "awaiting-ready"
	case Ready:
		return "ready"
	case Active:
		return "active"
	}
	return "closed"
}

// Observer receives diagnostic lines from the peripheral: everything that is
// not an ACK or a PICO_READY beacon. NACKs arrive here.
type Observer func(line string)

type command struct {
	line    string
	waitAck bool
	timeout time.Duration
	done    chan bool
}

type Session struct {
	Name string

	ch channel.Channel

	mu        sync.Mutex
	state     State
	waiters   []chan struct{}
	lastReady time.Time
	observers map[int]Observer
	nextObs   int

	readyCh   chan struct{}
	commands  chan *command
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

func New(name string, ch channel.Channel) *Session {
	return &Session{
		Name:      name,
		ch:        ch,
		observers: map[int]Observer{},
		readyCh:   make(chan struct{}, 1),
		commands:  make(chan *command),
		stop:      make(chan struct{}),
	}
}

// Open claims the channel, pulses the control lines so the peripheral
// notices a fresh connection, and starts the reader and writer loops.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.state != Closed {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state = Opening
	s.mu.Unlock()

	err := s.ch.Open()
	if err != nil {
		s.setState(Closed)
		return err
	}

	err = s.ch.ToggleControlLines()
	if err != nil {
		l.Warn().Println(s.Name, "toggle control lines:", err)
	}

	// Poke the peripheral right away; it answers hello with PICO_READY.
	err = s.ch.WriteLine(protocol.Handshake)
	if err != nil {
		_ = s.ch.Close()
		s.setState(Closed)
		return err
	}

	s.setState(AwaitingReady)

	s.wg.Add(2)
	go s.readerLoop()
	go s.writerLoop()

	return nil
}

// Close stops both loops, joins them with a bounded timeout, and releases
// the channel. Safe to call multiple times and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.signalStop()

		joined := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(shutdownJoinWait):
			l.Warn().Println(s.Name, "loops did not stop in time")
		}

		s.closeErr = s.ch.Close()

		s.mu.Lock()
		s.state = Closed
		s.waiters = nil
		s.mu.Unlock()
	})
	return s.closeErr
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RegisterLineObserver subscribes callback to diagnostic lines and returns a
// function that removes the subscription.
func (s *Session) RegisterLineObserver(callback Observer) func() {
	if callback == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = callback
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// SendCommand normalizes payload to the canonical wire form and queues it on
// the writer. With waitAck it blocks until the command's FIFO slot is
// resolved by an ACK, or until timeout; false means no ACK arrived in time
// and the waiter was withdrawn so a late ACK cannot satisfy a future
// command. Without waitAck it returns true once the line is on the wire.
func (s *Session) SendCommand(payload string, waitAck bool, timeout time.Duration) bool {
	line := protocol.Normalize(payload)
	if line == "" {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}

	cmd := &command{
		line:    line,
		waitAck: waitAck,
		timeout: timeout,
		done:    make(chan bool, 1),
	}

	select {
	case s.commands <- cmd:
	case <-s.stop:
		return false
	}

	select {
	case ok := <-cmd.done:
		return ok
	case <-s.stop:
		return false
	}
}

// WaitForReady reports whether the peripheral has announced readiness. A
// beacon observed within the last second short-circuits; otherwise a
// handshake probe is sent and the readiness event awaited in small slices,
// with one retry probe if the budget allows.
func (s *Session) WaitForReady(timeout time.Duration) bool {
	if s.State() == Closed {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	s.mu.Lock()
	recent := time.Since(s.lastReady) < ReadyDebounce
	s.mu.Unlock()
	if recent {
		return true
	}

	deadline := time.Now().Add(timeout)

	s.sendProbe()
	first := firstReadyWait
	if remaining := time.Until(deadline); remaining < first {
		first = remaining
	}
	if s.awaitReady(first) {
		return true
	}

	remaining := time.Until(deadline)
	if remaining < retryMinBudget {
		return false
	}
	s.sendProbe()
	if remaining > retryReadyWait {
		remaining = retryReadyWait
	}
	return s.awaitReady(remaining)
}

// FinalizeHandshake suppresses further beacon chatter after the first READY:
// one more handshake probe marks "command seen" on the peripheral, any
// straggling READY is absorbed, and leftover input is discarded so it cannot
// corrupt the first real command's ACK correlation.
func (s *Session) FinalizeHandshake() {
	s.setState(Ready)

	start := time.Now()
	if !s.SendCommand(protocol.Handshake, false, 0) {
		return
	}

	deadline := start.Add(finalizeWindow)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		seen := s.lastReady.After(start)
		s.mu.Unlock()
		if seen {
			break
		}
		select {
		case <-s.stop:
			return
		case <-time.After(50 * time.Millisecond):
		}
	}

	// consume a stale readiness signal left over from the beacon
	select {
	case <-s.readyCh:
	default:
	}

	err := s.ch.Drain()
	if err != nil {
		l.Warn().Println(s.Name, "drain:", err)
	}

	s.setState(Active)
}

// Handshake runs the readiness exchange end to end: wait for the first
// READY, then finalize. Returns ErrHandshakeTimeout when no READY arrives
// within timeout.
func (s *Session) Handshake(timeout time.Duration) error {
	if !s.WaitForReady(timeout) {
		return ErrHandshakeTimeout
	}
	s.FinalizeHandshake()
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) signalStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Session) sendProbe() {
	s.SendCommand(protocol.Handshake, false, 0)
}

func (s *Session) awaitReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-s.readyCh:
			return true
		case <-s.stop:
			return false
		case <-time.After(readySlice):
		}
		s.mu.Lock()
		recent := time.Since(s.lastReady) < ReadyDebounce
		s.mu.Unlock()
		if recent {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
	}
}

func (s *Session) readerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		line, err := s.ch.ReadLine()
		if err != nil {
			select {
			case <-s.stop:
			default:
				l.Error().Println(s.Name, "read:", err)
				s.signalStop()
			}
			return
		}
		if line == "" {
			continue
		}

		switch line {
		case protocol.Ack:
			if !s.resolveNextAck() {
				l.Warn().Println(s.Name, "spurious ACK")
			}
		case protocol.Ready:
			s.mu.Lock()
			s.lastReady = time.Now()
			s.mu.Unlock()
			select {
			case s.readyCh <- struct{}{}:
			default:
			}
		default:
			s.dispatchLine(line)
		}
	}
}

func (s *Session) writerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case cmd := <-s.commands:
			cmd.done <- s.writeCommand(cmd)
		}
	}
}

func (s *Session) writeCommand(cmd *command) bool {
	var waiter chan struct{}
	if cmd.waitAck {
		// register before writing; the reply may beat the registration
		// otherwise
		waiter = make(chan struct{})
		s.mu.Lock()
		s.waiters = append(s.waiters, waiter)
		s.mu.Unlock()
	}

	err := s.ch.WriteLine(cmd.line)
	if err != nil {
		if waiter != nil {
			s.removeWaiter(waiter)
		}
		l.Error().Println(s.Name, "write:", err)
		s.signalStop()
		return false
	}

	if waiter == nil {
		return true
	}

	select {
	case <-waiter:
		return true
	case <-s.stop:
		s.removeWaiter(waiter)
		return false
	case <-time.After(cmd.timeout):
		if !s.removeWaiter(waiter) {
			// resolved between the timeout firing and the withdrawal
			return true
		}
		return false
	}
}

func (s *Session) resolveNextAck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) == 0 {
		return false
	}
	waiter := s.waiters[0]
	s.waiters = s.waiters[1:]
	close(waiter)
	return true
}

func (s *Session) removeWaiter(waiter chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == waiter {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) dispatchLine(line string) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()
	for _, o := range observers {
		o(line)
	}
}
