// Package playback replays recorded macro files through a session.
//
// An ACK timeout mid-macro is a desynchronization risk, not a clean stop:
// the peripheral may still hold keys down. The controller reacts by sending
// best-effort releases for everything it believes is pressed, then aborts
// the run.
package playback

import (
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/protocol"
	"github.com/allape/picolink/pico/session"
	"sync"
	"time"
)

var l = gogger.New("playback")

const (
	// releaseAckTimeout is shorter than the playback ACK timeout; the run
	// is already aborting, held keys just need a best-effort release.
	releaseAckTimeout = 800 * time.Millisecond

	sleepSlice = 10 * time.Millisecond
)

// Sender is the slice of the session API playback needs.
type Sender interface {
	SendCommand(payload string, waitAck bool, timeout time.Duration) bool
	WaitForReady(timeout time.Duration) bool
}

// FocusCheck reports whether the playback target still has input focus.
// When it returns false mid-macro, the run stops.
type FocusCheck func() bool

type Controller struct {
	// FocusCheck is optional; the headless build runs without one.
	FocusCheck FocusCheck

	sender Sender

	locker  sync.Mutex
	playing bool
	done    chan struct{}

	keysLocker sync.Mutex
	keysDown   map[string]struct{}
}

func NewController(sender Sender) *Controller {
	return &Controller{
		sender:   sender,
		keysDown: map[string]struct{}{},
	}
}

func (c *Controller) IsPlaying() bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.playing
}

// Start launches the playback loop in the background. No-op while a run is
// already active.
func (c *Controller) Start(folder string) {
	c.locker.Lock()
	if c.playing {
		c.locker.Unlock()
		return
	}
	c.playing = true
	c.done = make(chan struct{})
	c.locker.Unlock()

	go func() {
		defer close(c.done)
		c.run(folder)
	}()
}

// Stop requests the current run to end. The run notices within one sleep
// slice or one command round-trip.
func (c *Controller) Stop() {
	c.locker.Lock()
	c.playing = false
	c.locker.Unlock()
}

// Wait blocks until the current run has fully exited.
func (c *Controller) Wait() {
	c.locker.Lock()
	done := c.done
	c.locker.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) run(folder string) {
	defer func() {
		c.locker.Lock()
		c.playing = false
		c.locker.Unlock()
		l.Verbose().Println("playback finished")
	}()

	for c.IsPlaying() {
		playlist, err := BuildPlaylist(folder)
		if err != nil {
			l.Error().Println(err, "- stopping loop")
			return
		}
		l.Verbose().Println("new randomized playlist:", playlist)

		for _, macroFile := range playlist {
			if !c.IsPlaying() {
				return
			}
			c.playMacro(macroFile)
		}
	}
}

func (c *Controller) playMacro(macroFile string) {
	events, err := ParseMacroFile(macroFile)
	if err != nil {
		l.Warn().Println(err)
		return
	}
	if len(events) == 0 {
		return
	}

	l.Verbose().Println("playing", macroFile)

	if !c.sender.WaitForReady(session.DefaultReadyTimeout) {
		l.Error().Println("device not responding, stopping playback")
		c.Stop()
		return
	}

	defer c.releaseHeldKeys()

	for index, event := range events {
		if !c.IsPlaying() {
			return
		}
		if c.FocusCheck != nil && !c.FocusCheck() {
			l.Error().Println("target window focus lost, stopping macro")
			c.Stop()
			return
		}
		if index > 0 {
			delay := time.Duration((event.Time - events[index-1].Time) * float64(time.Second))
			if !c.interruptibleSleep(delay) {
				return
			}
		}

		ok := c.sender.SendCommand(
			protocol.KeyCommand(event.Type, event.Key),
			true,
			session.DefaultAckTimeout,
		)
		if !ok {
			l.Error().Println("expected ACK but got none, stopping to prevent de-sync")
			c.Stop()
			return
		}

		c.trackKey(event)
	}
}

func (c *Controller) trackKey(event Event) {
	c.keysLocker.Lock()
	defer c.keysLocker.Unlock()
	switch event.Type {
	case protocol.ActionDown:
		c.keysDown[event.Key] = struct{}{}
	case protocol.ActionUp:
		delete(c.keysDown, event.Key)
	}
}

// releaseHeldKeys sends up events for every key still tracked down so an
// aborted run cannot leave the peripheral with stuck keys.
func (c *Controller) releaseHeldKeys() {
	c.keysLocker.Lock()
	held := make([]string, 0, len(c.keysDown))
	for key := range c.keysDown {
		held = append(held, key)
	}
	c.keysDown = map[string]struct{}{}
	c.keysLocker.Unlock()

	for _, key := range held {
		ok := c.sender.SendCommand(protocol.KeyCommand(protocol.ActionUp, key), true, releaseAckTimeout)
		if ok {
			l.Verbose().Println("sent release for", key, "and received ACK")
		} else {
			l.Warn().Println("timeout on final release ACK for key", key)
		}
	}
}

func (c *Controller) interruptibleSleep(duration time.Duration) bool {
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if !c.IsPlaying() {
			return false
		}
		time.Sleep(sleepSlice)
	}
	return true
}
