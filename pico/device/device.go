// Package device is the peripheral-side command interpreter: the exact
// counterpart of the firmware running on the Pico's DATA CDC port. The host
// never runs it against real hardware, but the simulator and the tests do,
// and interoperability depends on matching its ACK/NACK behavior line for
// line.
package device

import (
	"bufio"
	"context"
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/hid"
	"github.com/allape/picolink/pico/protocol"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

var l = gogger.New("pico.device")

// BeaconInterval is how often PICO_READY is re-emitted until the first
// valid line has been processed.
const BeaconInterval = time.Second

// HID is the output surface the interpreter drives. A command is
// acknowledged only when one of these calls actually ran without error.
type HID interface {
	PressKey(code hid.Keycode) error
	ReleaseKey(code hid.Keycode) error
	PressButton(btn hid.Button) error
	ReleaseButton(btn hid.Button) error
	Move(dx, dy int) error
	Wheel(delta int) error
}

// Interpreter parses inbound command lines and replies ACK, NACK or
// PICO_READY. It is not safe for concurrent use; Serve owns one.
type Interpreter struct {
	out          HID
	commandsSeen bool
}

func New(h HID) *Interpreter {
	return &Interpreter{out: h}
}

// CommandsSeen reports whether any valid line has arrived yet; the beacon
// stops once it has.
func (i *Interpreter) CommandsSeen() bool {
	return i.commandsSeen
}

// Handle processes one trimmed, non-empty line and returns the reply to put
// on the wire. Handshake probes are answered with PICO_READY and are not
// HID commands; everything else gets ACK when a real HID state change
// happened, NACK otherwise.
func (i *Interpreter) Handle(line string) string {
	if protocol.IsHandshake(line) {
		i.commandsSeen = true
		return protocol.Ready
	}

	handled := i.execute(line)
	i.commandsSeen = true
	if handled {
		return protocol.Ack
	}
	l.Verbose().Println("unhandled command:", line)
	return protocol.Nack
}

func (i *Interpreter) execute(line string) bool {
	parts := strings.Split(line, "|")
	handled := false

	if len(parts) >= 4 && strings.EqualFold(parts[0], "hid") {
		kind := strings.ToLower(parts[1])
		action := strings.ToLower(parts[2])

		switch kind {
		case protocol.KindKey:
			code, ok := hid.LookupKey(parts[3])
			if ok {
				handled = i.keyAction(action, code)
			}
		case protocol.KindMouse:
			btn, ok := hid.LookupButton(parts[3])
			if ok {
				handled = i.buttonAction(action, btn)
			}
		case protocol.KindMove:
			// hid|move|dx|dy
			dx, err1 := strconv.Atoi(strings.TrimSpace(parts[2]))
			dy, err2 := strconv.Atoi(strings.TrimSpace(parts[3]))
			if err1 == nil && err2 == nil && (dx != 0 || dy != 0) {
				handled = i.out.Move(dx, dy) == nil
			}
		case protocol.KindScroll:
			// hid|scroll|dx|dy, only dy maps to the wheel
			_, err1 := strconv.Atoi(strings.TrimSpace(parts[2]))
			dy, err2 := strconv.Atoi(strings.TrimSpace(parts[3]))
			if err1 == nil && err2 == nil && dy != 0 {
				handled = i.out.Wheel(-dy) == nil
			}
		}
	}

	if !handled && len(parts) == 2 {
		action := strings.ToLower(strings.TrimSpace(parts[0]))
		code, ok := hid.LookupKey(parts[1])
		if ok {
			handled = i.keyAction(action, code)
		}
	}

	return handled
}

func (i *Interpreter) keyAction(action string, code hid.Keycode) bool {
	switch action {
	case protocol.ActionDown:
		return i.out.PressKey(code) == nil
	case protocol.ActionUp:
		return i.out.ReleaseKey(code) == nil
	}
	return false
}

func (i *Interpreter) buttonAction(action string, btn hid.Button) bool {
	switch action {
	case protocol.ActionDown:
		return i.out.PressButton(btn) == nil
	case protocol.ActionUp:
		return i.out.ReleaseButton(btn) == nil
	}
	return false
}

// Serve runs the interpreter over rw until ctx is done or rw fails:
// PICO_READY once on start, re-emitted every second until the first valid
// line, then command dispatch with per-line replies.
func Serve(ctx context.Context, rw io.ReadWriter, h HID) error {
	interp := New(h)

	var writeLocker sync.Mutex
	writeLine := func(line string) error {
		writeLocker.Lock()
		defer writeLocker.Unlock()
		_, err := rw.Write([]byte(line + "\n"))
		return err
	}

	err := writeLine(protocol.Ready)
	if err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(rw)
		for scanner.Scan() {
			line := protocol.TrimLine(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	beacon := time.NewTicker(BeaconInterval)
	defer beacon.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-beacon.C:
			if interp.CommandsSeen() {
				continue
			}
			err = writeLine(protocol.Ready)
			if err != nil {
				return err
			}
		case line := <-lines:
			err = writeLine(interp.Handle(line))
			if err != nil {
				return err
			}
		}
	}
}
