package device

import (
	"bufio"
	"context"
	"github.com/allape/picolink/pico/hid"
	"github.com/allape/picolink/pico/protocol"
	"net"
	"testing"
	"time"
)

func TestHandshakeRepliesReady(t *testing.T) {
	interp := New(NewStateHID())

	if interp.CommandsSeen() {
		t.Fatal("fresh interpreter claims it saw commands")
	}
	if got := interp.Handle("hello"); got != protocol.Ready {
		t.Fatalf("hello: expected PICO_READY, got %q", got)
	}
	if got := interp.Handle("hello|handshake"); got != protocol.Ready {
		t.Fatalf("hello|handshake: expected PICO_READY, got %q", got)
	}
	if !interp.CommandsSeen() {
		t.Fatal("handshake did not mark commands seen")
	}
}

func TestKeyCommands(t *testing.T) {
	state := NewStateHID()
	interp := New(state)

	if got := interp.Handle("down|a"); got != protocol.Ack {
		t.Fatalf("down|a: expected ACK, got %q", got)
	}
	if !state.IsKeyDown(hid.KeyMap["a"]) {
		t.Fatal("key a not held after down|a")
	}
	if got := interp.Handle("hid|key|up|a"); got != protocol.Ack {
		t.Fatalf("hid|key|up|a: expected ACK, got %q", got)
	}
	if state.IsKeyDown(hid.KeyMap["a"]) {
		t.Fatal("key a still held after release")
	}
	if got := interp.Handle("down|nonexistent"); got != protocol.Nack {
		t.Fatalf("unknown key: expected NACK, got %q", got)
	}
	if got := interp.Handle("sideways|a"); got != protocol.Nack {
		t.Fatalf("unknown action: expected NACK, got %q", got)
	}
}

func TestMouseCommands(t *testing.T) {
	state := NewStateHID()
	interp := New(state)

	if got := interp.Handle("hid|mouse|down|left"); got != protocol.Ack {
		t.Fatalf("mouse down: expected ACK, got %q", got)
	}
	if state.Buttons()&hid.ButtonLeft == 0 {
		t.Fatal("left button not pressed")
	}
	if got := interp.Handle("hid|mouse|up|left"); got != protocol.Ack {
		t.Fatalf("mouse up: expected ACK, got %q", got)
	}
	if state.Buttons() != 0 {
		t.Fatal("button still pressed after release")
	}
	if got := interp.Handle("hid|mouse|down|fourth"); got != protocol.Nack {
		t.Fatalf("unknown button: expected NACK, got %q", got)
	}
}

func TestMoveAndScroll(t *testing.T) {
	state := NewStateHID()
	interp := New(state)

	if got := interp.Handle("hid|move|5|-3"); got != protocol.Ack {
		t.Fatalf("move: expected ACK, got %q", got)
	}
	x, y := state.Position()
	if x != 5 || y != -3 {
		t.Fatalf("position = (%d,%d), expected (5,-3)", x, y)
	}

	// a zero-delta move changes nothing and is refused
	if got := interp.Handle("hid|move|0|0"); got != protocol.Nack {
		t.Fatalf("zero move: expected NACK, got %q", got)
	}
	if got := interp.Handle("hid|move|abc|1"); got != protocol.Nack {
		t.Fatalf("bad numeric: expected NACK, got %q", got)
	}

	// scroll wheel runs opposite to dy
	if got := interp.Handle("hid|scroll|0|2"); got != protocol.Ack {
		t.Fatalf("scroll: expected ACK, got %q", got)
	}
	if state.WheelTotal() != -2 {
		t.Fatalf("wheel = %d, expected -2", state.WheelTotal())
	}
	if got := interp.Handle("hid|scroll|1|0"); got != protocol.Nack {
		t.Fatalf("zero-dy scroll: expected NACK, got %q", got)
	}
}

func TestServeBeaconAndDispatch(t *testing.T) {
	host, dev := net.Pipe()
	defer func() {
		_ = host.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- Serve(ctx, dev, NewStateHID())
	}()

	reader := bufio.NewScanner(host)
	readLine := func() string {
		t.Helper()
		if !reader.Scan() {
			t.Fatal("connection closed early:", reader.Err())
		}
		return reader.Text()
	}

	if got := readLine(); got != protocol.Ready {
		t.Fatalf("expected initial PICO_READY, got %q", got)
	}
	// the beacon keeps firing until a command arrives
	if got := readLine(); got != protocol.Ready {
		t.Fatalf("expected beacon PICO_READY, got %q", got)
	}

	_, err := host.Write([]byte("down|a\n"))
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		got := readLine()
		if got == protocol.Ack {
			break
		}
		if got != protocol.Ready || time.Now().After(deadline) {
			t.Fatalf("expected ACK, got %q", got)
		}
	}

	_, err = host.Write([]byte("down|nonexistent\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := readLine(); got != protocol.Nack {
		t.Fatalf("expected NACK, got %q", got)
	}

	cancel()
	select {
	case err := <-served:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
