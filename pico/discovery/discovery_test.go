package discovery

import (
	"errors"
	"github.com/allape/picolink/pico/channel"
	"go.bug.st/serial/enumerator"
	"sync"
	"testing"
	"time"
)

type fakePort struct {
	mu      sync.Mutex
	passive []string
	onProbe []string
	openErr error
	opened  bool
	closed  bool
	writes  int
}

func (f *fakePort) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) WriteLine(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.passive = append(f.passive, f.onProbe...)
	f.onProbe = nil
	return nil
}

func (f *fakePort) ReadLine() (string, error) {
	f.mu.Lock()
	if len(f.passive) > 0 {
		line := f.passive[0]
		f.passive = f.passive[1:]
		f.mu.Unlock()
		return line, nil
	}
	f.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	return "", nil
}

func (f *fakePort) ToggleControlLines() error {
	return nil
}

func (f *fakePort) Drain() error {
	return nil
}

func withFakePorts(t *testing.T, names []string, ports map[string]*fakePort) {
	t.Helper()
	oldList, oldOpen := listPorts, openChannel
	listPorts = func() ([]string, error) {
		return names, nil
	}
	openChannel = func(name string, baud int) channel.Channel {
		port, ok := ports[name]
		if !ok {
			return &fakePort{openErr: errors.New("no such port")}
		}
		return port
	}
	t.Cleanup(func() {
		listPorts, openChannel = oldList, oldOpen
	})
}

func TestProbePrefersReadyPort(t *testing.T) {
	ports := map[string]*fakePort{
		"COM1": {passive: []string{">>>"}},
		"COM2": {passive: []string{"PICO_READY"}},
	}
	withFakePorts(t, []string{"COM1", "COM2"}, ports)

	got := Probe(DefaultBaud, "")
	if got != "COM2" {
		t.Fatalf("expected COM2, got %q", got)
	}
	for name, port := range ports {
		port.mu.Lock()
		if port.opened && !port.closed {
			t.Fatalf("probing left %s open", name)
		}
		port.mu.Unlock()
	}
}

func TestConsolePortIsNeverDataPort(t *testing.T) {
	// the port shows a REPL banner and later a READY; the banner wins and
	// the probe must stop before writing anything
	port := &fakePort{
		passive: []string{"Adafruit CircuitPython 9.0.5 on 2024-05-22", "PICO_READY"},
	}
	withFakePorts(t, []string{"COM7"}, map[string]*fakePort{"COM7": port})

	outcome := ProbePort("COM7", DefaultBaud)
	if outcome != ConsolePort {
		t.Fatalf("expected console-port, got %s", outcome)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if port.writes != 0 {
		t.Fatal("wrote to a console port")
	}
	if len(port.passive) != 1 {
		t.Fatal("kept reading past the console banner")
	}
}

func TestSilentPortGetsOneHandshakeProbe(t *testing.T) {
	port := &fakePort{
		onProbe: []string{"PICO_READY"},
	}
	withFakePorts(t, []string{"COM3"}, map[string]*fakePort{"COM3": port})

	outcome := ProbePort("COM3", DefaultBaud)
	if outcome != DataPort {
		t.Fatalf("expected data-port after probe, got %s", outcome)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if port.writes != 1 {
		t.Fatalf("expected exactly one handshake probe, got %d writes", port.writes)
	}
}

func TestDeadPortIsNoResponse(t *testing.T) {
	withFakePorts(t, []string{"COM5"}, map[string]*fakePort{"COM5": {}})

	outcome := ProbePort("COM5", DefaultBaud)
	if outcome != NoResponse {
		t.Fatalf("expected no-response, got %s", outcome)
	}
}

func TestProbeHonorsExclude(t *testing.T) {
	ports := map[string]*fakePort{
		"COM2": {passive: []string{"PICO_READY"}},
	}
	withFakePorts(t, []string{"COM2"}, ports)

	if got := Probe(DefaultBaud, "COM2"); got != "" {
		t.Fatalf("excluded port was returned: %q", got)
	}
}

func TestQuickGuessPicksSecondInterface(t *testing.T) {
	old := detailedPortsList
	detailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, SerialNumber: "PICO123"},
			{Name: "/dev/ttyACM1", IsUSB: true, SerialNumber: "PICO123"},
		}, nil
	}
	t.Cleanup(func() {
		detailedPortsList = old
	})

	if got := QuickGuess(); got != "/dev/ttyACM1" {
		t.Fatalf("expected /dev/ttyACM1, got %q", got)
	}
}

func TestQuickGuessNeedsAPair(t *testing.T) {
	old := detailedPortsList
	detailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyACM0", IsUSB: true, SerialNumber: "PICO123"},
		}, nil
	}
	t.Cleanup(func() {
		detailedPortsList = old
	})

	if got := QuickGuess(); got != "" {
		t.Fatalf("expected no guess, got %q", got)
	}
}
