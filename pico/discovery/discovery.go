// Package discovery tells the Pico's DATA CDC port apart from its
// console/REPL port. Both enumerate with the same vendor and product, so the
// only reliable signal is what each port says when listened to.
package discovery

import (
	"github.com/allape/gogger"
	"github.com/allape/picolink/pico/channel"
	"github.com/allape/picolink/pico/channel/serialport"
	"github.com/allape/picolink/pico/protocol"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"sort"
	"time"
)

var l = gogger.New("pico.discovery")

// Outcome classifies one probed candidate port.
type Outcome string

const (
	DataPort    Outcome = "data-port"
	ConsolePort Outcome = "console-port"
	NoResponse  Outcome = "no-response"
)

// Candidate is a port name together with its probe outcome.
type Candidate struct {
	Name    string
	Outcome Outcome
}

const (
	DefaultBaud = 115200

	passiveWindow = time.Second
	probedWindow  = 1500 * time.Millisecond
)

// swappable in tests
var (
	listPorts         = serial.GetPortsList
	detailedPortsList = enumerator.GetDetailedPortsList
	openChannel       = func(name string, baud int) channel.Channel {
		return serialport.New(name, baud)
	}
)

// ListCandidatePorts enumerates the serial ports present on this host.
func ListCandidatePorts() ([]string, error) {
	return listPorts()
}

// QuickGuess returns a cheap best-guess DATA port without speaking the
// protocol: when one USB device exposes two CDC ports, the DATA interface
// enumerates after the console one. Returns "" when no guess can be made.
func QuickGuess() string {
	ports, err := detailedPortsList()
	if err != nil {
		l.Verbose().Println("enumerate:", err)
		return ""
	}

	bySerial := map[string][]string{}
	for _, port := range ports {
		if !port.IsUSB || port.SerialNumber == "" {
			continue
		}
		bySerial[port.SerialNumber] = append(bySerial[port.SerialNumber], port.Name)
	}

	serials := make([]string, 0, len(bySerial))
	for sn := range bySerial {
		serials = append(serials, sn)
	}
	sort.Strings(serials)

	for _, sn := range serials {
		group := bySerial[sn]
		if len(group) < 2 {
			continue
		}
		sort.Strings(group)
		return group[1]
	}

	return ""
}

// Probe walks the candidate ports, skipping exclude, and returns the first
// one classified as the DATA port, or "" when none qualifies.
func Probe(baud int, exclude string) string {
	if baud <= 0 {
		baud = DefaultBaud
	}

	names, err := ListCandidatePorts()
	if err != nil {
		l.Error().Println("list ports:", err)
		return ""
	}

	for _, name := range names {
		if name == "" || name == exclude {
			continue
		}
		outcome := ProbePort(name, baud)
		l.Verbose().Println(name, "->", outcome)
		if outcome == DataPort {
			return name
		}
	}

	return ""
}

// ProbePort opens one candidate and classifies it. The port is listened to
// passively first; a console banner ends the probe immediately, commands are
// never written to a REPL. Only a silent port gets one handshake probe and a
// second listen window. The port is closed again regardless of outcome.
func ProbePort(name string, baud int) Outcome {
	ch := openChannel(name, baud)

	err := ch.Open()
	if err != nil {
		l.Verbose().Println("skipping", name, ":", err)
		return NoResponse
	}
	defer func() {
		_ = ch.Close()
	}()

	err = ch.ToggleControlLines()
	if err != nil {
		l.Verbose().Println(name, "toggle control lines:", err)
	}

	outcome := listen(ch, passiveWindow)
	if outcome != NoResponse {
		return outcome
	}

	err = ch.WriteLine(protocol.Handshake)
	if err != nil {
		l.Verbose().Println(name, "handshake probe:", err)
		return NoResponse
	}

	return listen(ch, probedWindow)
}

func listen(ch channel.Channel, window time.Duration) Outcome {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		line, err := ch.ReadLine()
		if err != nil {
			return NoResponse
		}
		if line == "" {
			continue
		}
		if protocol.IsConsoleBanner(line) {
			return ConsolePort
		}
		if line == protocol.Ready {
			return DataPort
		}
	}
	return NoResponse
}
