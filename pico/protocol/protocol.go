// Package protocol defines the line vocabulary spoken on the Pico DATA port.
//
// Everything on the wire is newline-delimited UTF-8 text. The peripheral
// carries no command identifiers, so ordering is the only correlation
// mechanism between commands and ACK/NACK replies.
package protocol

import (
	"strconv"
	"strings"
)

const (
	Ack   = "ACK"
	Nack  = "NACK"
	Ready = "PICO_READY"

	Hello     = "hello"
	Handshake = "hello|handshake"

	ActionDown = "down"
	ActionUp   = "up"

	KindKey    = "key"
	KindMouse  = "mouse"
	KindMove   = "move"
	KindScroll = "scroll"
)

// TrimLine strips the trailing carriage return and surrounding whitespace
// from a raw wire line.
func TrimLine(raw string) string {
	return strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
}

// IsHandshake reports whether line is a handshake probe: bare "hello" or
// "hello|handshake". The peripheral answers these with PICO_READY instead
// of ACK/NACK.
func IsHandshake(line string) bool {
	parts := strings.Split(line, "|")
	switch len(parts) {
	case 1:
		return strings.EqualFold(parts[0], Hello)
	case 2:
		return strings.EqualFold(parts[0], Hello) && strings.EqualFold(parts[1], "handshake")
	}
	return false
}

// IsConsoleBanner reports whether line looks like output from the Pico's
// console/REPL CDC port rather than the DATA port. Commands must never be
// written to a console port.
func IsConsoleBanner(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "circuitpython") ||
		strings.Contains(lower, "repl") ||
		strings.HasPrefix(lower, ">>>")
}

// Normalize rewrites relay shorthand into the canonical wire form. A bare
// "key|...", "mouse|..." or "scroll|..." triple gets the "hid|" prefix;
// legacy two-field "down|<key>" pairs and anything already canonical pass
// through unchanged.
func Normalize(payload string) string {
	message := strings.TrimSpace(payload)
	if message == "" {
		return ""
	}
	if strings.HasPrefix(message, "hid|") {
		return message
	}
	parts := strings.Split(message, "|")
	if len(parts) >= 3 {
		switch parts[0] {
		case KindKey, KindMouse, KindScroll:
			return "hid|" + message
		}
	}
	return message
}

// KeyCommand builds a legacy key event line, e.g. "down|a".
func KeyCommand(action, key string) string {
	if key == "" {
		return action
	}
	return action + "|" + key
}

// MoveCommand builds a relative cursor move line.
func MoveCommand(dx, dy int) string {
	return "hid|move|" + strconv.Itoa(dx) + "|" + strconv.Itoa(dy)
}

// ScrollCommand builds a wheel scroll line. Only dy is honored by the
// peripheral.
func ScrollCommand(dx, dy int) string {
	return "hid|scroll|" + strconv.Itoa(dx) + "|" + strconv.Itoa(dy)
}
