package device

import (
	"github.com/allape/picolink/pico/hid"
	"sync"
)

// StateHID is an in-memory HID backend tracking the emulated input state.
// The simulator and the tests use it in place of real USB HID endpoints.
type StateHID struct {
	mu      sync.Mutex
	keys    map[hid.Keycode]bool
	buttons hid.Button
	x, y    int
	wheel   int
}

func NewStateHID() *StateHID {
	return &StateHID{
		keys: map[hid.Keycode]bool{},
	}
}

func (s *StateHID) PressKey(code hid.Keycode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[code] = true
	return nil
}

func (s *StateHID) ReleaseKey(code hid.Keycode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, code)
	return nil
}

func (s *StateHID) PressButton(btn hid.Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons |= btn
	return nil
}

func (s *StateHID) ReleaseButton(btn hid.Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons &^= btn
	return nil
}

func (s *StateHID) Move(dx, dy int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x += dx
	s.y += dy
	return nil
}

func (s *StateHID) Wheel(delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wheel += delta
	return nil
}

func (s *StateHID) IsKeyDown(code hid.Keycode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[code]
}

func (s *StateHID) Buttons() hid.Button {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons
}

func (s *StateHID) Position() (x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y
}

func (s *StateHID) WheelTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wheel
}

// DownKeys returns the currently pressed keycodes in no particular order.
func (s *StateHID) DownKeys() []hid.Keycode {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]hid.Keycode, 0, len(s.keys))
	for code := range s.keys {
		keys = append(keys, code)
	}
	return keys
}
