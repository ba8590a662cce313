package countdown

import (
	"sync"
	"testing"
	"time"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestCountdownCompletes(t *testing.T) {
	notifier := &fakeNotifier{}
	service := New(notifier)

	ticks := make(chan int, 8)
	complete := make(chan bool, 1)
	err := service.Start(1, "time is up", Callbacks{
		OnTick:     func(remaining int) { ticks <- remaining },
		OnComplete: func(finished bool) { complete <- finished },
	})
	if err != nil {
		t.Fatal(err)
	}
	if !service.IsRunning() {
		t.Fatal("not running after Start")
	}

	select {
	case finished := <-complete:
		if !finished {
			t.Fatal("countdown reported as interrupted")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("countdown never completed")
	}
	service.Wait()

	if service.IsRunning() {
		t.Fatal("still running after completion")
	}
	if got := <-ticks; got != 1 {
		t.Fatal("first tick =", got)
	}
	messages := notifier.sent()
	if len(messages) != 1 || messages[0] != "time is up" {
		t.Fatal("notification not sent:", messages)
	}
}

func TestCountdownStop(t *testing.T) {
	notifier := &fakeNotifier{}
	service := New(notifier)

	complete := make(chan bool, 1)
	err := service.Start(60, "never", Callbacks{
		OnComplete: func(finished bool) { complete <- finished },
	})
	if err != nil {
		t.Fatal(err)
	}

	service.Stop()
	select {
	case finished := <-complete:
		if finished {
			t.Fatal("stopped countdown reported as finished")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not end the countdown")
	}
	service.Wait()

	if len(notifier.sent()) != 0 {
		t.Fatal("notification sent for a stopped countdown")
	}
}

func TestCountdownRestartReplacesRun(t *testing.T) {
	service := New(nil)

	err := service.Start(60, "first", Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	// a second Start stops the first run and takes over
	err = service.Start(1, "second", Callbacks{})
	if err != nil {
		t.Fatal(err)
	}
	service.Wait()
	if service.IsRunning() {
		t.Fatal("still running after the second run completed")
	}
}

func TestCountdownRejectsNonPositive(t *testing.T) {
	service := New(nil)
	if err := service.Start(0, "", Callbacks{}); err == nil {
		t.Fatal("expected an error for a zero-length countdown")
	}
}
