package countdown

import (
	"errors"
	"github.com/allape/picolink/logger"
	"sync"
	"time"
)

var log = logger.New("[countdown]")

// Notifier delivers the completion message; messaging.Telegram satisfies it.
type Notifier interface {
	Send(text string) error
}

type Callbacks struct {
	OnTick     func(remaining int)
	OnStatus   func(status string)
	OnComplete func(finished bool)
}

// Service runs one background countdown at a time and fires the notifier
// when it completes naturally.
type Service struct {
	notifier Notifier

	locker  sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(notifier Notifier) *Service {
	return &Service{notifier: notifier}
}

func (s *Service) IsRunning() bool {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.running
}

func (s *Service) Start(seconds int, message string, callbacks Callbacks) error {
	if seconds <= 0 {
		return errors.New("countdown length must be greater than zero")
	}

	s.Stop()
	s.Wait()

	s.locker.Lock()
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.locker.Unlock()

	go func() {
		defer func() {
			s.locker.Lock()
			s.running = false
			s.locker.Unlock()
			close(done)
		}()

		for remaining := seconds; remaining > 0; remaining-- {
			select {
			case <-stopCh:
				if callbacks.OnComplete != nil {
					callbacks.OnComplete(false)
				}
				return
			default:
			}
			if callbacks.OnTick != nil {
				callbacks.OnTick(remaining)
			}
			select {
			case <-stopCh:
				if callbacks.OnComplete != nil {
					callbacks.OnComplete(false)
				}
				return
			case <-time.After(time.Second):
			}
		}

		if callbacks.OnStatus != nil {
			callbacks.OnStatus("countdown: sending notification...")
		}
		sent := false
		if s.notifier != nil {
			err := s.notifier.Send(message)
			if err != nil {
				log.Println("notification failed:", err)
				if callbacks.OnStatus != nil {
					callbacks.OnStatus("countdown: notification failed")
				}
			} else {
				sent = true
				if callbacks.OnStatus != nil {
					callbacks.OnStatus("countdown: notification sent")
				}
			}
		}
		if !sent && callbacks.OnStatus != nil {
			callbacks.OnStatus("countdown: completed")
		}
		if callbacks.OnComplete != nil {
			callbacks.OnComplete(true)
		}
	}()

	return nil
}

func (s *Service) Stop() {
	s.locker.Lock()
	defer s.locker.Unlock()
	if !s.running || s.stopCh == nil {
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Service) Wait() {
	s.locker.Lock()
	done := s.done
	s.locker.Unlock()
	if done != nil {
		<-done
	}
}
