// Package transporttest provides an in-memory Transport for tests of the
// layers above the socket.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"webdriver-bidi/internal/adapter/transport"
	"webdriver-bidi/internal/domain"
)

// Fake records sent messages and lets a test inject inbound ones.
type Fake struct {
	sent    chan string
	inbound chan string
	done    chan struct{}

	mu        sync.Mutex
	listening bool
	sendErr   error
	err       error
	closeOnce sync.Once
}

var _ transport.Transport = (*Fake)(nil)

// New returns a fake with room for 1024 unread sent messages.
func New() *Fake {
	return &Fake{
		sent:    make(chan string, 1024),
		inbound: make(chan string, 1024),
		done:    make(chan struct{}),
	}
}

// Sent yields every message passed to Send, in order.
func (f *Fake) Sent() <-chan string { return f.sent }

// FailSends makes subsequent Send calls return err; nil restores them.
func (f *Fake) FailSends(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// Deliver queues text as if the remote end had sent it.
func (f *Fake) Deliver(text string) {
	select {
	case f.inbound <- text:
	case <-f.done:
	}
}

// Drop ends the connection as the remote end would, with err as the cause.
func (f *Fake) Drop(err error) { f.finish(err) }

func (f *Fake) Send(ctx context.Context, text string) error {
	select {
	case <-f.done:
		return domain.ErrTransportClosed
	default:
	}
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case f.sent <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) Listen(out chan<- string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening {
		return errors.New("transporttest: already listening")
	}
	f.listening = true

	go func() {
		defer close(out)
		for {
			select {
			case text := <-f.inbound:
				select {
				case out <- text:
				case <-f.done:
					return
				}
			case <-f.done:
				return
			}
		}
	}()
	return nil
}

func (f *Fake) Close() error {
	f.finish(nil)
	return nil
}

func (f *Fake) finish(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *Fake) Done() <-chan struct{} { return f.done }

func (f *Fake) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
