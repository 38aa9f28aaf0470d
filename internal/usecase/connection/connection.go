// Package connection demultiplexes the inbound stream of a Transport into
// command outcomes, which resolve pending slots, and events, which are handed
// to the caller on a buffered channel.
package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"webdriver-bidi/internal/adapter/transport"
	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/metrics"
	"webdriver-bidi/internal/usecase/correlation"
)

const (
	// DefaultEventBuffer is the event queue depth when Options leaves it unset.
	DefaultEventBuffer = 256
	rawBuffer          = 64
	outcomeBuffer      = 64
)

// Options configures a Connection.
type Options struct {
	EventBuffer int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Connection owns a Transport and routes its traffic. Two background tasks
// run for its lifetime: the raw listener, which parses frames, and the
// resolver, which fulfills pending slots.
type Connection struct {
	id        string
	transport transport.Transport
	registry  *correlation.Registry
	events    chan *domain.EventMessage
	logger    *slog.Logger
	metrics   *metrics.Metrics

	done      chan struct{}
	closeOnce sync.Once
}

// New starts listening on t. Outcomes are resolved against reg, which the
// caller shares with whatever issues ids.
func New(t transport.Transport, reg *correlation.Registry, opts Options) (*Connection, error) {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := newConnectionID()
	c := &Connection{
		id:        id,
		transport: t,
		registry:  reg,
		events:    make(chan *domain.EventMessage, opts.EventBuffer),
		logger:    opts.Logger.With("conn", id),
		metrics:   opts.Metrics,
		done:      make(chan struct{}),
	}

	raw := make(chan string, rawBuffer)
	if err := t.Listen(raw); err != nil {
		return nil, fmt.Errorf("connection listen: %w", err)
	}

	outcomes := make(chan domain.CommandOutcome, outcomeBuffer)
	var g errgroup.Group
	g.Go(func() error { return c.listen(raw, outcomes) })
	g.Go(func() error { return c.resolve(outcomes) })
	go func() {
		if err := g.Wait(); err != nil {
			c.logger.Warn("connection loop ended with error", "error", err)
		}
		c.finish()
	}()

	return c, nil
}

// ID returns a unique identifier for log correlation.
func (c *Connection) ID() string { return c.id }

// Registry returns the pending-command registry outcomes are resolved against.
func (c *Connection) Registry() *correlation.Registry { return c.registry }

// Events delivers inbound events in arrival order. It is closed when the
// connection ends.
func (c *Connection) Events() <-chan *domain.EventMessage { return c.events }

// Done is closed after both background tasks have exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Err reports why the underlying transport ended; nil for a clean close.
func (c *Connection) Err() error { return c.transport.Err() }

// Send registers a pending slot for env.ID and writes the envelope. The slot
// is withdrawn again if the write fails.
func (c *Connection) Send(ctx context.Context, env *domain.CommandEnvelope) (*correlation.Slot, error) {
	select {
	case <-c.done:
		return nil, domain.ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	slot, err := c.registry.Insert(env.ID)
	if err != nil {
		return nil, err
	}
	if err := c.transport.Send(ctx, string(data)); err != nil {
		c.registry.Remove(slot)
		return nil, err
	}
	return slot, nil
}

// Close shuts the transport and waits for the background tasks.
func (c *Connection) Close() error {
	err := c.transport.Close()
	<-c.done
	return err
}

// listen parses each raw frame and routes it. A frame that does not parse is
// logged and skipped.
func (c *Connection) listen(raw <-chan string, outcomes chan<- domain.CommandOutcome) error {
	defer close(outcomes)
	defer close(c.events)

	for text := range raw {
		msg, err := domain.ParseMessage([]byte(text))
		if err != nil {
			c.metrics.MalformedMessage()
			c.logger.Warn("dropped inbound frame", "error", err, "frame", truncate(text, 256))
			continue
		}

		switch m := msg.(type) {
		case *domain.EventMessage:
			c.metrics.EventReceived(m.Method)
			select {
			case c.events <- m:
			default:
				c.metrics.EventDropped()
				c.logger.Warn("event queue full, dropping event", "method", m.Method)
			}
		case domain.CommandOutcome:
			outcomes <- m
		}
	}
	return nil
}

// resolve fulfills the pending slot matching each outcome.
func (c *Connection) resolve(outcomes <-chan domain.CommandOutcome) error {
	for m := range outcomes {
		id, ok := m.CommandID()
		if !ok {
			if em, isErr := m.(*domain.ErrorMessage); isErr {
				c.logger.Warn("uncorrelated error from remote end", "code", string(em.Code), "message", em.Message)
			}
			continue
		}
		if !c.registry.Resolve(m) {
			c.metrics.OrphanedOutcome()
			c.logger.Debug("orphaned command outcome", "id", id, "type", string(m.Type()))
		}
	}
	return nil
}

func (c *Connection) finish() {
	c.closeOnce.Do(func() {
		if n := len(c.registry.Drain()); n > 0 {
			c.logger.Debug("connection ended with commands outstanding", "pending", n)
		}
		close(c.done)
		c.logger.Info("connection closed")
	})
}

func newConnectionID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
