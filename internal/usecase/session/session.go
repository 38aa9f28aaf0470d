// Package session is the caller-facing command API: it performs the
// session.new handshake, issues correlated commands, and manages event
// subscriptions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"webdriver-bidi/internal/adapter/transport"
	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/metrics"
	"webdriver-bidi/internal/infra/tracer"
	"webdriver-bidi/internal/usecase/connection"
	"webdriver-bidi/internal/usecase/correlation"
	"webdriver-bidi/internal/usecase/subscription"
)

// DefaultCommandTimeout bounds the wait for a command outcome.
const DefaultCommandTimeout = 10 * time.Second

// maxID keeps ids exactly representable as JSON numbers.
const maxID = 1 << 53

// maxIDAttempts bounds redraws after an insert race on the same id.
const maxIDAttempts = 8

// State is the lifecycle position of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateAwaitingHandshake
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a Session.
type Options struct {
	// CommandTimeout defaults to DefaultCommandTimeout.
	CommandTimeout time.Duration
	// Capabilities are sent with session.new.
	Capabilities domain.CapabilitiesRequest
	// RateLimit throttles outgoing commands; 0 disables throttling.
	RateLimit rate.Limit
	Burst     int
	// EventBuffer is the depth of the inbound event queue.
	EventBuffer int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Session owns one Connection and its pending-command registry.
type Session struct {
	conn     *connection.Connection
	registry *correlation.Registry
	table    *subscription.Table
	timeout  time.Duration
	caps     domain.CapabilitiesRequest
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() uint64

	state atomic.Int32
	mu    sync.RWMutex
	id    string

	// subMu serializes subscribe and unsubscribe so the new-name partition
	// and the table update cannot interleave with another call.
	subMu sync.Mutex

	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc
	dispatchDone   chan struct{}
}

// New wraps t in a Connection and starts event dispatch. The session is not
// usable for ordinary commands until CreateSession succeeds.
func New(t transport.Transport, opts Options) (*Session, error) {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	registry := correlation.NewRegistry()
	conn, err := connection.New(t, registry, connection.Options{
		EventBuffer: opts.EventBuffer,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:         conn,
		registry:     registry,
		table:        subscription.New(opts.Logger, opts.Metrics),
		timeout:      opts.CommandTimeout,
		caps:         opts.Capabilities,
		logger:       opts.Logger.With("conn", conn.ID()),
		metrics:      opts.Metrics,
		newID:        randomID,
		dispatchDone: make(chan struct{}),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	s.dispatchCtx, s.dispatchCancel = context.WithCancel(context.Background())
	go s.dispatch()
	return s, nil
}

func randomID() uint64 {
	return rand.Uint64N(maxID-1) + 1
}

// dispatch delivers events to the subscription table in arrival order.
func (s *Session) dispatch() {
	defer close(s.dispatchDone)
	for ev := range s.conn.Events() {
		s.table.Dispatch(s.dispatchCtx, ev)
	}
}

// ID returns the remote session id, empty before the handshake completes.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State reports the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when the underlying connection has ended.
func (s *Session) Done() <-chan struct{} { return s.conn.Done() }

// Pending returns the number of commands awaiting an outcome.
func (s *Session) Pending() int { return s.registry.Len() }

// Subscriptions lists the event names with registered handlers.
func (s *Session) Subscriptions() []string { return s.table.Names() }

// CreateSession performs the session.new handshake. Any failure, including a
// malformed result, leaves the session Failed; it is not retried.
func (s *Session) CreateSession(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateAwaitingHandshake)) {
		return domain.NewDomainError("Session.CreateSession", domain.ErrInvalidInput, "handshake already attempted ("+s.State().String()+")")
	}

	res, err := call[domain.SessionNewResult](ctx, s, domain.SessionNew{Capabilities: s.caps}, nil, false)
	if err != nil {
		s.state.Store(int32(StateFailed))
		s.logger.Error("session handshake failed", "error", err)
		return fmt.Errorf("%w: %w", domain.ErrSessionFailed, err)
	}

	s.mu.Lock()
	s.id = res.SessionID
	s.mu.Unlock()
	s.state.Store(int32(StateReady))
	s.logger.Info("session ready", "session", res.SessionID)
	return nil
}

// Send issues cmd and waits for its outcome. A remote error is returned as a
// *domain.RemoteError; a missed deadline as domain.ErrTimeout.
func (s *Session) Send(ctx context.Context, cmd domain.Command) (json.RawMessage, error) {
	return s.SendWithExtra(ctx, cmd, nil)
}

// SendWithExtra is Send with additional top-level envelope fields.
func (s *Session) SendWithExtra(ctx context.Context, cmd domain.Command, extra map[string]any) (json.RawMessage, error) {
	h, err := s.issue(ctx, cmd, extra, true)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// SendAndGetHandle issues cmd and returns without waiting. The caller must
// Wait or Discard the handle.
func (s *Session) SendAndGetHandle(ctx context.Context, cmd domain.Command) (*Handle, error) {
	return s.issue(ctx, cmd, nil, true)
}

// issue draws a free id, registers its slot and writes the envelope.
func (s *Session) issue(ctx context.Context, cmd domain.Command, extra map[string]any, requireReady bool) (*Handle, error) {
	if cmd == nil {
		return nil, domain.NewDomainError("Session.Send", domain.ErrInvalidInput, "nil command")
	}
	method := cmd.Method()
	if requireReady {
		switch st := s.State(); st {
		case StateReady:
		case StateFailed:
			return nil, domain.NewDomainError("Session.Send", domain.ErrSessionFailed, method)
		default:
			return nil, domain.NewDomainError("Session.Send", domain.ErrSessionNotReady, method+" in state "+st.String())
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit: %w", method, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.drawID()
		spanCtx, span := tracer.StartCommandSpan(ctx, method, id)
		slot, err := s.conn.Send(spanCtx, &domain.CommandEnvelope{ID: id, Command: cmd, Extra: extra})
		if err != nil {
			span.End()
			if errors.Is(err, domain.ErrDuplicateID) {
				lastErr = err
				continue
			}
			tracer.RecordError(span, err)
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		s.metrics.CommandSent(method)
		return newHandle(s, slot, method, span), nil
	}
	return nil, fmt.Errorf("%s: %w", method, lastErr)
}

// drawID returns a random id not currently outstanding.
func (s *Session) drawID() uint64 {
	for {
		id := s.newID()
		if !s.registry.Has(id) {
			return id
		}
	}
}

// Status reports whether the remote end can create a new session. It may be
// called before the handshake.
func (s *Session) Status(ctx context.Context) (*domain.SessionStatusResult, error) {
	return call[domain.SessionStatusResult](ctx, s, domain.SessionStatus{}, nil, false)
}

// End ends the remote session. The connection stays open until Close.
func (s *Session) End(ctx context.Context) error {
	if _, err := call[domain.EmptyResult](ctx, s, domain.SessionEnd{}, nil, true); err != nil {
		return err
	}
	s.state.Store(int32(StateClosed))
	s.logger.Info("session ended", "session", s.ID())
	return nil
}

// Close shuts the connection and stops event dispatch. The context handed
// to handlers is canceled first so a handler blocked on it returns.
func (s *Session) Close() error {
	s.dispatchCancel()
	err := s.conn.Close()
	<-s.dispatchDone
	if s.State() != StateFailed {
		s.state.Store(int32(StateClosed))
	}
	return err
}

// Subscribe attaches handlers to events. Names already subscribed get the
// handlers appended with no remote call, and those handlers run under the
// context filter the name was first subscribed with; contexts only applies
// to the remaining names, which are subscribed in a single session.subscribe.
// Handlers for those names are live before the command is sent, so events
// arriving alongside the response are not lost. It returns the id of the new
// remote subscription, or when every name was already subscribed, the id
// covering the first name in sorted order.
func (s *Session) Subscribe(ctx context.Context, events []string, handlers []subscription.Handler, contexts []string) (string, error) {
	if len(events) == 0 {
		return "", domain.NewDomainError("Session.Subscribe", domain.ErrInvalidInput, "no events")
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	existing, fresh := s.table.Partition(events)
	if len(fresh) == 0 {
		s.appendHandlers(existing, handlers, contexts)
		id, _ := s.table.SubscriptionOf(existing[0])
		return id, nil
	}

	s.table.Reserve(fresh, handlers, contexts)
	res, err := call[domain.SessionSubscribeResult](ctx, s, domain.SessionSubscribe{Events: fresh, Contexts: contexts}, nil, true)
	if err != nil {
		s.table.Release(fresh)
		return "", err
	}
	s.table.Confirm(fresh, res.Subscription)
	s.appendHandlers(existing, handlers, contexts)
	s.logger.Debug("subscribed", "subscription", res.Subscription, "events", fresh)
	return res.Subscription, nil
}

func (s *Session) appendHandlers(names []string, handlers []subscription.Handler, contexts []string) {
	if len(names) == 0 {
		return
	}
	if mismatched := s.table.Append(names, handlers, contexts); len(mismatched) > 0 {
		s.logger.Debug("handlers appended under existing context filter",
			"events", mismatched,
			"contexts", contexts,
		)
	}
}

// Unsubscribe removes remote subscriptions and their local entries.
func (s *Session) Unsubscribe(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	if _, err := call[domain.EmptyResult](ctx, s, domain.SessionUnsubscribe{Subscriptions: ids}, nil, true); err != nil {
		return err
	}
	for _, id := range ids {
		removed := s.table.RemoveSubscription(id)
		s.logger.Debug("unsubscribed", "subscription", id, "events", removed)
	}
	return nil
}
