package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/metrics"
	"webdriver-bidi/internal/infra/tracer"
	"webdriver-bidi/internal/usecase/correlation"
)

// ErrHandleConsumed is returned by a second Wait on the same handle.
var ErrHandleConsumed = errors.New("command handle already awaited or discarded")

const (
	handleIdle int32 = iota
	handleClaimed
	handleExpired
)

// Handle is an issued command whose outcome has not been collected yet. Its
// deadline is fixed when the command is written, so a late Wait does not
// extend it. A handle nobody waits on expires at the deadline by itself; a
// later Wait reports what happened then.
type Handle struct {
	session  *Session
	slot     *correlation.Slot
	method   string
	span     trace.Span
	sentAt   time.Time
	deadline time.Time

	state   atomic.Int32
	endOnce sync.Once

	timer   *time.Timer
	expired chan struct{}
	lateRaw json.RawMessage
	lateErr error
}

func newHandle(s *Session, slot *correlation.Slot, method string, span trace.Span) *Handle {
	now := time.Now()
	h := &Handle{
		session:  s,
		slot:     slot,
		method:   method,
		span:     span,
		sentAt:   now,
		deadline: now.Add(s.timeout),
		expired:  make(chan struct{}),
	}
	h.timer = time.AfterFunc(s.timeout, h.expire)
	return h
}

// ID returns the command id on the wire.
func (h *Handle) ID() uint64 { return h.slot.ID() }

// Method returns the command method.
func (h *Handle) Method() string { return h.method }

// Wait blocks until the outcome arrives, the deadline passes, ctx is done or
// the connection ends. Whatever the reason, the pending entry is gone when
// Wait returns.
func (h *Handle) Wait(ctx context.Context) (json.RawMessage, error) {
	if !h.claim() {
		if h.state.CompareAndSwap(handleExpired, handleClaimed) {
			<-h.expired
			return h.lateRaw, h.lateErr
		}
		return nil, ErrHandleConsumed
	}

	select {
	case m := <-h.slot.C():
		return h.complete(m)
	default:
	}

	timer := time.NewTimer(time.Until(h.deadline))
	defer timer.Stop()

	select {
	case m := <-h.slot.C():
		return h.complete(m)
	case <-timer.C:
		if m, ok := h.abandon(); ok {
			return h.complete(m)
		}
		return nil, h.fail(metrics.OutcomeTimeout, domain.NewDomainError("Session.Send", domain.ErrTimeout, h.method))
	case <-ctx.Done():
		if m, ok := h.abandon(); ok {
			return h.complete(m)
		}
		return nil, h.fail(metrics.OutcomeCanceled, fmt.Errorf("%s: %w", h.method, ctx.Err()))
	case <-h.session.conn.Done():
		select {
		case m := <-h.slot.C():
			return h.complete(m)
		default:
		}
		h.session.registry.Remove(h.slot)
		return nil, h.fail(metrics.OutcomeClosed, domain.NewDomainError("Session.Send", domain.ErrConnectionClosed, h.method))
	}
}

// Discard gives up on the outcome. A response arriving later is dropped as
// an orphan.
func (h *Handle) Discard() {
	if !h.claim() {
		h.state.CompareAndSwap(handleExpired, handleClaimed)
		return
	}
	if m, ok := h.abandon(); ok {
		if _, isErr := m.(*domain.ErrorMessage); isErr {
			h.finish(metrics.OutcomeError, nil)
			return
		}
		h.finish(metrics.OutcomeSuccess, nil)
		return
	}
	h.finish(metrics.OutcomeCanceled, nil)
}

// claim takes the handle for a waiter. Once claimed the waiter enforces the
// deadline itself.
func (h *Handle) claim() bool {
	if !h.state.CompareAndSwap(handleIdle, handleClaimed) {
		return false
	}
	h.timer.Stop()
	return true
}

// expire runs at the deadline of a handle nobody has claimed. It settles the
// command and keeps the outcome for a later Wait.
func (h *Handle) expire() {
	if !h.state.CompareAndSwap(handleIdle, handleExpired) {
		return
	}
	defer close(h.expired)

	if m, ok := h.abandon(); ok {
		h.lateRaw, h.lateErr = h.complete(m)
		return
	}
	select {
	case <-h.session.conn.Done():
		h.lateErr = h.fail(metrics.OutcomeClosed, domain.NewDomainError("Session.Send", domain.ErrConnectionClosed, h.method))
	default:
		h.lateErr = h.fail(metrics.OutcomeTimeout, domain.NewDomainError("Session.Send", domain.ErrTimeout, h.method))
	}
}

// abandon withdraws the slot. If the resolver already claimed it, the
// outcome is in flight and is returned instead.
func (h *Handle) abandon() (domain.CommandOutcome, bool) {
	if h.session.registry.Remove(h.slot) {
		return nil, false
	}
	select {
	case m := <-h.slot.C():
		return m, true
	case <-h.session.conn.Done():
		// drained on shutdown without an outcome
		return nil, false
	}
}

func (h *Handle) complete(m domain.CommandOutcome) (json.RawMessage, error) {
	switch m := m.(type) {
	case *domain.SuccessMessage:
		h.finish(metrics.OutcomeSuccess, nil)
		return m.Result, nil
	case *domain.ErrorMessage:
		remote := m.Err()
		h.span.SetAttributes(tracer.StringAttr(tracer.AttrErrorCode, string(remote.Code)))
		return nil, h.fail(metrics.OutcomeError, fmt.Errorf("%s: %w", h.method, remote))
	default:
		return nil, h.fail(metrics.OutcomeError, fmt.Errorf("%s: %w: outcome %T", h.method, domain.ErrUnexpectedResult, m))
	}
}

func (h *Handle) fail(outcome string, err error) error {
	h.finish(outcome, err)
	return err
}

func (h *Handle) finish(outcome string, err error) {
	h.endOnce.Do(func() {
		h.session.metrics.CommandCompleted(h.method, outcome, time.Since(h.sentAt))
		if err != nil {
			tracer.RecordError(h.span, err)
		} else {
			tracer.SetOK(h.span)
		}
		h.span.End()
		if outcome == metrics.OutcomeTimeout {
			h.session.logger.Warn("command timed out", "method", h.method, "id", h.slot.ID())
		}
	})
}

// Await waits on h and decodes the result into T.
func Await[T any](ctx context.Context, h *Handle) (*T, error) {
	raw, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return decodeResult[T](h.method, raw)
}
