// Package subscription keeps the event name to handler mapping for a
// session and dispatches inbound events to it.
package subscription

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/metrics"
)

// Handler receives one event. Handlers run on the dispatch goroutine and
// must hand long work off themselves.
type Handler func(ctx context.Context, ev *domain.EventMessage)

type entry struct {
	subscription string
	handlers     []Handler
	contexts     map[string]struct{}
}

// Table is the per-session subscription registry. It is safe for concurrent
// use; handlers are never called with the lock held.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an empty table.
func New(logger *slog.Logger, m *metrics.Metrics) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		entries: make(map[string]*entry),
		logger:  logger,
		metrics: m,
	}
}

// Partition splits names into those already subscribed and those that still
// need a remote subscribe call. Both results are sorted and free of
// duplicates.
func (t *Table) Partition(names []string) (existing, fresh []string) {
	names = dedupe(names)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range names {
		if _, ok := t.entries[n]; ok {
			existing = append(existing, n)
		} else {
			fresh = append(fresh, n)
		}
	}
	return existing, fresh
}

// Append adds handlers to the entries for names. Names without an entry are
// skipped. Each entry keeps the context filter it was created with; the
// names whose filter differs from contexts are returned, sorted.
func (t *Table) Append(names []string, handlers []Handler, contexts []string) (mismatched []string) {
	want := filterOf(contexts)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range dedupe(names) {
		e, ok := t.entries[n]
		if !ok {
			continue
		}
		e.handlers = append(e.handlers, handlers...)
		if !maps.Equal(e.contexts, want) {
			mismatched = append(mismatched, n)
		}
	}
	return mismatched
}

// Add creates an entry for each name, all sharing the remote subscription
// id. An existing entry for a name is replaced.
func (t *Table) Add(subscription string, names []string, handlers []Handler, contexts []string) {
	t.put(subscription, names, handlers, contexts)
}

// Reserve creates entries for names that are not yet backed by a remote
// subscription, so events racing the subscribe response are delivered.
// Follow it with Confirm or Release.
func (t *Table) Reserve(names []string, handlers []Handler, contexts []string) {
	t.put("", names, handlers, contexts)
}

// Confirm attaches the remote subscription id to reserved entries.
func (t *Table) Confirm(names []string, subscription string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		if e, ok := t.entries[n]; ok && e.subscription == "" {
			e.subscription = subscription
		}
	}
}

// Release drops reserved entries that were never confirmed.
func (t *Table) Release(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		if e, ok := t.entries[n]; ok && e.subscription == "" {
			delete(t.entries, n)
		}
	}
}

func (t *Table) put(subscription string, names []string, handlers []Handler, contexts []string) {
	filter := filterOf(contexts)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		t.entries[n] = &entry{
			subscription: subscription,
			handlers:     slices.Clone(handlers),
			contexts:     filter,
		}
	}
}

// SubscriptionOf returns the remote subscription id covering name.
func (t *Table) SubscriptionOf(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[name]
	if !ok {
		return "", false
	}
	return e.subscription, true
}

// RemoveSubscription drops every entry created under subscription and
// returns the event names it covered, sorted.
func (t *Table) RemoveSubscription(subscription string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []string
	for n, e := range t.entries {
		if e.subscription == subscription {
			delete(t.entries, n)
			removed = append(removed, n)
		}
	}
	slices.Sort(removed)
	return removed
}

// Names lists event names backed by a remote subscription, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for n, e := range t.entries {
		if e.subscription != "" {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Dispatch invokes the handlers registered for ev.Method in registration
// order. An entry with a context filter only sees events for those contexts;
// events that carry no context pass every filter. It returns the number of
// handlers invoked.
func (t *Table) Dispatch(ctx context.Context, ev *domain.EventMessage) int {
	t.mu.RLock()
	e, ok := t.entries[ev.Method]
	var handlers []Handler
	var filter map[string]struct{}
	if ok {
		handlers = slices.Clone(e.handlers)
		filter = e.contexts
	}
	t.mu.RUnlock()

	if len(handlers) == 0 {
		return 0
	}
	if len(filter) > 0 {
		if c := ev.Context(); c != "" {
			if _, match := filter[c]; !match {
				return 0
			}
		}
	}

	for _, h := range handlers {
		t.invoke(ctx, ev, h)
	}
	return len(handlers)
}

func (t *Table) invoke(ctx context.Context, ev *domain.EventMessage, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.HandlerPanicked()
			t.logger.Error("event handler panicked",
				"event", ev.Method,
				"panic", r,
			)
		}
	}()
	h(ctx, ev)
}

// filterOf builds the context filter set; nil means every context.
func filterOf(contexts []string) map[string]struct{} {
	if len(contexts) == 0 {
		return nil
	}
	filter := make(map[string]struct{}, len(contexts))
	for _, c := range contexts {
		filter[c] = struct{}{}
	}
	return filter
}

func dedupe(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
