package connection

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdriver-bidi/internal/adapter/transport/transporttest"
	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/metrics"
	"webdriver-bidi/internal/usecase/correlation"
)

func newConn(t *testing.T, opts Options) (*Connection, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.New()
	c, err := New(fake, correlation.NewRegistry(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, fake
}

func send(t *testing.T, c *Connection, id uint64) *correlation.Slot {
	t.Helper()
	slot, err := c.Send(context.Background(), &domain.CommandEnvelope{ID: id, Command: domain.SessionStatus{}})
	require.NoError(t, err)
	return slot
}

func await(t *testing.T, slot *correlation.Slot) domain.CommandOutcome {
	t.Helper()
	select {
	case m := <-slot.C():
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("slot %d not resolved", slot.ID())
		return nil
	}
}

func TestSendWritesEnvelope(t *testing.T) {
	c, fake := newConn(t, Options{})
	send(t, c, 11)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(<-fake.Sent()), &sent))
	assert.Equal(t, float64(11), sent["id"])
	assert.Equal(t, "session.status", sent["method"])
	assert.True(t, c.Registry().Has(11))
	assert.NotEmpty(t, c.ID())
}

func TestSendFailureWithdrawsSlot(t *testing.T) {
	c, fake := newConn(t, Options{})
	boom := errors.New("write failed")
	fake.FailSends(boom)

	_, err := c.Send(context.Background(), &domain.CommandEnvelope{ID: 4, Command: domain.SessionStatus{}})
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Registry().Has(4))
}

func TestSendDuplicateID(t *testing.T) {
	c, _ := newConn(t, Options{})
	send(t, c, 9)
	_, err := c.Send(context.Background(), &domain.CommandEnvelope{ID: 9, Command: domain.SessionStatus{}})
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestOutOfOrderResolution(t *testing.T) {
	c, fake := newConn(t, Options{})
	a := send(t, c, 1)
	b := send(t, c, 2)

	fake.Deliver(`{"type":"success","id":2,"result":{"who":"b"}}`)
	fake.Deliver(`{"type":"success","id":1,"result":{"who":"a"}}`)

	gotB := await(t, b).(*domain.SuccessMessage)
	gotA := await(t, a).(*domain.SuccessMessage)
	assert.JSONEq(t, `{"who":"a"}`, string(gotA.Result))
	assert.JSONEq(t, `{"who":"b"}`, string(gotB.Result))
	assert.Equal(t, 0, c.Registry().Len())
}

func TestErrorOutcome(t *testing.T) {
	c, fake := newConn(t, Options{})
	slot := send(t, c, 3)

	fake.Deliver(`{"type":"error","id":3,"error":"unknown command","message":"nope"}`)
	em, ok := await(t, slot).(*domain.ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorCodeUnknownCommand, em.Code)
}

func TestMalformedInputResilience(t *testing.T) {
	m := metrics.New(nil)
	c, fake := newConn(t, Options{Metrics: m})
	slot := send(t, c, 5)

	fake.Deliver(`this is not json`)
	fake.Deliver(`{"type":"mystery"}`)
	fake.Deliver(`{"type":"success","id":5,"result":{}}`)

	await(t, slot)
	select {
	case <-c.Done():
		t.Fatal("listener must survive malformed input")
	default:
	}
	expected := `
# HELP bidi_malformed_messages_total Inbound frames that could not be parsed.
# TYPE bidi_malformed_messages_total counter
bidi_malformed_messages_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "bidi_malformed_messages_total"))
}

func TestUnknownIDDropped(t *testing.T) {
	m := metrics.New(nil)
	c, fake := newConn(t, Options{Metrics: m})

	fake.Deliver(`{"type":"success","id":424242,"result":{}}`)
	fake.Deliver(`{"type":"error","id":null,"error":"invalid argument","message":"x"}`)

	slot := send(t, c, 6)
	fake.Deliver(`{"type":"success","id":6,"result":{}}`)
	await(t, slot)

	assert.Equal(t, 0, c.Registry().Len())
	expected := `
# HELP bidi_orphaned_outcomes_total Command outcomes that matched no pending command.
# TYPE bidi_orphaned_outcomes_total counter
bidi_orphaned_outcomes_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "bidi_orphaned_outcomes_total"))
}

func TestEventsRouted(t *testing.T) {
	c, fake := newConn(t, Options{})
	slot := send(t, c, 8)

	fake.Deliver(`{"type":"event","method":"browsingContext.load","params":{"context":"c1"}}`)
	fake.Deliver(`{"type":"success","id":8,"result":{}}`)
	await(t, slot)

	select {
	case ev := <-c.Events():
		assert.Equal(t, domain.EventLoad, ev.Method)
		assert.Equal(t, "c1", ev.Context())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventQueueFullDrops(t *testing.T) {
	c, fake := newConn(t, Options{EventBuffer: 1})

	fake.Deliver(`{"type":"event","method":"log.entryAdded","params":{"n":1}}`)
	fake.Deliver(`{"type":"event","method":"log.entryAdded","params":{"n":2}}`)
	slot := send(t, c, 12)
	fake.Deliver(`{"type":"success","id":12,"result":{}}`)
	await(t, slot)

	ev := <-c.Events()
	assert.JSONEq(t, `{"n":1}`, string(ev.Params))
	select {
	case extra := <-c.Events():
		t.Fatalf("unexpected event %s", extra.Params)
	default:
	}
}

func TestTransportDropEndsConnection(t *testing.T) {
	c, fake := newConn(t, Options{})
	send(t, c, 20)

	cause := errors.New("connection reset")
	fake.Drop(cause)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not end")
	}
	assert.ErrorIs(t, c.Err(), cause)
	assert.Equal(t, 0, c.Registry().Len(), "outstanding slots are drained")

	_, open := <-c.Events()
	assert.False(t, open)

	_, err := c.Send(context.Background(), &domain.CommandEnvelope{ID: 21, Command: domain.SessionStatus{}})
	assert.ErrorIs(t, err, domain.ErrConnectionClosed)
}
