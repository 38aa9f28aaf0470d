// Package bidisdk is the public entry point for driving a browser over
// WebDriver BiDi.
//
// Example:
//
//	c, err := bidisdk.Connect(ctx,
//	    bidisdk.WithAddress("localhost", 9222),
//	    bidisdk.WithCommandTimeout(5*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	tab, _ := c.CreateTab(ctx)
//	_, err = c.Navigate(ctx, tab, "https://example.com")
//
// WithConfig replaces every field, so pass it before the other options.
package bidisdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"webdriver-bidi/internal/adapter/transport"
	"webdriver-bidi/internal/domain"
	"webdriver-bidi/internal/infra/config"
	"webdriver-bidi/internal/infra/metrics"
	"webdriver-bidi/internal/usecase/session"
	"webdriver-bidi/internal/usecase/subscription"
)

// endTimeout bounds the session.end sent by Close.
const endTimeout = 2 * time.Second

// Handler receives events for the names it was subscribed to.
type Handler = subscription.Handler

// Event is an inbound event message.
type Event = domain.EventMessage

// Client is a connected, handshaken BiDi session.
type Client struct {
	session *session.Session
	logger  *slog.Logger
}

// Connect dials the remote end and performs the session.new handshake.
func Connect(ctx context.Context, opts ...Option) (*Client, error) {
	o := &options{cfg: config.Defaults(), handshake: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	cfg := o.cfg

	t := o.transport
	if t == nil {
		ws, err := transport.Dial(ctx, transport.WebSocketConfig{
			Host:         cfg.Connection.Host,
			Port:         cfg.Connection.Port,
			Path:         cfg.Connection.Path,
			DialTimeout:  cfg.Connection.DialTimeout,
			ReadLimit:    cfg.Connection.ReadLimit,
			PingInterval: cfg.Connection.PingInterval,
			HTTPHeader:   httpHeader(cfg.Connection.Headers),
		}, o.logger)
		if err != nil {
			return nil, err
		}
		t = ws
	}

	s, err := session.New(t, sessionOptions(cfg, o.logger, o.metrics))
	if err != nil {
		t.Close()
		return nil, err
	}
	c := &Client{session: s, logger: o.logger}

	if o.handshake {
		if err := s.CreateSession(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return c, nil
}

// sessionOptions maps a config onto session options.
func sessionOptions(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) session.Options {
	opts := session.Options{
		CommandTimeout: cfg.Session.CommandTimeout,
		RateLimit:      rate.Limit(cfg.Session.RateLimit.PerSecond),
		Burst:          cfg.Session.RateLimit.Burst,
		EventBuffer:    cfg.Connection.EventBuffer,
		Logger:         logger,
		Metrics:        m,
	}
	if len(cfg.Session.Capabilities) > 0 {
		opts.Capabilities = domain.CapabilitiesRequest{AlwaysMatch: cfg.Session.Capabilities}
	}
	return opts
}

func httpHeader(headers map[string]string) http.Header {
	if len(headers) == 0 {
		return nil
	}
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}

// Session exposes the underlying session for commands the client has no
// helper for.
func (c *Client) Session() *session.Session { return c.session }

// ID returns the remote session id.
func (c *Client) ID() string { return c.session.ID() }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.session.Done() }

// Close ends the remote session if it is still live and closes the
// connection.
func (c *Client) Close() error {
	if c.session.State() == session.StateReady {
		ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
		if err := c.session.End(ctx); err != nil {
			c.logger.Debug("session.end on close failed", "error", err)
		}
		cancel()
	}
	return c.session.Close()
}

// Tree lists all top-level contexts and their children.
func (c *Client) Tree(ctx context.Context) ([]domain.BrowsingContextInfo, error) {
	res, err := session.Call[domain.BrowsingContextGetTreeResult](ctx, c.session, domain.BrowsingContextGetTree{})
	if err != nil {
		return nil, err
	}
	return res.Contexts, nil
}

// CreateTab opens a new tab and returns its context id.
func (c *Client) CreateTab(ctx context.Context) (string, error) {
	res, err := session.Call[domain.BrowsingContextCreateResult](ctx, c.session, domain.BrowsingContextCreate{Type: "tab"})
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

// CloseContext closes a browsing context.
func (c *Client) CloseContext(ctx context.Context, target string) error {
	_, err := session.Call[domain.EmptyResult](ctx, c.session, domain.BrowsingContextClose{Context: target})
	return err
}

// Navigate loads url in target and waits for the load to complete.
func (c *Client) Navigate(ctx context.Context, target, url string) (*domain.BrowsingContextNavigateResult, error) {
	return session.Call[domain.BrowsingContextNavigateResult](ctx, c.session, domain.BrowsingContextNavigate{
		Context: target,
		URL:     url,
		Wait:    domain.ReadinessComplete,
	})
}

// Evaluate runs expression in target. A script exception is returned as an
// error carrying the exception details.
func (c *Client) Evaluate(ctx context.Context, target, expression string) (*domain.ScriptEvaluateResult, error) {
	res, err := session.Call[domain.ScriptEvaluateResult](ctx, c.session, domain.ScriptEvaluate{
		Expression:   expression,
		Target:       domain.ScriptTarget{Context: target},
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res.Type == "exception" {
		return res, fmt.Errorf("script.evaluate: exception: %s", res.ExceptionDetails)
	}
	return res, nil
}

// Subscribe attaches handler to events, optionally restricted to contexts.
func (c *Client) Subscribe(ctx context.Context, events []string, handler Handler, contexts ...string) (string, error) {
	return c.session.Subscribe(ctx, events, []Handler{handler}, contexts)
}

// Unsubscribe removes subscriptions by id.
func (c *Client) Unsubscribe(ctx context.Context, ids ...string) error {
	return c.session.Unsubscribe(ctx, ids...)
}
