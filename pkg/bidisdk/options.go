package bidisdk

import (
	"log/slog"
	"time"

	"webdriver-bidi/internal/adapter/transport"
	"webdriver-bidi/internal/infra/config"
	"webdriver-bidi/internal/infra/metrics"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	cfg       *config.Config
	transport transport.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	handshake bool
}

// WithConfig replaces the defaults with a loaded config. Later options still
// override individual fields.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg != nil {
			copied := *cfg
			o.cfg = &copied
		}
	}
}

// WithAddress sets the remote end's host and port.
func WithAddress(host string, port int) Option {
	return func(o *options) {
		o.cfg.Connection.Host = host
		o.cfg.Connection.Port = port
	}
}

// WithCommandTimeout bounds every command's wait for an outcome.
func WithCommandTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.Session.CommandTimeout = d }
}

// WithCapabilities sets the alwaysMatch capabilities sent with session.new.
func WithCapabilities(caps map[string]any) Option {
	return func(o *options) { o.cfg.Session.Capabilities = caps }
}

// WithHeader adds a header to the upgrade request.
func WithHeader(name, value string) Option {
	return func(o *options) {
		headers := make(map[string]string, len(o.cfg.Connection.Headers)+1)
		for k, v := range o.cfg.Connection.Headers {
			headers[k] = v
		}
		headers[name] = value
		o.cfg.Connection.Headers = headers
	}
}

// WithRateLimit throttles outgoing commands to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.cfg.Session.RateLimit.PerSecond = perSecond
		o.cfg.Session.RateLimit.Burst = burst
	}
}

// WithLogger sets a custom slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records client metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTransport skips dialing and runs the client over t.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithoutHandshake returns a client that has not sent session.new. Call
// Client.Session().CreateSession before issuing commands.
func WithoutHandshake() Option {
	return func(o *options) { o.handshake = false }
}
