package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"nhooyr.io/websocket"

	"webdriver-bidi/internal/domain"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultReadLimit   = 32 << 20
	wsPingTimeout      = 5 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// wsConn is the subset of *websocket.Conn the transport uses.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

// WebSocketConfig configures Dial.
type WebSocketConfig struct {
	Host string
	Port int
	// Path defaults to DefaultPath.
	Path string
	// DialTimeout bounds the TCP connect plus upgrade handshake.
	DialTimeout time.Duration
	// ReadLimit caps a single inbound message in bytes.
	ReadLimit int64
	// PingInterval enables keepalive pings when > 0.
	PingInterval time.Duration
	HTTPHeader   http.Header
}

// WebSocket is a Transport over a WebSocket connection.
type WebSocket struct {
	conn         wsConn
	url          string
	pingInterval time.Duration
	logger       *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	listening atomic.Bool

	mu  sync.Mutex
	err error
}

var _ Transport = (*WebSocket)(nil)

// Dial opens a WebSocket to ws://host:port/path. A failure to connect or to
// complete the upgrade is returned as ErrHandshakeFailed.
func Dial(ctx context.Context, cfg WebSocketConfig, logger *slog.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	url := URL(cfg.Host, cfg.Port, cfg.Path)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: cfg.HTTPHeader})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w: status %d: %v", url, domain.ErrHandshakeFailed, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w: %v", url, domain.ErrHandshakeFailed, err)
	}
	conn.SetReadLimit(cfg.ReadLimit)

	logger.Info("transport connected", "url", url)
	return newWebSocket(conn, url, cfg.PingInterval, logger), nil
}

func newWebSocket(conn wsConn, url string, pingInterval time.Duration, logger *slog.Logger) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		conn:         conn,
		url:          url,
		pingInterval: pingInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// URL returns the endpoint this transport is connected to.
func (w *WebSocket) URL() string { return w.url }

// Send writes text as a single text frame.
func (w *WebSocket) Send(ctx context.Context, text string) error {
	select {
	case <-w.done:
		return domain.ErrTransportClosed
	default:
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := w.conn.Write(writeCtx, websocket.MessageText, []byte(text)); err != nil {
		select {
		case <-w.done:
			return domain.ErrTransportClosed
		default:
		}
		return fmt.Errorf("transport write: %w", err)
	}
	return nil
}

// Listen starts the read loop and, when configured, the keepalive pinger.
func (w *WebSocket) Listen(out chan<- string) error {
	if !w.listening.CompareAndSwap(false, true) {
		return errors.New("transport: already listening")
	}
	go w.readLoop(out)
	if w.pingInterval > 0 {
		go w.pingLoop()
	}
	return nil
}

// readLoop owns the single reader. Ping, pong and close control frames are
// handled inside conn.Read and never reach out.
func (w *WebSocket) readLoop(out chan<- string) {
	defer close(out)
	for {
		typ, data, err := w.conn.Read(w.ctx)
		if err != nil {
			w.finish(readErr(w.ctx, err))
			return
		}
		if typ == websocket.MessageBinary && !utf8.Valid(data) {
			w.logger.Warn("transport: dropped binary frame that is not valid UTF-8", "bytes", len(data))
			continue
		}
		select {
		case out <- string(data):
		case <-w.ctx.Done():
			return
		}
	}
}

// readErr classifies a read failure: a close frame or a local Close is a
// clean end, anything else is reported.
func readErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return fmt.Errorf("transport read: %w", err)
}

func (w *WebSocket) pingLoop() {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(w.ctx, wsPingTimeout)
			err := w.conn.Ping(pingCtx)
			cancel()
			if err != nil && w.ctx.Err() == nil {
				w.logger.Warn("transport: ping failed", "error", err)
			}
		}
	}
}

// Close sends a normal-closure frame and stops the background loops.
func (w *WebSocket) Close() error {
	var err error
	select {
	case <-w.done:
	default:
		err = w.conn.Close(websocket.StatusNormalClosure, "")
	}
	w.finish(nil)
	return err
}

func (w *WebSocket) finish(err error) {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		w.cancel()
		close(w.done)
		if err != nil {
			w.logger.Warn("transport closed with error", "url", w.url, "error", err)
		} else {
			w.logger.Info("transport closed", "url", w.url)
		}
	})
}

// Done is closed when the connection has ended.
func (w *WebSocket) Done() <-chan struct{} { return w.done }

// Err reports why the connection ended.
func (w *WebSocket) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
