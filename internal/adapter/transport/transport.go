// Package transport provides the duplex message channel the protocol runtime
// speaks over. The runtime depends only on the Transport interface; the
// WebSocket implementation is the one used against real browsers.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPath is the endpoint path browsers expose for BiDi sessions.
const DefaultPath = "session"

// Transport is a duplex text-message channel.
type Transport interface {
	// Send writes one text message.
	Send(ctx context.Context, text string) error
	// Listen starts the background read loop. Each fully reassembled inbound
	// text message is pushed onto out in arrival order. out is closed when the
	// loop ends. Listen may be called once.
	Listen(out chan<- string) error
	// Close shuts the connection down. It is safe to call more than once.
	Close() error
	// Done is closed once the connection is gone, whoever closed it.
	Done() <-chan struct{}
	// Err reports why the connection ended; nil for a clean close.
	Err() error
}

// URL builds ws://host:port/path.
func URL(host string, port int, path string) string {
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("ws://%s/%s", net.JoinHostPort(host, strconv.Itoa(port)), strings.TrimPrefix(path, "/"))
}
