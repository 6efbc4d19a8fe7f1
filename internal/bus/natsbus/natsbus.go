// Package natsbus publishes deploy notifications to a NATS server.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	ClientName = "deployhook"

	connectTimeout = 5 * time.Second
	reconnectWait  = 500 * time.Millisecond
	maxReconnects  = 5

	// DrainTimeout bounds how long Close waits for buffered messages to reach the server.
	DrainTimeout = 5 * time.Second
)

var errNotConnected = errors.New("nats bus is not connected")

// Bus is a bus.Bus backed by a single NATS connection.
type Bus struct {
	conn   *nats.Conn
	closed chan struct{} // closed by the connection's ClosedHandler
	logger *slog.Logger
}

// Connect dials url. A server that is down at startup is retried in the
// background rather than failing the caller.
func Connect(url string, logger *slog.Logger) (*Bus, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{closed: make(chan struct{}), logger: logger}

	conn, err := nats.Connect(url,
		nats.Name(ClientName),
		nats.Timeout(connectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DrainTimeout(DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(b.closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	b.conn = conn
	return b, nil
}

// Publish hands data to the connection's write buffer.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	if b == nil || b.conn == nil {
		return errNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.Publish(subject, data)
}

// Close drains the connection and returns once it is closed, so buffered
// notifications are flushed before the process exits.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}

	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.logger.Warn("nats drain failed, closing", "error", err)
		b.conn.Close()
	}

	select {
	case <-b.closed:
	case <-time.After(DrainTimeout + time.Second):
		b.logger.Warn("nats drain timed out")
		b.conn.Close()
	}
}
