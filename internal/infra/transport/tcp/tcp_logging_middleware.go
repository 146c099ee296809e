package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mkrupp/ircsvc/internal/infra/logging"
	"github.com/mkrupp/ircsvc/internal/infra/metrics"
)

// LoggingMiddlewareConn wraps net.Conn to capture traffic counters.
type LoggingMiddlewareConn struct {
	net.Conn
	BytesRead int
	BytesSent int
}

func (c *LoggingMiddlewareConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.BytesRead += n

	return n, err //nolint:wrapcheck // io.EOF must reach the reader unwrapped
}

func (c *LoggingMiddlewareConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.BytesSent += n

	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}

	return n, nil
}

// LoggingMiddleware creates middleware that logs connection details.
// Connections are logged at DEBUG level when opened; on close the level is
// WARN if the handler failed and INFO otherwise.
func LoggingMiddleware(next TCPTransport, log logging.Logger) TCPTransport {
	return TCPHandlerFunc(func(ctx context.Context, conn net.Conn) error {
		log.DebugContext(ctx, "connection", slog.Group("tcp",
			"remote", conn.RemoteAddr().String(),
		))

		metrics.ConnectionsActive.Inc()
		defer metrics.ConnectionsActive.Dec()

		mc := &LoggingMiddlewareConn{Conn: conn}
		start := time.Now()

		err := next.ServeConn(ctx, mc)

		level := logging.LevelInfo
		outcome := "served"

		if err != nil {
			level = logging.LevelWarn
			outcome = "dropped"
		}

		metrics.ConnectionsTotal.WithLabelValues(outcome).Inc()

		log.Log(ctx, level, "connection closed", slog.Group("tcp",
			"remote", conn.RemoteAddr().String(),
			"bytes_read", mc.BytesRead,
			"bytes_sent", mc.BytesSent,
			"duration", time.Since(start),
		), "error", err)

		return err
	})
}
