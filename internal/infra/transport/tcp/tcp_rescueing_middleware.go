package tcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"

	"github.com/mkrupp/ircsvc/internal/infra/logging"
	"github.com/mkrupp/ircsvc/internal/infra/metrics"
)

// ErrPanic is returned by RescueingMiddleware when the wrapped handler panicked.
var ErrPanic = errors.New("handler panic")

// RescueingMiddleware creates middleware that recovers from panics in connection handlers.
// It logs the panic and stack trace; the connection is closed by the server.
func RescueingMiddleware(next TCPTransport, log logging.Logger) TCPTransport {
	return TCPHandlerFunc(func(ctx context.Context, conn net.Conn) (err error) {
		defer func() {
			if p := recover(); p != nil {
				metrics.ConnectionsTotal.WithLabelValues("panic").Inc()
				log.ErrorContext(ctx, "connection panic", slog.Group("tcp",
					"remote", conn.RemoteAddr().String(),
				), slog.Group("error",
					"panic", p,
					"stack", string(debug.Stack()),
				))

				err = ErrPanic
			}
		}()

		return next.ServeConn(ctx, conn)
	})
}
