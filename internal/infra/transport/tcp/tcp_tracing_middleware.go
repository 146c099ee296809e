package tcp

import (
	"context"
	"net"

	context_ "github.com/mkrupp/ircsvc/internal/infra/context"
)

// TracingMiddleware creates middleware that adds connection tracing.
// Every connection gets a fresh UUIDv7 trace ID and the peer address in its context.
func TracingMiddleware(next TCPTransport) TCPTransport {
	return TCPHandlerFunc(func(ctx context.Context, conn net.Conn) error {
		ctx = context_.WithTraceID(ctx, context_.NewTraceID())
		ctx = context_.WithPeer(ctx, conn.RemoteAddr().String())

		return next.ServeConn(ctx, conn)
	})
}
