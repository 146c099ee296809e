package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mkrupp/ircsvc/internal/infra/logging"
)

// TCPTransportConfig contains configuration parameters for TCP servers.
type TCPTransportConfig struct {
	// ServerAddr is the network address to listen on; set from the command line
	ServerAddr string
	// Host is the interface to bind when ServerAddr is built from a port
	Host string `env:"HOST" default:""`

	// ReadTimeout bounds how long a connection may take to send its request
	ReadTimeout time.Duration `env:"READ_TIMEOUT" default:"5s"`
	// WriteTimeout bounds each write of the response
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" default:"5s"`

	// MaxConnections caps connections served at the same time; further
	// connections wait in the listen backlog
	MaxConnections int64 `env:"MAX_CONNECTIONS" default:"128"`

	// RateLimit is the sustained number of connections per second allowed per
	// peer IP; zero disables rate limiting
	RateLimit float64 `env:"RATE_LIMIT" default:"20"`
	// RateBurst is the number of connections a peer may open at once
	RateBurst int `env:"RATE_BURST" default:"40"`
}

// TCPTransport defines the interface for connection handlers. A handler owns
// the request/response exchange; the server closes the connection afterwards.
type TCPTransport interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// TCPHandlerFunc adapts a function to TCPTransport.
type TCPHandlerFunc func(ctx context.Context, conn net.Conn) error

// ServeConn implements TCPTransport.
func (f TCPHandlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// RejectFunc writes a protocol-level refusal to a connection that will not be served.
type RejectFunc func(ctx context.Context, conn net.Conn, reason error)

// ListenAndServe listens on cfg.ServerAddr and serves connections until ctx
// is cancelled. It sets up middleware for tracing, logging, panic recovery
// and per-peer rate limiting.
func ListenAndServe(ctx context.Context, handler TCPTransport, reject RejectFunc, cfg TCPTransportConfig) error {
	sock, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return Serve(ctx, sock, handler, reject, cfg)
}

// Serve accepts connections on sock and serves each on its own goroutine.
// When ctx is cancelled it closes sock, waits for in-flight connections and
// returns nil.
func Serve(ctx context.Context, sock net.Listener, handler TCPTransport, reject RejectFunc, cfg TCPTransportConfig) error {
	log := logging.GetLogger("infra.transport.tcp")

	handler = RescueingMiddleware(handler, log)
	handler = LoggingMiddleware(handler, log)
	handler = RateLimitingMiddleware(handler, NewPeerLimiter(cfg.RateLimit, cfg.RateBurst), reject)
	handler = TracingMiddleware(handler)

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}

	slots := semaphore.NewWeighted(maxConns)

	var inflight sync.WaitGroup

	stop := context.AfterFunc(ctx, func() { sock.Close() })
	defer stop()

	defer sock.Close()

	log.InfoContext(ctx, "listening", "addr", sock.Addr().String(), "max_connections", maxConns)

	for {
		// wait for a free slot before accepting, leaving excess clients in the backlog
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}

		conn, err := sock.Accept()
		if err != nil {
			slots.Release(1)

			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}

			log.ErrorContext(ctx, "accept failed", "error", err)

			continue
		}

		inflight.Add(1)

		go func() {
			defer inflight.Done()
			defer slots.Release(1)
			defer conn.Close()

			dc := &deadlineConn{Conn: conn, writeTimeout: cfg.WriteTimeout}
			if cfg.ReadTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
			}

			_ = handler.ServeConn(ctx, dc)
		}()
	}

	inflight.Wait()
	log.InfoContext(ctx, "stopped listening", "addr", sock.Addr().String())

	return nil
}

// deadlineConn refreshes the write deadline before every write.
type deadlineConn struct {
	net.Conn
	writeTimeout time.Duration
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, fmt.Errorf("set write deadline: %w", err)
		}
	}

	n, err := c.Conn.Write(b)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}

	return n, nil
}
