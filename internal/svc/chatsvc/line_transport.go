package chatsvc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/mkrupp/ircsvc/internal/domain"
	"github.com/mkrupp/ircsvc/internal/infra/logging"
	"github.com/mkrupp/ircsvc/internal/infra/transport/tcp"
)

// LineTransport serves one request line per connection: it reads a single
// bounded line, executes it and writes the response. The server closes the
// connection afterwards.
type LineTransport struct {
	svc *ChatService
	log logging.Logger
}

var _ tcp.TCPTransport = (*LineTransport)(nil)

// NewLineTransport creates the TCP handler for svc.
func NewLineTransport(svc *ChatService) *LineTransport {
	return &LineTransport{
		svc: svc,
		log: logging.GetLogger("svc.chatsvc.line_transport"),
	}
}

// ServeConn implements tcp.TCPTransport.
func (t *LineTransport) ServeConn(ctx context.Context, conn net.Conn) error {
	line, err := readLine(conn, t.svc.Config.MaxLineLength)

	var resp Response

	switch {
	case errors.Is(err, domain.ErrLineTooLong):
		t.log.WarnContext(ctx, "request line too long", "limit", t.svc.Config.MaxLineLength)

		resp = ResponseForError(err)
	case errors.Is(err, io.EOF):
		// peer closed without sending anything
		return nil
	case err != nil:
		return fmt.Errorf("read request: %w", err)
	default:
		resp = t.svc.Execute(ctx, line)
	}

	if _, err := resp.WriteTo(conn); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	return nil
}

// Reject answers a connection that the transport refused to serve.
func (t *LineTransport) Reject(ctx context.Context, conn net.Conn, reason error) {
	if errors.Is(reason, tcp.ErrRateLimited) {
		reason = domain.ErrRateLimited
	}

	t.log.DebugContext(ctx, "connection rejected", "error", reason)

	_, _ = ResponseForError(reason).WriteTo(conn)
}

// readLine reads up to one line of at most limit bytes plus its terminator.
// A line ended by EOF instead of LF is accepted. io.EOF is returned only if
// nothing was read at all.
func readLine(r io.Reader, limit int) (string, error) {
	// room for the line plus CRLF; one more byte than that proves overflow
	br := bufio.NewReader(io.LimitReader(r, int64(limit)+3))

	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err //nolint:wrapcheck
	}

	if errors.Is(err, io.EOF) && line == "" {
		return "", io.EOF
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if len(line) > limit {
		return "", fmt.Errorf("%w: over %d bytes", domain.ErrLineTooLong, limit)
	}

	return line, nil
}
