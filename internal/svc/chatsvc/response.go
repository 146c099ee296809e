package chatsvc

import (
	"errors"
	"io"
	"strings"

	"github.com/mkrupp/ircsvc/internal/domain"
)

// Terminator ends every response line. The protocol uses CRLF throughout.
const Terminator = "\r\n"

const (
	reasonMalformed   = "malformed request"
	reasonRateLimited = "rate limited"
	reasonInternal    = "internal error"
)

// ResponseKind selects one of the protocol's response shapes.
type ResponseKind int

const (
	ResponseOK ResponseKind = iota
	ResponseDenied
	ResponseList
	ResponseUnknownCommand
	ResponseError
)

// Response is a rendered-on-demand protocol answer.
type Response struct {
	Kind   ResponseKind
	Lines  []string // list items for ResponseList
	Reason string   // detail for ResponseError
}

// OK is the success status.
func OK() Response { return Response{Kind: ResponseOK} }

// Denied is the failure status for authentication, lookup and conflict errors.
func Denied() Response { return Response{Kind: ResponseDenied} }

// List renders items one per line followed by an empty terminator line.
func List(items []string) Response { return Response{Kind: ResponseList, Lines: items} }

// UnknownCommand answers command names outside the protocol.
func UnknownCommand() Response { return Response{Kind: ResponseUnknownCommand} }

// ProtocolError answers requests that could not be served, e.g. malformed lines.
func ProtocolError(reason string) Response { return Response{Kind: ResponseError, Reason: reason} }

// ResponseForError maps a command error onto the protocol response for its class.
func ResponseForError(err error) Response {
	switch {
	case err == nil:
		return OK()
	case errors.Is(err, domain.ErrUnknownCommand):
		return UnknownCommand()
	case errors.Is(err, domain.ErrMalformedRequest), errors.Is(err, domain.ErrLineTooLong):
		return ProtocolError(reasonMalformed)
	case errors.Is(err, domain.ErrRateLimited):
		return ProtocolError(reasonRateLimited)
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUserAlreadyExists),
		errors.Is(err, domain.ErrRoomAlreadyExists),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrNotMember):
		return Denied()
	default:
		return ProtocolError(reasonInternal)
	}
}

// Result is a short label for logs and metrics.
func (r Response) Result() string {
	switch r.Kind {
	case ResponseOK, ResponseList:
		return "ok"
	case ResponseDenied:
		return "denied"
	case ResponseUnknownCommand:
		return "unknown"
	default:
		return "error"
	}
}

// String renders the response as sent on the wire.
func (r Response) String() string {
	var b strings.Builder

	switch r.Kind {
	case ResponseOK:
		b.WriteString("OK" + Terminator)
	case ResponseDenied:
		b.WriteString("DENIED" + Terminator)
	case ResponseList:
		for _, line := range r.Lines {
			b.WriteString(line + Terminator)
		}

		b.WriteString(Terminator)
	case ResponseUnknownCommand:
		b.WriteString("UNKNOWN COMMAND" + Terminator)
	case ResponseError:
		b.WriteString("ERROR " + r.Reason + Terminator)
	}

	return b.String()
}

// WriteTo implements io.WriterTo.
func (r Response) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())

	//nolint:wrapcheck
	return int64(n), err
}
