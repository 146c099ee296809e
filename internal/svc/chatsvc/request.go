package chatsvc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/mkrupp/ircsvc/internal/domain"
)

// Request is one parsed request line: COMMAND USER PASSWORD [ARGS...].
type Request struct {
	Command  domain.Command
	Name     string // command token as received
	User     string
	Password string
	Args     string // raw remainder after the password, inner spacing preserved
}

// ParseRequest splits a request line into its command, credentials and
// argument payload. Tokens are separated by runs of spaces. A trailing CR or
// LF is ignored.
//
// An unrecognized command yields domain.ErrUnknownCommand; a recognized
// command without user and password yields domain.ErrMalformedRequest. In
// both cases the returned Request carries whatever was parsed.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")

	var req Request

	req.Name, line = nextToken(line)
	if req.Name == "" {
		return req, fmt.Errorf("%w: empty request", domain.ErrMalformedRequest)
	}

	cmd, ok := domain.ParseCommand(req.Name)
	if !ok {
		return req, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, req.Name)
	}

	req.Command = cmd
	req.User, line = nextToken(line)
	req.Password, line = nextToken(line)

	if req.User == "" || req.Password == "" {
		return req, fmt.Errorf("%w: missing credentials", domain.ErrMalformedRequest)
	}

	req.Args = strings.Trim(line, " ")

	return req, nil
}

func nextToken(s string) (token, rest string) {
	s = strings.TrimLeft(s, " ")

	token, rest, _ = strings.Cut(s, " ")

	return token, rest
}

// Arg returns the first argument token, or "" if there is none. Content after
// it is ignored.
func (r Request) Arg() string {
	arg, _ := nextToken(r.Args)

	return arg
}

// RoomArg returns the single room-name argument required by the room commands.
func (r Request) RoomArg() (string, error) {
	room := r.Arg()
	if room == "" {
		return "", fmt.Errorf("%w: %s requires a room", domain.ErrMalformedRequest, r.Command)
	}

	if hasControl(room) {
		return "", fmt.Errorf("%w: control character in room name", domain.ErrMalformedRequest)
	}

	return room, nil
}

// MessageArgs splits a SEND-MESSAGE payload "<text...> <room>": the room is
// the last token and the text is everything before it.
func (r Request) MessageArgs() (text, room string, err error) {
	idx := strings.LastIndexByte(r.Args, ' ')
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %s requires text and a room", domain.ErrMalformedRequest, r.Command)
	}

	text = strings.TrimRight(r.Args[:idx], " ")
	room = r.Args[idx+1:]

	// text and room are echoed into GET-MESSAGES lines
	if hasControl(text) || hasControl(room) {
		return "", "", fmt.Errorf("%w: control character in message", domain.ErrMalformedRequest)
	}

	return text, room, nil
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

// HistoryArgs parses a GET-MESSAGES payload "<lastSeen> <room>".
func (r Request) HistoryArgs() (lastSeen int64, room string, err error) {
	first, rest := nextToken(r.Args)
	room, _ = nextToken(rest)

	if first == "" || room == "" {
		return 0, "", fmt.Errorf("%w: %s requires a sequence number and a room", domain.ErrMalformedRequest, r.Command)
	}

	lastSeen, err = strconv.ParseInt(first, 10, 64)
	if err != nil || lastSeen < 0 {
		return 0, "", fmt.Errorf("%w: invalid sequence number %q", domain.ErrMalformedRequest, first)
	}

	return lastSeen, room, nil
}
