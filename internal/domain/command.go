package domain

import "errors"

var (
	// ErrMalformedRequest is returned for request lines that cannot be parsed.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrLineTooLong is returned when a request line exceeds the maximum length.
	ErrLineTooLong = errors.New("request line too long")
	// ErrUnknownCommand is returned for command names outside the protocol.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrRateLimited is returned when a peer exceeds its connection rate.
	ErrRateLimited = errors.New("rate limited")
)

// Command identifies one of the protocol operations.
type Command int

const (
	CommandUnknown Command = iota
	CommandAddUser
	CommandCreateRoom
	CommandListRooms
	CommandEnterRoom
	CommandLeaveRoom
	CommandSendMessage
	CommandGetMessages
	CommandGetUsersInRoom
	CommandGetAllUsers
)

//nolint:gochecknoglobals
var commandNames = [...]string{
	CommandUnknown:        "UNKNOWN",
	CommandAddUser:        "ADD-USER",
	CommandCreateRoom:     "CREATE-ROOM",
	CommandListRooms:      "LIST-ROOMS",
	CommandEnterRoom:      "ENTER-ROOM",
	CommandLeaveRoom:      "LEAVE-ROOM",
	CommandSendMessage:    "SEND-MESSAGE",
	CommandGetMessages:    "GET-MESSAGES",
	CommandGetUsersInRoom: "GET-USERS-IN-ROOM",
	CommandGetAllUsers:    "GET-ALL-USERS",
}

// Commands lists every known command in protocol order.
func Commands() []Command {
	return []Command{
		CommandAddUser,
		CommandCreateRoom,
		CommandListRooms,
		CommandEnterRoom,
		CommandLeaveRoom,
		CommandSendMessage,
		CommandGetMessages,
		CommandGetUsersInRoom,
		CommandGetAllUsers,
	}
}

// ParseCommand maps a wire name to a Command. Matching is case-sensitive.
// Returns CommandUnknown and false for names outside the protocol.
func ParseCommand(name string) (Command, bool) {
	for _, cmd := range Commands() {
		if commandNames[cmd] == name {
			return cmd, true
		}
	}

	return CommandUnknown, false
}

// String returns the wire name of the command.
func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return commandNames[CommandUnknown]
	}

	return commandNames[c]
}
