package domain

import "errors"

var (
	// ErrRoomAlreadyExists is returned when creating a room whose name is taken.
	ErrRoomAlreadyExists = errors.New("room already exists")
	// ErrRoomNotFound is returned when a command references an unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotMember is returned when leaving a room the caller has not entered.
	ErrNotMember = errors.New("not a member of room")
)

// DefaultMessageLogCapacity is the number of messages a room retains.
const DefaultMessageLogCapacity = 100

// Message is one entry of a room's message log.
type Message struct {
	Seq    int64  // Per-room sequence number, starting at 1
	Author string // Username of the sender
	Text   string
}

// RoomStats summarizes the directory for the admin endpoint.
type RoomStats struct {
	Users    int `json:"users"`
	Rooms    int `json:"rooms"`
	Members  int `json:"members"`
	Messages int `json:"messages"`
}
