package chatsvc

import (
	"slices"
	"sort"

	"github.com/mkrupp/ircsvc/internal/domain"
)

// room holds the membership list and bounded message log of one chat room.
type room struct {
	name      string
	members   []string // join order
	memberSet map[string]struct{}
	messages  []domain.Message // ascending Seq, at most capacity entries
	lastSeq   int64
}

// Directory is the in-memory registry of users and rooms. It is not safe for
// concurrent use; ChatService serializes every access.
type Directory struct {
	capacity  int
	users     []string
	userSet   map[string]struct{}
	rooms     map[string]*room
	roomOrder []string
}

// NewDirectory creates an empty directory whose rooms keep at most
// capacity messages each.
func NewDirectory(capacity int) *Directory {
	if capacity <= 0 {
		capacity = domain.DefaultMessageLogCapacity
	}

	return &Directory{
		capacity: capacity,
		userSet:  make(map[string]struct{}),
		rooms:    make(map[string]*room),
	}
}

// AddUser registers a username. Returns false if it is already present.
func (d *Directory) AddUser(username string) bool {
	if _, ok := d.userSet[username]; ok {
		return false
	}

	d.userSet[username] = struct{}{}
	d.users = append(d.users, username)

	return true
}

// HasUser reports whether the username is registered.
func (d *Directory) HasUser(username string) bool {
	_, ok := d.userSet[username]

	return ok
}

// Users returns all registered usernames in registration order.
func (d *Directory) Users() []string {
	return slices.Clone(d.users)
}

// CreateRoom adds an empty room.
func (d *Directory) CreateRoom(name string) error {
	if _, ok := d.rooms[name]; ok {
		return domain.ErrRoomAlreadyExists
	}

	d.rooms[name] = &room{
		name:      name,
		memberSet: make(map[string]struct{}),
	}
	d.roomOrder = append(d.roomOrder, name)

	return nil
}

// Rooms returns all room names in creation order.
func (d *Directory) Rooms() []string {
	return slices.Clone(d.roomOrder)
}

func (d *Directory) room(name string) (*room, error) {
	r, ok := d.rooms[name]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	return r, nil
}

// Enter adds username to the room's members. Entering twice is a no-op.
func (d *Directory) Enter(roomName, username string) error {
	r, err := d.room(roomName)
	if err != nil {
		return err
	}

	if _, ok := r.memberSet[username]; ok {
		return nil
	}

	r.memberSet[username] = struct{}{}
	r.members = append(r.members, username)

	return nil
}

// Leave removes username from the room, keeping the order of the others.
func (d *Directory) Leave(roomName, username string) error {
	r, err := d.room(roomName)
	if err != nil {
		return err
	}

	idx := slices.Index(r.members, username)
	if idx < 0 {
		return domain.ErrNotMember
	}

	r.members = slices.Delete(r.members, idx, idx+1)
	delete(r.memberSet, username)

	return nil
}

// Members returns the room's members in join order.
func (d *Directory) Members(roomName string) ([]string, error) {
	r, err := d.room(roomName)
	if err != nil {
		return nil, err
	}

	return slices.Clone(r.members), nil
}

// Post appends a message with the room's next sequence number, evicting the
// oldest message once the log is full.
func (d *Directory) Post(roomName, author, text string) (domain.Message, error) {
	r, err := d.room(roomName)
	if err != nil {
		return domain.Message{}, err
	}

	r.lastSeq++
	msg := domain.Message{Seq: r.lastSeq, Author: author, Text: text}

	if len(r.messages) >= d.capacity {
		n := copy(r.messages, r.messages[len(r.messages)-d.capacity+1:])
		r.messages = r.messages[:n]
	}

	r.messages = append(r.messages, msg)

	return msg, nil
}

// MessagesSince returns retained messages with Seq > lastSeen in ascending order.
func (d *Directory) MessagesSince(roomName string, lastSeen int64) ([]domain.Message, error) {
	r, err := d.room(roomName)
	if err != nil {
		return nil, err
	}

	idx := sort.Search(len(r.messages), func(i int) bool {
		return r.messages[i].Seq > lastSeen
	})

	return slices.Clone(r.messages[idx:]), nil
}

// Stats counts users, rooms, memberships and retained messages.
func (d *Directory) Stats() domain.RoomStats {
	stats := domain.RoomStats{
		Users: len(d.users),
		Rooms: len(d.rooms),
	}

	for _, r := range d.rooms {
		stats.Members += len(r.members)
		stats.Messages += len(r.messages)
	}

	return stats
}
