package chatsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mkrupp/ircsvc/internal/domain"
	"github.com/mkrupp/ircsvc/internal/infra/logging"
	"github.com/mkrupp/ircsvc/internal/infra/metrics"
	"github.com/mkrupp/ircsvc/internal/repo/credential"
)

// ChatService owns the user/room directory and executes protocol commands.
// Every command, including its credential check, runs under one lock, so
// commands are atomic with respect to each other.
type ChatService struct {
	Config ChatConfig
	Repo   credential.Repository
	Log    logging.Logger

	mu  sync.Mutex
	dir *Directory
}

// NewChatService opens the credential repository and loads every stored user
// into a fresh directory.
func NewChatService(ctx context.Context, repoFactory credential.RepositoryFactory, cfg ChatConfig) (*ChatService, error) {
	repo, err := repoFactory()
	if err != nil {
		return nil, fmt.Errorf("new credential repo: %w", err)
	}

	svc, err := newChatService(ctx, repo, cfg, logging.GetLogger("svc.chatsvc.chat_service"))
	if err != nil {
		repo.Close()

		return nil, err
	}

	return svc, nil
}

// NewChatServiceWithRepo builds a service on an already opened repository.
func NewChatServiceWithRepo(ctx context.Context, repo credential.Repository, cfg ChatConfig, log logging.Logger) (*ChatService, error) {
	return newChatService(ctx, repo, cfg, log)
}

func newChatService(ctx context.Context, repo credential.Repository, cfg ChatConfig, log logging.Logger) (*ChatService, error) {
	cfg = cfg.sanitize()

	users, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	dir := NewDirectory(cfg.MessageLogCapacity)
	for _, user := range users {
		dir.AddUser(user.Username)
	}

	metrics.UsersRegistered.Set(float64(len(dir.users)))
	metrics.RoomsActive.Set(0)

	log.InfoContext(ctx, "directory initialized", "users", len(dir.users))

	return &ChatService{
		Config: cfg,
		Repo:   repo,
		Log:    log,
		dir:    dir,
	}, nil
}

// authenticate must be called with s.mu held.
func (s *ChatService) authenticate(ctx context.Context, username, password string) error {
	ok, err := s.Repo.Verify(ctx, username, password)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}

	if !ok {
		return domain.ErrInvalidCredentials
	}

	return nil
}

// AddUser registers a new user. Registering an existing username, with any
// password, fails with domain.ErrUserAlreadyExists.
func (s *ChatService) AddUser(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir.HasUser(username) {
		return domain.ErrUserAlreadyExists
	}

	// a store shared with another process may know users this directory does not
	if ok, err := s.Repo.Verify(ctx, username, password); err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	} else if ok {
		return domain.ErrUserAlreadyExists
	}

	if err := s.Repo.Append(ctx, username, password); err != nil {
		if errors.Is(err, credential.ErrInvalidRecord) {
			return fmt.Errorf("%w: %w", domain.ErrMalformedRequest, err)
		}

		return fmt.Errorf("append credentials: %w", err)
	}

	s.dir.AddUser(username)
	metrics.UsersRegistered.Inc()

	return nil
}

// CreateRoom creates an empty room.
func (s *ChatService) CreateRoom(ctx context.Context, username, password, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return err
	}

	if err := s.dir.CreateRoom(room); err != nil {
		return err
	}

	metrics.RoomsActive.Inc()

	return nil
}

// ListRooms returns every room name in creation order.
func (s *ChatService) ListRooms(ctx context.Context, username, password string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return nil, err
	}

	return s.dir.Rooms(), nil
}

// EnterRoom adds the caller to the room's members.
func (s *ChatService) EnterRoom(ctx context.Context, username, password, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return err
	}

	return s.dir.Enter(room, username)
}

// LeaveRoom removes the caller from the room's members.
func (s *ChatService) LeaveRoom(ctx context.Context, username, password, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return err
	}

	return s.dir.Leave(room, username)
}

// SendMessage appends text to the room's message log with the caller as author.
func (s *ChatService) SendMessage(ctx context.Context, username, password, room, text string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.dir.Post(room, username, text)
	if err != nil {
		return domain.Message{}, err
	}

	metrics.MessagesPosted.Inc()

	return msg, nil
}

// GetMessages returns the room's retained messages newer than lastSeen.
func (s *ChatService) GetMessages(ctx context.Context, username, password, room string, lastSeen int64) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return nil, err
	}

	return s.dir.MessagesSince(room, lastSeen)
}

// GetUsersInRoom returns the room's members in join order.
func (s *ChatService) GetUsersInRoom(ctx context.Context, username, password, room string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return nil, err
	}

	return s.dir.Members(room)
}

// GetAllUsers returns every registered username in registration order.
func (s *ChatService) GetAllUsers(ctx context.Context, username, password string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authenticate(ctx, username, password); err != nil {
		return nil, err
	}

	return s.dir.Users(), nil
}

// Stats returns a consistent snapshot of directory counters.
func (s *ChatService) Stats() domain.RoomStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dir.Stats()
}

// Execute parses one request line, runs the command and returns the response
// to send. It never fails: every error becomes a protocol response.
func (s *ChatService) Execute(ctx context.Context, line string) (resp Response) {
	start := time.Now()

	req, err := ParseRequest(line)

	log := s.Log.With(logging.Group("cmd", "name", req.Command.String(), "user", req.User))

	defer func() {
		metrics.CommandsTotal.WithLabelValues(req.Command.String(), resp.Result()).Inc()
		metrics.CommandDuration.WithLabelValues(req.Command.String()).Observe(time.Since(start).Seconds())

		switch {
		case resp.Kind == ResponseError && resp.Reason == reasonInternal:
			log.ErrorContext(ctx, "command failed", "error", err)
		case resp.Kind == ResponseError:
			log.WarnContext(ctx, "command failed", "error", err)
		case resp.Kind == ResponseDenied, resp.Kind == ResponseUnknownCommand:
			log.DebugContext(ctx, "command rejected", "error", err)
		default:
			log.DebugContext(ctx, "command executed")
		}
	}()

	if err != nil {
		return ResponseForError(err)
	}

	resp, err = s.dispatch(ctx, req)
	if err != nil {
		return ResponseForError(err)
	}

	return resp
}

//nolint:cyclop
func (s *ChatService) dispatch(ctx context.Context, req Request) (Response, error) {
	switch req.Command {
	case domain.CommandAddUser:
		return OK(), s.AddUser(ctx, req.User, req.Password)

	case domain.CommandCreateRoom:
		room, err := req.RoomArg()
		if err != nil {
			return Response{}, err
		}

		return OK(), s.CreateRoom(ctx, req.User, req.Password, room)

	case domain.CommandListRooms:
		rooms, err := s.ListRooms(ctx, req.User, req.Password)

		return List(rooms), err

	case domain.CommandEnterRoom:
		room, err := req.RoomArg()
		if err != nil {
			return Response{}, err
		}

		return OK(), s.EnterRoom(ctx, req.User, req.Password, room)

	case domain.CommandLeaveRoom:
		room, err := req.RoomArg()
		if err != nil {
			return Response{}, err
		}

		return OK(), s.LeaveRoom(ctx, req.User, req.Password, room)

	case domain.CommandSendMessage:
		text, room, err := req.MessageArgs()
		if err != nil {
			return Response{}, err
		}

		_, err = s.SendMessage(ctx, req.User, req.Password, room, text)

		return OK(), err

	case domain.CommandGetMessages:
		lastSeen, room, err := req.HistoryArgs()
		if err != nil {
			return Response{}, err
		}

		msgs, err := s.GetMessages(ctx, req.User, req.Password, room, lastSeen)

		return List(formatMessages(msgs)), err

	case domain.CommandGetUsersInRoom:
		room, err := req.RoomArg()
		if err != nil {
			return Response{}, err
		}

		members, err := s.GetUsersInRoom(ctx, req.User, req.Password, room)

		return List(members), err

	case domain.CommandGetAllUsers:
		users, err := s.GetAllUsers(ctx, req.User, req.Password)

		return List(users), err

	case domain.CommandUnknown:
	}

	return Response{}, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, req.Name)
}

func formatMessages(msgs []domain.Message) []string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, strconv.FormatInt(msg.Seq, 10)+" "+msg.Author+" "+msg.Text)
	}

	return lines
}

// Close releases the credential repository.
func (s *ChatService) Close() error {
	if err := s.Repo.Close(); err != nil {
		return fmt.Errorf("close credential repo: %w", err)
	}

	return nil
}
