package chatsvc_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mkrupp/ircsvc/internal/domain"
	"github.com/mkrupp/ircsvc/internal/infra/logging"
	"github.com/mkrupp/ircsvc/internal/repo/credential"
	"github.com/mkrupp/ircsvc/internal/svc/chatsvc"
)

// mockCredentialRepository implements credential.Repository for testing.
type mockCredentialRepository struct {
	users []domain.User
	err   error
	m     sync.Mutex
}

func (m *mockCredentialRepository) Load(_ context.Context) ([]domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	return append([]domain.User(nil), m.users...), nil
}

func (m *mockCredentialRepository) Verify(_ context.Context, username, password string) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return false, m.err
	}

	for _, u := range m.users {
		if u.Username == username && u.Password == password {
			return true, nil
		}
	}

	return false, nil
}

func (m *mockCredentialRepository) Append(_ context.Context, username, password string) error {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return m.err
	}

	for _, u := range m.users {
		if u.Username == username {
			return domain.ErrUserAlreadyExists
		}
	}

	m.users = append(m.users, domain.User{Username: username, Password: password})

	return nil
}

func (m *mockCredentialRepository) Close() error {
	return nil
}

var ErrRepoError = errors.New("repository error")

func setupTestService(t *testing.T, users ...domain.User) (*chatsvc.ChatService, *mockCredentialRepository) {
	t.Helper()

	repo := &mockCredentialRepository{users: users}

	svc, err := chatsvc.NewChatServiceWithRepo(context.Background(), repo, chatsvc.ChatConfig{}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	return svc, repo
}

// exchange runs request lines in order and returns the rendered responses.
func exchange(t *testing.T, svc *chatsvc.ChatService, lines ...string) []string {
	t.Helper()

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, svc.Execute(context.Background(), line).String())
	}

	return out
}

func TestExecute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "add user twice",
			lines: []string{"ADD-USER alice pw1", "ADD-USER alice pw1"},
			want:  []string{"OK\r\n", "DENIED\r\n"},
		},
		{
			name:  "add existing user with other password",
			lines: []string{"ADD-USER alice pw1", "ADD-USER alice pw2"},
			want:  []string{"OK\r\n", "DENIED\r\n"},
		},
		{
			name: "create room twice, names case-sensitive",
			lines: []string{
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw1 lobby",
				"CREATE-ROOM alice pw1 lobby",
				"CREATE-ROOM alice pw1 Lobby",
			},
			want: []string{"OK\r\n", "OK\r\n", "DENIED\r\n", "OK\r\n"},
		},
		{
			name:  "enter missing room",
			lines: []string{"ADD-USER alice pw1", "ENTER-ROOM alice pw1 nowhere"},
			want:  []string{"OK\r\n", "DENIED\r\n"},
		},
		{
			name:  "leave missing room",
			lines: []string{"ADD-USER alice pw1", "LEAVE-ROOM alice pw1 nowhere"},
			want:  []string{"OK\r\n", "DENIED\r\n"},
		},
		{
			name: "leave room without membership",
			lines: []string{
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw1 lobby",
				"LEAVE-ROOM alice pw1 lobby",
			},
			want: []string{"OK\r\n", "OK\r\n", "DENIED\r\n"},
		},
		{
			name:  "get all users in registration order",
			lines: []string{"ADD-USER alice pw1", "ADD-USER bob pw2", "GET-ALL-USERS bob pw2"},
			want:  []string{"OK\r\n", "OK\r\n", "alice\r\nbob\r\n\r\n"},
		},
		{
			name: "room lifecycle",
			lines: []string{
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw1 lobby",
				"ENTER-ROOM alice pw1 lobby",
				"GET-USERS-IN-ROOM alice pw1 lobby",
				"LEAVE-ROOM alice pw1 lobby",
				"GET-USERS-IN-ROOM alice pw1 lobby",
			},
			want: []string{"OK\r\n", "OK\r\n", "OK\r\n", "alice\r\n\r\n", "OK\r\n", "\r\n"},
		},
		{
			name: "entering twice keeps one membership",
			lines: []string{
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw1 lobby",
				"ENTER-ROOM alice pw1 lobby",
				"ENTER-ROOM alice pw1 lobby",
				"GET-USERS-IN-ROOM alice pw1 lobby",
			},
			want: []string{"OK\r\n", "OK\r\n", "OK\r\n", "OK\r\n", "alice\r\n\r\n"},
		},
		{
			name: "list rooms in creation order",
			lines: []string{
				"ADD-USER alice pw1",
				"LIST-ROOMS alice pw1",
				"CREATE-ROOM alice pw1 b",
				"CREATE-ROOM alice pw1 a",
				"LIST-ROOMS alice pw1",
			},
			want: []string{"OK\r\n", "\r\n", "OK\r\n", "OK\r\n", "b\r\na\r\n\r\n"},
		},
		{
			name: "messages round trip",
			lines: []string{
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw1 lobby",
				"SEND-MESSAGE alice pw1 hello there lobby",
				"SEND-MESSAGE alice pw1 second lobby",
				"GET-MESSAGES alice pw1 0 lobby",
				"GET-MESSAGES alice pw1 1 lobby",
				"GET-MESSAGES alice pw1 2 lobby",
			},
			want: []string{
				"OK\r\n", "OK\r\n", "OK\r\n", "OK\r\n",
				"1 alice hello there\r\n2 alice second\r\n\r\n",
				"2 alice second\r\n\r\n",
				"\r\n",
			},
		},
		{
			name:  "send to missing room",
			lines: []string{"ADD-USER alice pw1", "SEND-MESSAGE alice pw1 hi nowhere"},
			want:  []string{"OK\r\n", "DENIED\r\n"},
		},
		{
			name: "wrong password denied",
			lines: []string{
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw lobby",
				"GET-ALL-USERS alice pw11",
				"LIST-ROOMS mallory pw1",
			},
			want: []string{"OK\r\n", "DENIED\r\n", "DENIED\r\n", "DENIED\r\n"},
		},
		{
			name: "malformed requests",
			lines: []string{
				"",
				"ADD-USER",
				"ADD-USER alice",
				"ADD-USER alice pw1",
				"CREATE-ROOM alice pw1",
				"SEND-MESSAGE alice pw1 lobby",
				"GET-MESSAGES alice pw1 lobby",
				"GET-MESSAGES alice pw1 -1 lobby",
				"GET-MESSAGES alice pw1 x lobby",
				"CREATE-ROOM alice pw1 lobby",
				"SEND-MESSAGE alice pw1 hi\rthere lobby",
				"GET-MESSAGES alice pw1 0 lobby",
			},
			want: []string{
				"ERROR malformed request\r\n",
				"ERROR malformed request\r\n",
				"ERROR malformed request\r\n",
				"OK\r\n",
				"ERROR malformed request\r\n",
				"ERROR malformed request\r\n",
				"ERROR malformed request\r\n",
				"ERROR malformed request\r\n",
				"ERROR malformed request\r\n",
				"OK\r\n",
				"ERROR malformed request\r\n",
				"\r\n",
			},
		},
		{
			name:  "unknown command",
			lines: []string{"JOIN alice pw1 lobby", "add-user alice pw1", "NOPE"},
			want:  []string{"UNKNOWN COMMAND\r\n", "UNKNOWN COMMAND\r\n", "UNKNOWN COMMAND\r\n"},
		},
		{
			name:  "extra tokens ignored",
			lines: []string{"ADD-USER alice pw1", "CREATE-ROOM alice pw1 lobby extra tokens", "LIST-ROOMS alice pw1 junk"},
			want:  []string{"OK\r\n", "OK\r\n", "lobby\r\n\r\n"},
		},
		{
			name:  "trailing terminator stripped",
			lines: []string{"ADD-USER alice pw1\r\n", "GET-ALL-USERS alice pw1\n"},
			want:  []string{"OK\r\n", "alice\r\n\r\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := setupTestService(t)

			got := exchange(t, svc, tt.lines...)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("%q: got %q, want %q", tt.lines[i], got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewChatService_LoadsUsers(t *testing.T) {
	t.Parallel()

	svc, _ := setupTestService(t,
		domain.User{Username: "alice", Password: "pw1"},
		domain.User{Username: "bob", Password: "pw2"},
	)

	got := exchange(t, svc, "GET-ALL-USERS alice pw1", "ADD-USER bob other")
	want := []string{"alice\r\nbob\r\n\r\n", "DENIED\r\n"}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %q, want %q", got[i], want[i])
		}
	}
}

func TestNewChatService_LoadError(t *testing.T) {
	t.Parallel()

	repo := &mockCredentialRepository{err: ErrRepoError}

	_, err := chatsvc.NewChatServiceWithRepo(context.Background(), repo, chatsvc.ChatConfig{}, logging.NewNopLogger())
	if !errors.Is(err, ErrRepoError) {
		t.Errorf("error = %v, want %v", err, ErrRepoError)
	}
}

func TestExecute_RepositoryFailure(t *testing.T) {
	t.Parallel()

	svc, repo := setupTestService(t)

	repo.m.Lock()
	repo.err = ErrRepoError
	repo.m.Unlock()

	for _, line := range []string{"ADD-USER alice pw1", "LIST-ROOMS alice pw1"} {
		if got := svc.Execute(context.Background(), line).String(); got != "ERROR internal error\r\n" {
			t.Errorf("%q: got %q", line, got)
		}
	}
}

func TestChatService_MessageOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := setupTestService(t)

	if err := svc.AddUser(ctx, "alice", "pw1"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	if err := svc.CreateRoom(ctx, "alice", "pw1", "lobby"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	for i := range 10 {
		msg, err := svc.SendMessage(ctx, "alice", "pw1", "lobby", fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}

		if msg.Seq != int64(i+1) {
			t.Errorf("Seq = %d, want %d", msg.Seq, i+1)
		}
	}

	msgs, err := svc.GetMessages(ctx, "alice", "pw1", "lobby", 0)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}

	if len(msgs) != 10 {
		t.Fatalf("got %d messages, want 10", len(msgs))
	}

	for i, msg := range msgs {
		if want := fmt.Sprintf("message %d", i); msg.Text != want || msg.Author != "alice" {
			t.Errorf("msgs[%d] = %+v, want text %q", i, msg, want)
		}

		if i > 0 && msg.Seq <= msgs[i-1].Seq {
			t.Errorf("sequence not increasing at %d", i)
		}
	}
}

func TestChatService_ConcurrentAddUser(t *testing.T) {
	t.Parallel()

	svc, repo := setupTestService(t)

	const workers = 32

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			resp := svc.Execute(context.Background(), fmt.Sprintf("ADD-USER alice pw%d", i))
			if resp.Kind == chatsvc.ResponseOK {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if oks != 1 {
		t.Errorf("%d registrations succeeded, want 1", oks)
	}

	if len(repo.users) != 1 {
		t.Errorf("repository has %d users, want 1", len(repo.users))
	}
}

func TestChatService_ConcurrentRooms(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := setupTestService(t)

	const users = 16

	for i := range users {
		if err := svc.AddUser(ctx, fmt.Sprintf("user%d", i), "pw"); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
	}

	if err := svc.CreateRoom(ctx, "user0", "pw", "lobby"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	var wg sync.WaitGroup

	for i := range users {
		wg.Add(1)

		go func() {
			defer wg.Done()

			name := fmt.Sprintf("user%d", i)
			_ = svc.EnterRoom(ctx, name, "pw", "lobby")
			_, _ = svc.SendMessage(ctx, name, "pw", "lobby", "hi")
		}()
	}

	wg.Wait()

	members, err := svc.GetUsersInRoom(ctx, "user0", "pw", "lobby")
	if err != nil {
		t.Fatalf("GetUsersInRoom: %v", err)
	}

	if len(members) != users {
		t.Errorf("got %d members, want %d", len(members), users)
	}

	msgs, _ := svc.GetMessages(ctx, "user0", "pw", "lobby", 0)
	for i, msg := range msgs {
		if msg.Seq != int64(i+1) {
			t.Errorf("msgs[%d].Seq = %d, want %d", i, msg.Seq, i+1)
		}
	}

	stats := svc.Stats()
	if stats.Users != users || stats.Rooms != 1 || stats.Members != users || stats.Messages != users {
		t.Errorf("Stats() = %+v", stats)
	}

	if !strings.Contains(svc.Execute(ctx, "GET-USERS-IN-ROOM user0 pw lobby").String(), "user0\r\n") {
		t.Error("user0 missing from member list")
	}
}

func TestExecute_InvalidRecord(t *testing.T) {
	t.Parallel()

	repo := &invalidRecordRepository{}

	svc, err := chatsvc.NewChatServiceWithRepo(context.Background(), repo, chatsvc.ChatConfig{}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	if got := svc.Execute(context.Background(), "ADD-USER al\u00a0ice pw1").String(); got != "ERROR malformed request\r\n" {
		t.Errorf("got %q", got)
	}
}

// invalidRecordRepository rejects every record like the file backend does
// for fields containing whitespace.
type invalidRecordRepository struct {
	mockCredentialRepository
}

func (r *invalidRecordRepository) Append(context.Context, string, string) error {
	return credential.ErrInvalidRecord
}
