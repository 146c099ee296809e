package credential_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkrupp/ircsvc/internal/domain"

	. "github.com/mkrupp/ircsvc/internal/repo/credential"
)

type backend struct {
	name string
	open func(t *testing.T, dir string) Repository
}

//nolint:gochecknoglobals
var backends = []backend{
	{
		name: "file",
		open: func(t *testing.T, dir string) Repository {
			t.Helper()

			return mustOpen(t, Factory(Config{
				Backend: "file",
				File:    FileRepositoryConfig{Path: filepath.Join(dir, "password.txt")},
			}))
		},
	},
	{
		name: "sqlite",
		open: func(t *testing.T, dir string) Repository {
			t.Helper()

			return mustOpen(t, Factory(Config{
				Backend: "sqlite",
				SQLite:  SQLiteRepositoryConfig{Path: filepath.Join(dir, "ircsvc.db"), BcryptCost: 4},
			}))
		},
	},
}

func mustOpen(t *testing.T, factory RepositoryFactory) Repository {
	t.Helper()

	repo, err := factory()
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}

	return repo
}

func TestRepository_AppendVerify(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			repo := b.open(t, t.TempDir())
			t.Cleanup(func() { repo.Close() })

			if err := repo.Append(ctx, "alice", "pw1"); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			if err := repo.Append(ctx, "bob", "secret"); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			tests := []struct {
				name     string
				username string
				password string
				want     bool
			}{
				{name: "exact match", username: "alice", password: "pw1", want: true},
				{name: "second user", username: "bob", password: "secret", want: true},
				{name: "wrong password", username: "alice", password: "pw2", want: false},
				{name: "password prefix is not a match", username: "alice", password: "pw", want: false},
				{name: "username prefix is not a match", username: "ali", password: "pw1", want: false},
				{name: "unknown user", username: "carol", password: "pw1", want: false},
				{name: "case sensitive username", username: "Alice", password: "pw1", want: false},
			}

			for _, tt := range tests {
				got, err := repo.Verify(ctx, tt.username, tt.password)
				if err != nil {
					t.Fatalf("%s: Verify() error = %v", tt.name, err)
				}

				if got != tt.want {
					t.Errorf("%s: Verify(%q, %q) = %v, want %v", tt.name, tt.username, tt.password, got, tt.want)
				}
			}

			if err := repo.Append(ctx, "alice", "other"); !errors.Is(err, domain.ErrUserAlreadyExists) {
				t.Errorf("Append() duplicate error = %v, want %v", err, domain.ErrUserAlreadyExists)
			}

			if err := repo.Append(ctx, "with space", "pw"); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Append() invalid error = %v, want %v", err, ErrInvalidRecord)
			}

			if b.name == "sqlite" {
				long := strings.Repeat("p", 80)
				if err := repo.Append(ctx, "carol", long); !errors.Is(err, ErrInvalidRecord) {
					t.Errorf("Append() long password error = %v, want %v", err, ErrInvalidRecord)
				}

				if err := repo.Append(ctx, "carol", strings.Repeat("p", 72)); err != nil {
					t.Errorf("Append() 72 byte password error = %v", err)
				}
			}
		})
	}
}

func TestRepository_LoadAfterReopen(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			dir := t.TempDir()

			repo := b.open(t, dir)
			for _, name := range []string{"alice", "bob", "carol"} {
				if err := repo.Append(ctx, name, name+"-pw"); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}

			if err := repo.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			repo = b.open(t, dir)
			t.Cleanup(func() { repo.Close() })

			users, err := repo.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			want := []string{"alice", "bob", "carol"}
			if len(users) != len(want) {
				t.Fatalf("Load() returned %d users, want %d", len(users), len(want))
			}

			for i, user := range users {
				if user.Username != want[i] {
					t.Errorf("Load()[%d] = %q, want %q", i, user.Username, want[i])
				}
			}

			ok, err := repo.Verify(ctx, "bob", "bob-pw")
			if err != nil || !ok {
				t.Errorf("Verify() after reopen = %v, %v, want true, nil", ok, err)
			}
		})
	}
}

func TestFileRepository_Format(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "password.txt")

	legacy := "alice pw1\n\nbroken\nbob  pw2 trailing\nalice pw3\n"
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	repo, err := NewFileRepository(FileRepositoryConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()

	users, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Fatalf("Load() = %+v, want alice, bob", users)
	}

	for _, pw := range []string{"pw1", "pw3"} {
		if ok, _ := repo.Verify(ctx, "alice", pw); !ok {
			t.Errorf("Verify(alice, %s) = false, want true", pw)
		}
	}

	if err := repo.Append(ctx, "carol", "pw4"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	if want := legacy + "carol pw4\n"; string(content) != want {
		t.Errorf("file content = %q, want %q", content, want)
	}

	// every separator strings.Fields splits on must be refused, or a reload
	// would store only the prefix of the password
	for _, pw := range []string{"secret\vtail", "secret\ftail", "secret\u0085tail", "secret\u00a0tail", "secret\x00tail"} {
		if err := repo.Append(ctx, "dave", pw); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Append(dave, %q) error = %v, want %v", pw, err, ErrInvalidRecord)
		}
	}

	repo.Close()

	reopened, err := NewFileRepository(FileRepositoryConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	for _, tt := range []struct {
		username, password string
		want               bool
	}{
		{"carol", "pw4", true},
		{"dave", "secret", false},
		{"dave", "secret\vtail", false},
	} {
		if ok, _ := reopened.Verify(ctx, tt.username, tt.password); ok != tt.want {
			t.Errorf("after reopen Verify(%s, %q) = %v, want %v", tt.username, tt.password, ok, tt.want)
		}
	}
}

func TestFactory_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := Factory(Config{Backend: "redis"})(); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Factory() error = %v, want %v", err, ErrUnknownBackend)
	}
}
