package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/ircsvc/internal/domain"
)

// ErrUnknownBackend is returned when the configured backend name is not supported.
var ErrUnknownBackend = errors.New("unknown credential backend")

// Repository defines the interface for credential persistence.
type Repository interface {
	// Load returns every stored user in insertion order.
	Load(ctx context.Context) ([]domain.User, error)

	// Verify reports whether a stored record matches both username and password exactly.
	Verify(ctx context.Context, username, password string) (bool, error)

	// Append durably adds one record. Subsequent Verify calls observe it.
	// Returns ErrUserAlreadyExists if the username is already taken.
	Append(ctx context.Context, username, password string) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func() (Repository, error)

// Config selects and configures the credential backend.
type Config struct {
	// Backend is either "file" or "sqlite"
	Backend string `env:"BACKEND" default:"file"`

	File   FileRepositoryConfig   `envPrefix:"FILE_"`
	SQLite SQLiteRepositoryConfig `envPrefix:"DATABASE_"`
}

// Factory returns a RepositoryFactory for the configured backend.
func Factory(cfg Config) RepositoryFactory {
	return func() (Repository, error) {
		switch cfg.Backend {
		case "", "file":
			return NewFileRepository(cfg.File)
		case "sqlite":
			return NewSQLiteRepository(cfg.SQLite)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
		}
	}
}
