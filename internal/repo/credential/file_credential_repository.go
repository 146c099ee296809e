package credential

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/mkrupp/ircsvc/internal/domain"
	"github.com/mkrupp/ircsvc/internal/infra/logging"
)

// ErrInvalidRecord is returned when a username or password cannot be stored
// in the whitespace-delimited file format.
var ErrInvalidRecord = errors.New("invalid credential record")

// FileRepositoryConfig holds configuration for the flat-file credential repository.
type FileRepositoryConfig struct {
	// Path is the credential file, one "username password" record per line
	Path string `env:"PATH" default:"password.txt"`
}

// FileRepository implements Repository on an append-only text file.
// All records are loaded into memory when the repository is opened.
type FileRepository struct {
	file *os.File
	log  logging.Logger

	mu        sync.RWMutex
	order     []string
	passwords map[string][]string // files written by older servers may repeat a username
}

var _ Repository = (*FileRepository)(nil)

// NewFileRepository opens (creating if needed) the credential file and loads
// every record into memory. Lines without both fields are skipped.
func NewFileRepository(cfg FileRepositoryConfig) (*FileRepository, error) {
	log := logging.GetLogger("repo.credential.file_repository").With(
		logging.Group("file", "path", cfg.Path),
	)

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open credential file: %w", err)
	}

	repo := &FileRepository{
		file:      file,
		log:       log,
		passwords: make(map[string][]string),
	}

	if err := repo.load(); err != nil {
		file.Close()

		return nil, fmt.Errorf("load credential file: %w", err)
	}

	log.Debug("credentials loaded", "users", len(repo.order))

	return repo, nil
}

func (r *FileRepository) load() error {
	scanner := bufio.NewScanner(r.file)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if len(fields) < 2 {
			r.log.Warn("skipping malformed record", "line", lineNo)

			continue
		}

		r.index(fields[0], fields[1])
	}

	//nolint:wrapcheck
	return scanner.Err()
}

func (r *FileRepository) index(username, password string) {
	if _, ok := r.passwords[username]; !ok {
		r.order = append(r.order, username)
	}

	r.passwords[username] = append(r.passwords[username], password)
}

// Load implements Repository.Load.
func (r *FileRepository) Load(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.order))
	for _, username := range r.order {
		users = append(users, domain.User{
			Username: username,
			Password: r.passwords[username][0],
		})
	}

	return users, nil
}

// Verify implements Repository.Verify with exact, constant-time field comparison.
func (r *FileRepository) Verify(_ context.Context, username, password string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	match := 0

	for _, stored := range r.passwords[username] {
		match |= subtle.ConstantTimeCompare([]byte(stored), []byte(password))
	}

	return match == 1, nil
}

// Append implements Repository.Append. The record is fsynced before returning.
func (r *FileRepository) Append(ctx context.Context, username, password string) error {
	if !validField(username) || !validField(password) {
		return ErrInvalidRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.passwords[username]; ok {
		return domain.ErrUserAlreadyExists
	}

	if _, err := fmt.Fprintf(r.file, "%s %s\n", username, password); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("sync credential file: %w", err)
	}

	r.index(username, password)
	r.log.DebugContext(ctx, "credential appended", logging.Group("user", "username", username))

	return nil
}

// Close implements Repository.Close.
func (r *FileRepository) Close() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}

	return nil
}

// validField reports whether s survives a round trip through the file
// format, whose records are split with strings.Fields on load.
func validField(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}
