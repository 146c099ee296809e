package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/ircsvc/internal/domain"
	"github.com/mkrupp/ircsvc/internal/infra/logging"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// SQLiteRepositoryConfig holds configuration for the SQLite credential repository.
type SQLiteRepositoryConfig struct {
	// Path is the filesystem path to the SQLite database file
	Path string `env:"PATH" default:"var/storage/ircsvc.db"`

	// BcryptCost is the work factor used when hashing new passwords
	BcryptCost int `env:"BCRYPT_COST" default:"10"`
}

// SQLiteRepository implements Repository using SQLite as the storage backend.
// Passwords are stored as bcrypt hashes; Load therefore returns hashes, not plaintext.
type SQLiteRepository struct {
	db        *sql.DB
	log       logging.Logger
	cost      int
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens the database and creates the schema if needed.
func NewSQLiteRepository(cfg SQLiteRepositoryConfig) (*SQLiteRepository, error) {
	log := logging.GetLogger("repo.credential.sqlite_repository").With(
		logging.Group("db", "path", cfg.Path),
	)

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		db.Close()

		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()

		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &SQLiteRepository{
		db:        db,
		log:       log,
		cost:      cost,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT    UNIQUE NOT NULL,
			password_hash BLOB    NOT NULL,
			created_at    INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load implements Repository.Load, ordered by insertion.
func (r *SQLiteRepository) Load(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT username, password_hash FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User

	for rows.Next() {
		var (
			user domain.User
			hash []byte
		)

		if err := rows.Scan(&user.Username, &hash); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}

		user.Password = string(hash)
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Verify implements Repository.Verify by comparing against the stored bcrypt hash.
func (r *SQLiteRepository) Verify(ctx context.Context, username, password string) (bool, error) {
	var hash []byte

	err := r.db.QueryRowContext(ctx,
		"SELECT password_hash FROM users WHERE username = ?",
		username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}

		return false, fmt.Errorf("compare hash: %w", err)
	}

	return true, nil
}

// Append implements Repository.Append using SQLite.
func (r *SQLiteRepository) Append(ctx context.Context, username, password string) error {
	if !validField(username) || !validField(password) || len(password) > maxPasswordBytes {
		return ErrInvalidRecord
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return errors.Join(ErrInvalidRecord, err)
		}

		return fmt.Errorf("hash password: %w", err)
	}

	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username,
		hash,
		time.Now().Unix(),
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) {
			switch liteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				err = errors.Join(domain.ErrUserAlreadyExists, err)
			}
		}

		return fmt.Errorf("insert user: %w", err)
	}

	r.log.DebugContext(ctx, "credential appended", logging.Group("user", "username", username))

	return nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
