package domain

import "errors"

var (
	// ErrUserAlreadyExists is returned when trying to register a username that is already taken.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User represents a registered chat user.
type User struct {
	Username string // Unique, case-sensitive login name
	Password string // Stored secret: plaintext for the file store, a bcrypt hash for SQLite
}
