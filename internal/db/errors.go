package db

import "errors"

var (
	// ErrKeyNotFound is returned by Get and JSONGet for missing keys.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexExists is returned by CreateIndex when another replica won the race.
	ErrIndexExists = errors.New("db: index already exists")
)

// Error carries the failing valkey command.
type Error struct {
	Op  string // command name, e.g. "JSON.SET"
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// OpError wraps err with the command name. nil stays nil.
func OpError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
