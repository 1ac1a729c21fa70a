package conversation

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a conversation or message id does not
	// resolve to an existing record.
	ErrNotFound = errors.New("not found")

	// ErrEmptyConversation is returned when an operation requires at least
	// one message (e.g. forking) and the conversation has none.
	ErrEmptyConversation = errors.New("conversation has no messages")
)

// StorageError wraps a failure of the underlying persistence layer so that
// callers can distinguish storage failures from domain errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorage wraps err as a StorageError unless it is nil or already part of
// the domain taxonomy (a not-found result is not a storage failure).
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
