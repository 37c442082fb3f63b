package domain

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrNotFound is returned when a catalog item or stored record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRefreshInProgress is returned when a metadata refresh is requested while one is running.
	ErrRefreshInProgress = errors.New("metadata refresh already running")

	// ErrRefreshTimeout is reported when a metadata refresh exceeded its time limit.
	ErrRefreshTimeout = errors.New("metadata refresh timed out")

	// ErrInsufficientSpace is returned when the download volume is nearly full.
	ErrInsufficientSpace = errors.New("insufficient storage space")

	// ErrNoFormat is returned when no downloadable format matches the settings.
	ErrNoFormat = errors.New("no matching format")

	// ErrInvalidSettings is returned when submitted settings cannot be applied.
	ErrInvalidSettings = errors.New("invalid settings")
)

// TransferError wraps a failure of a single download execution. Every transfer
// error is retryable: the entry moves on to its next schedule date.
type TransferError struct {
	APIID   string
	Channel string
	Op      string
	Err     error
}

func (e *TransferError) Error() string {
	if e.APIID != "" {
		return e.Op + " [" + e.Channel + "/" + e.APIID + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new TransferError.
func NewTransferError(apiID, channel, op string, err error) *TransferError {
	return &TransferError{
		APIID:   apiID,
		Channel: channel,
		Op:      op,
		Err:     err,
	}
}

// PersistenceError wraps a storage failure with the collection and key involved.
type PersistenceError struct {
	Collection string
	Op         string
	Key        string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s [%s]: %v", e.Op, e.Collection, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(collection, op, key string, err error) *PersistenceError {
	return &PersistenceError{
		Collection: collection,
		Op:         op,
		Key:        key,
		Err:        err,
	}
}
