package services

import (
	"errors"
	"fmt"
)

var (
	ErrProviderTimeout  = errors.New("provider call timed out")
	ErrAccountNotLinked = errors.New("no tiktok account linked")
	ErrInvalidHashtag   = errors.New("invalid hashtag")
	ErrInvalidUsername  = errors.New("invalid tiktok username")
	ErrEmptyOwnerKey    = errors.New("owner id and clock key are required")
	ErrRecordNotFound   = errors.New("cached record not found")
)

// ProviderError is a failed provider call. StatusCode is 0 for transport
// failures.
type ProviderError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WriteError is a failed cache write. Batches written before it stay.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func asWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Op: op, Err: err}
}
