package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes (missing doc_id/source, unknown
	// sync type). Never retryable.
	ErrValidation = errors.New("invalid input")
	// ErrPersistence marks storage failures the caller may retry; a whole
	// admit-commit cycle is safe to repeat.
	ErrPersistence = errors.New("persistence failure")
	// ErrDuplicateContent signals that another doc_id already holds the
	// content hash. It is a normal outcome, not a failure.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrTemporary marks transient upstream failures (embedding backend,
	// vector store, queue) worth retrying later.
	ErrTemporary = errors.New("temporary failure")

	ErrDocumentNotFound = errors.New("document not found")
	ErrSyncRunNotFound  = errors.New("sync run not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
