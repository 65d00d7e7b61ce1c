package targeted

import (
	"errors"
	"fmt"
)

// ViolationError reports a broken store invariant.
//
// Violations are programmer errors in the surrounding pipeline, never
// runtime conditions: the store raises them with panic and nothing in this
// package recovers them. Violations include:
//   - Shard count mismatch: the pool size differs from the one at construction
//   - Not on worker: a shard-affine call from outside the pool
//   - Wrong owner: a shard pinned by another worker goroutine
//   - Handle misuse: foreign, stale or already consumed handles
//   - Drain on worker: a drain started from inside the pool
type ViolationError struct {
	// Code identifies the violation category.
	Code ViolationCode

	// Message is a human-readable description.
	Message string

	// Store is the name of the store the violation happened on.
	Store string

	// Shard is the affected shard index, or -1 when no shard is involved.
	Shard int
}

// ViolationCode categorizes invariant violations.
type ViolationCode string

const (
	// ErrCodeShardCount indicates the pool size changed since the store was
	// created, or a key mapped outside [0, N).
	ErrCodeShardCount ViolationCode = "SHARD_COUNT_MISMATCH"

	// ErrCodeNotOnWorker indicates a shared push from a goroutine that is not
	// a worker of the store's pool.
	ErrCodeNotOnWorker ViolationCode = "NOT_ON_WORKER"

	// ErrCodeWrongOwner indicates a shard pinned by a different worker
	// goroutine than the caller.
	ErrCodeWrongOwner ViolationCode = "WRONG_OWNER"

	// ErrCodeForeignHandle indicates a handle that was not minted by a drain,
	// or was minted on another worker.
	ErrCodeForeignHandle ViolationCode = "FOREIGN_HANDLE"

	// ErrCodeStaleHandle indicates a handle used after its drain callback
	// returned.
	ErrCodeStaleHandle ViolationCode = "STALE_HANDLE"

	// ErrCodeHandleConsumed indicates a second shared push with one handle.
	ErrCodeHandleConsumed ViolationCode = "HANDLE_CONSUMED"

	// ErrCodeDrainOnWorker indicates a drain started from inside the pool.
	ErrCodeDrainOnWorker ViolationCode = "DRAIN_ON_WORKER"
)

// Error implements the error interface.
func (e *ViolationError) Error() string {
	if e.Shard >= 0 {
		return fmt.Sprintf("%s: %s (store=%s, shard=%d)", e.Code, e.Message, e.Store, e.Shard)
	}
	return fmt.Sprintf("%s: %s (store=%s)", e.Code, e.Message, e.Store)
}

// IsViolation returns true if err is or wraps a *ViolationError.
// Panic values recovered from a pool broadcast wrap the original error, so
// this also classifies violations raised on a worker.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}

// IsConfigError returns true for shard count mismatches.
func IsConfigError(err error) bool {
	return violationCode(err) == ErrCodeShardCount
}

// IsAffinityError returns true for every violation of worker affinity:
// calls off the pool, wrong shard owner, handle misuse and drains started
// on a worker.
func IsAffinityError(err error) bool {
	switch violationCode(err) {
	case ErrCodeNotOnWorker, ErrCodeWrongOwner, ErrCodeForeignHandle,
		ErrCodeStaleHandle, ErrCodeHandleConsumed, ErrCodeDrainOnWorker:
		return true
	}
	return false
}

// CodeOf returns the violation code carried by err, or "" if err is not a
// violation.
func CodeOf(err error) ViolationCode {
	return violationCode(err)
}

func violationCode(err error) ViolationCode {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// violate panics with a *ViolationError.
func violate(code ViolationCode, store string, shard int, format string, args ...any) {
	panic(&ViolationError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Store:   store,
		Shard:   shard,
	})
}
