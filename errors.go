package vexa

import (
	"errors"
	"fmt"

	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/index"
	"github.com/vexasearch/vexa/persistence"
	"github.com/vexasearch/vexa/pool"
)

var (
	// ErrInvalidRequest is returned when a search request fails validation
	// (k out of bounds, empty query, nil request).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCountMismatch is returned when vectors and metadata entries are
	// supplied with different lengths.
	ErrCountMismatch = errors.New("vectors and metadata count mismatch")

	// ErrNotFound is returned when a referenced item or snapshot does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrOverloaded is returned when the worker pool queue stays full for
	// the whole submit timeout. The request was not executed.
	ErrOverloaded = errors.New("engine overloaded")

	// ErrInitialization is returned when the engine cannot reach the
	// Ready state.
	ErrInitialization = errors.New("initialization failed")

	// ErrEngineClosed is returned for operations after shutdown began.
	ErrEngineClosed = errors.New("engine closed")

	// ErrEngineNotReady is returned for operations before Initialize.
	ErrEngineNotReady = errors.New("engine not ready")
)

// ErrDimensionMismatch indicates a vector or query whose dimensionality
// differs from the configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrIndexFormat indicates a snapshot that exists but fails format
// validation (bad magic, version, checksum or payload).
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrIndexFormat struct {
	Name  string
	cause error
}

func (e *ErrIndexFormat) Error() string {
	return fmt.Sprintf("invalid index format: %s: %v", e.Name, e.cause)
}

func (e *ErrIndexFormat) Unwrap() error { return e.cause }

// translateError maps inner package errors onto the public taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var id *index.ErrInvalidDimension
	if errors.As(err, &id) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if errors.Is(err, pool.ErrOverloaded) {
		return fmt.Errorf("%w: %w", ErrOverloaded, err)
	}
	if errors.Is(err, pool.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrEngineClosed, err)
	}

	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}

// translateLoadError maps snapshot read failures for a named blob.
func translateLoadError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrFormat) {
		return &ErrIndexFormat{Name: name, cause: err}
	}
	return translateError(err)
}
