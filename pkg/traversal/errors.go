package traversal

import (
	"errors"
	"fmt"

	"github.com/orneryd/graphkv/pkg/storage"
)

// Error taxonomy. Operators wrap the specific failure around one of these so callers
// can classify it with errors.Is.
var (
	// ErrEncode and ErrDecode are the codec failures surfaced by the storage package.
	ErrEncode = storage.ErrEncode
	ErrDecode = storage.ErrDecode

	// ErrStorage wraps engine and transaction failures.
	ErrStorage = errors.New("storage error")

	// ErrSchema reports a secondary index that was never declared.
	ErrSchema = errors.New("schema error")

	// ErrData reports data that violates what an operator requires, such as a node
	// missing the property of a requested index or an edge endpoint that does not exist.
	ErrData = errors.New("data error")

	// ErrNotFound reports a lookup by id that found nothing.
	ErrNotFound = storage.ErrNotFound

	// ErrUnexpectedValue reports an element of the wrong kind for an operator, such as
	// an edge fed into Out.
	ErrUnexpectedValue = errors.New("unexpected value kind")

	// ErrConsumed is yielded by a traversal that was already handed to another operator.
	ErrConsumed = errors.New("traversal already consumed")

	// ErrNoResults is returned by First on an empty traversal.
	ErrNoResults = errors.New("traversal produced no results")
)

// Consolidated operator failures. A mutating operator that hits any failure yields a
// single OpError whose message is one of these.
var (
	ErrNodeInsert = errors.New("failed to add node to secondary indices")
	ErrEdgeInsert = errors.New("failed to add edge")
	ErrDrop       = errors.New("failed to drop")
	ErrUpdate     = errors.New("failed to update node")
)

// OpError is the consolidated failure of a mutating operator.
//
// Its message is the generic summary only; errors.Is matches the summary sentinel and
// nothing else. The individual sub-step failures are kept in Causes, in the order they
// happened, for callers that want them:
//
//	var opErr *traversal.OpError
//	if errors.As(err, &opErr) {
//		for _, cause := range opErr.Causes {
//			log.Println(cause)
//		}
//	}
//
// Writes that succeeded before a failure are still in the transaction. Abort the
// transaction when an operator yields an OpError.
type OpError struct {
	Op      string
	Summary error
	Causes  []error
}

// Error returns the summary message; the causes are reported by Causes.
func (e *OpError) Error() string { return e.Summary.Error() }

// Is matches the summary sentinel.
func (e *OpError) Is(target error) bool { return target == e.Summary }

// Last returns the most recent sub-step failure.
func (e *OpError) Last() error {
	if len(e.Causes) == 0 {
		return nil
	}
	return e.Causes[len(e.Causes)-1]
}

// Causes returns the sub-step failures behind err when err is an OpError.
func Causes(err error) []error {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return append([]error(nil), opErr.Causes...)
	}
	return nil
}

// storageErr classifies an error coming back from the storage package.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEncode) || errors.Is(err, ErrDecode) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
