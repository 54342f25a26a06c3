package assets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors surfaced by the lifecycle service. Handlers translate these
// into HTTP statuses; callers may match with errors.Is.
var (
	// ErrNotFound means the referenced asset or employee does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent writer updated the asset first; the
	// caller should re-read and retry with fresh state.
	ErrConflict = errors.New("asset was modified concurrently")
	// ErrInvalidOperation means the operation is not permitted in the asset's
	// current status, e.g. deleting an asset that is not retired.
	ErrInvalidOperation = errors.New("operation not permitted in current status")
	// ErrDuplicateTag means the asset tag is already taken.
	ErrDuplicateTag = errors.New("asset tag already exists")
)

// TransitionError reports a status change outside the allowed-from set.
type TransitionError struct {
	From AssetStatus
	To   AssetStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// ValidationError reports missing required fields, a missing mandatory note,
// or unparseable date values. Fields maps field name to reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}
