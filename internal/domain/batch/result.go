// Package batch holds per-item result reporting for batch operations.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of processing one item in a batch operation. For
// successful compliance checks Output carries the analysis text.
type Result struct {
	id     string
	status ItemStatus
	output string
	err    error
}

// NewOK creates a successful batch result with the produced output.
func NewOK(id, output string) Result {
	return Result{id: id, status: StatusOK, output: output}
}

// NewError creates a failed batch result.
func NewError(id string, err error) Result {
	return Result{id: id, status: StatusError, err: err}
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Output returns the produced output for successful items.
func (r Result) Output() string { return r.output }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
