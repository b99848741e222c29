// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError rejects a malformed schedule request before any side
// effects happen. Fields maps field name to a human-readable problem.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %d field error(s)", len(e.Fields))
}

func NewValidation() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a field problem and returns the error for chaining.
func (e *ValidationError) Add(field, problem string) *ValidationError {
	e.Fields[field] = problem
	return e
}

// HasErrors reports whether any field failed validation.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// ErrTransport wraps a failure at the mail transport boundary. The dispatcher
// records it on the job and does not retry.
type ErrTransport struct {
	To  string
	Err error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("transport send to %s failed: %v", e.To, e.Err)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

func NewTransport(to string, err error) error {
	return &ErrTransport{To: to, Err: err}
}
