// Package health runs the diagnostic checks behind "oncare doctor".
//
// Each Checker checks one dependency of the client: the backend, the stored
// session, the realtime channel. A Manager runs them concurrently with a
// per-check timeout and folds the results into an overall Status.
package health

import (
	"context"
	"time"
)

// Checker checks one dependency.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "backend" or "realtime-channel".
	Name() string

	// Check must respect the context deadline.
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	// StatusDegraded means the client works with reduced functionality,
	// for example without live notifications.
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is what a Checker reports.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency"`
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

func Healthy(message string) *Result { return NewResult(StatusHealthy, message) }
func Degraded(message string) *Result { return NewResult(StatusDegraded, message) }
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	CheckName string
	Fn        func(ctx context.Context) *Result
}

func (c CheckerFunc) Name() string { return c.CheckName }
func (c CheckerFunc) Check(ctx context.Context) *Result { return c.Fn(ctx) }
