package queue

import (
	"context"

	"github.com/carlosapgomes/caseflow/internal/models"
)

// Handler executes one job. A returned error is treated as retriable
// (ScheduleRetry, or MarkDead once max_attempts is exhausted); a nil
// return marks the job done.
type Handler interface {
	Handle(ctx context.Context, job models.Job) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, job models.Job) error

// Handle calls f(ctx, job).
func (f HandlerFunc) Handle(ctx context.Context, job models.Job) error { return f(ctx, job) }

// HandlerRegistry dispatches a claimed job to the Handler registered for
// its job_type.
type HandlerRegistry struct {
	handlers map[string]Handler
}

// NewHandlerRegistry builds an empty HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register associates jobType with a Handler. Registering the same
// jobType twice overwrites the previous registration.
func (r *HandlerRegistry) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Lookup returns the Handler registered for jobType, or nil if none is
// registered.
func (r *HandlerRegistry) Lookup(jobType string) Handler {
	return r.handlers[jobType]
}
