package domain

import (
	"context"
	"time"
)

// Invocation outcomes recorded in the journal.
const (
	OutcomeSuccess  = "success"
	OutcomeReported = "reported_failure"
	OutcomeNotFound = "not_found"
	OutcomeFault    = "fault"
)

// Invocation is one CALL_TOOL attempt as seen by the dispatcher.
type Invocation struct {
	ID        int64         `json:"id"`
	RequestID string        `json:"request_id"`
	ToolID    string        `json:"tool_id"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Journal is an append-only record of invocations. It is never read back into
// the context store.
type Journal interface {
	Record(ctx context.Context, inv Invocation) error
}
