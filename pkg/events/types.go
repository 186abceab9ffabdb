// Package events is the SSE half of the HTTP surface (spec.md §6.1): it
// fans a per-query event stream out to however many clients are watching
// a correlation id, replays the terminal event to a client that
// reconnects after the query is already done, and drops buffered
// progress pings (never terminal events) when a client falls behind.
//
// Grounded on the teacher's pkg/events/manager.go ConnectionManager —
// same single-owner-goroutine-per-connection shape, same
// register/broadcast/unregister split — adapted from a bidirectional,
// subscribable WebSocket (subscribe/unsubscribe/catchup client
// messages, PG LISTEN/NOTIFY fan-in) to a one-way, one-channel-per-query
// SSE push: a query has exactly one channel (its correlation id), there
// is nothing to subscribe to beyond connecting, and catchup is just "the
// last terminal event" rather than a paginated event log.
package events

import "encoding/json"

// Type identifies an SSE event name (spec.md §6.1).
type Type string

const (
	TypePlanStatus       Type = "plan_status"
	TypeStepStatusUpdate Type = "step_status_update"
	TypeFinalResult      Type = "final_result"
	TypePlanError        Type = "plan_error"
	TypePlanCancelled    Type = "plan_cancelled"
)

// Terminal reports whether an event of this type ends the stream for its
// query. A terminal event is what a reconnecting client replays (spec.md
// §6.1 "Reconnecting to a terminal query replays its final event") and is
// never dropped under backpressure (spec.md §5 "Backpressure").
func (t Type) Terminal() bool {
	switch t {
	case TypeFinalResult, TypePlanError, TypePlanCancelled:
		return true
	default:
		return false
	}
}

// Event is one SSE frame: a typed, already-marshaled payload destined for
// every connection currently watching ProcessID.
type Event struct {
	ProcessID string
	Type      Type
	Data      json.RawMessage
}
