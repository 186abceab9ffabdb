package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/executor"
)

type fakeFlusher struct {
	bytes.Buffer
	flushes int
}

func (f *fakeFlusher) Flush() { f.flushes++ }

func TestManager_BroadcastDeliversToSubscriber(t *testing.T) {
	m := NewManager()
	conn, replay, unsubscribe := m.Subscribe("p1")
	defer unsubscribe()
	if replay != nil {
		t.Fatalf("expected no replay for a fresh query")
	}

	m.Broadcast(Event{ProcessID: "p1", Type: TypePlanStatus, Data: json.RawMessage(`{"status":"running"}`)})

	select {
	case <-conn.Wake():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wake signal")
	}
	got := conn.drain()
	if len(got) != 1 || got[0].Type != TypePlanStatus {
		t.Fatalf("expected one plan_status event, got %+v", got)
	}
}

func TestManager_ReplaysTerminalEventOnReconnect(t *testing.T) {
	m := NewManager()
	m.Broadcast(Event{ProcessID: "p2", Type: TypeFinalResult, Data: json.RawMessage(`{"status":"completed"}`)})

	_, replay, _ := m.Subscribe("p2")
	if replay == nil {
		t.Fatalf("expected a replayed terminal event for an already-finished query")
	}
	if replay.Type != TypeFinalResult {
		t.Fatalf("expected final_result replay, got %s", replay.Type)
	}
}

func TestConnection_DropsOldestNonTerminalUnderBackpressure(t *testing.T) {
	m := NewManager()
	conn, _, unsubscribe := m.Subscribe("p3")
	defer unsubscribe()

	for i := 0; i < maxQueuedEvents+10; i++ {
		m.Broadcast(Event{ProcessID: "p3", Type: TypeStepStatusUpdate, Data: json.RawMessage(`{}`)})
	}
	m.Broadcast(Event{ProcessID: "p3", Type: TypeFinalResult, Data: json.RawMessage(`{}`)})

	got := conn.drain()
	if len(got) > maxQueuedEvents+1 {
		t.Fatalf("queue grew past its cap plus the guaranteed terminal event: got %d", len(got))
	}
	if got[len(got)-1].Type != TypeFinalResult {
		t.Fatalf("terminal event must never be dropped, got last=%s", got[len(got)-1].Type)
	}
}

func TestStream_ReplaysWithoutRegisteringSubscriber(t *testing.T) {
	m := NewManager()
	m.Broadcast(Event{ProcessID: "p4", Type: TypePlanError, Data: json.RawMessage(`{"message":"boom"}`)})

	out := &fakeFlusher{}
	if err := m.Stream(context.Background(), "p4", out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.flushes == 0 {
		t.Fatalf("expected at least one flush")
	}
	if !bytes.Contains(out.Bytes(), []byte("event: plan_error")) {
		t.Fatalf("expected plan_error frame, got %q", out.String())
	}
}

func TestStream_StopsAfterTerminalEvent(t *testing.T) {
	m := NewManager()
	done := make(chan error, 1)
	out := &fakeFlusher{}
	go func() { done <- m.Stream(context.Background(), "p5", out) }()

	time.Sleep(20 * time.Millisecond) // let Stream register its subscription
	m.Broadcast(Event{ProcessID: "p5", Type: TypeStepStatusUpdate, Data: json.RawMessage(`{}`)})
	m.Broadcast(Event{ProcessID: "p5", Type: TypeFinalResult, Data: json.RawMessage(`{}`)})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after the terminal event")
	}
	if !bytes.Contains(out.Bytes(), []byte("event: final_result")) {
		t.Fatalf("expected final_result frame, got %q", out.String())
	}
}

func TestPublisher_PublishStepStatusIncludesSummaryOnCompletion(t *testing.T) {
	m := NewManager()
	conn, _, unsubscribe := m.Subscribe("p6")
	defer unsubscribe()
	p := NewPublisher(m)

	if err := p.PublishStepStatus(context.Background(), "p6", executor.StepStatusEvent{
		Position:    0,
		Tool:        "sql",
		Status:      "completed",
		RecordCount: 3,
		ElapsedMS:   12,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := conn.drain()
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	var payload StepStatusPayload
	if err := json.Unmarshal(got[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.ResultSummary == "" {
		t.Fatalf("expected a non-empty result summary on completion")
	}
}

func TestPublisher_PublishPlanCancelledIsTerminal(t *testing.T) {
	m := NewManager()
	p := NewPublisher(m)
	if err := p.PublishPlanCancelled(context.Background(), "p7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, replay, _ := m.Subscribe("p7")
	if replay == nil || replay.Type != TypePlanCancelled {
		t.Fatalf("expected plan_cancelled to be retained for replay, got %+v", replay)
	}
}
