package events

import (
	"bufio"
	"context"
	"fmt"
)

// Flusher is the subset of http.ResponseWriter/http.Flusher the stream
// writer needs — kept minimal so this package doesn't import net/http.
type Flusher interface {
	Write(p []byte) (int, error)
	Flush()
}

// writeFrame writes one SSE frame: "event: <type>\ndata: <json>\n\n".
func writeFrame(w *bufio.Writer, evt Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", evt.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", evt.Data); err != nil {
		return err
	}
	return w.Flush()
}

// Stream pumps processID's event stream to w until a terminal event has
// been written, the context is cancelled, or a write fails. If the query
// already finished, the retained terminal event is replayed immediately
// and Stream returns without registering a live subscription (spec.md
// §6.1 "Reconnecting to a terminal query replays its final event").
func (m *Manager) Stream(ctx context.Context, processID string, out Flusher) error {
	conn, replay, unsubscribe := m.Subscribe(processID)
	bw := bufio.NewWriter(out)

	if replay != nil {
		err := writeFrame(bw, *replay)
		out.Flush()
		return err
	}
	defer unsubscribe()

	for {
		for _, evt := range conn.drain() {
			if err := writeFrame(bw, evt); err != nil {
				return err
			}
			out.Flush()
			if evt.Type.Terminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Wake():
		}
	}
}
