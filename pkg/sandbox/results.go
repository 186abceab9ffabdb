package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// resultsMarker and resultsEnd frame the QUERY RESULTS block a sandboxed
// script prints to stdout (spec.md §6.2). Any stdout outside the framed
// block is debug log, not data.
const (
	resultsMarker = "QUERY RESULTS"
	resultsEnd    = "===="
)

// writeQueryResults marshals value to JSON and frames it per spec.md §6.2,
// called from the child process side (RunSubcommand) after print_results.
func writeQueryResults(value any) ([]byte, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("sandbox: marshaling print_results value: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(resultsMarker)
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte('\n')
	buf.WriteString(resultsEnd)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// extractQueryResults scans stdout for the marker-delimited JSON block and
// parses it, called from the parent process side (Runner.Execute). Rejects
// output with no block, an unparseable block, or more than one block.
func extractQueryResults(stdout []byte) (json.RawMessage, error) {
	lines := bytes.Split(stdout, []byte("\n"))
	start := -1
	end := -1
	for i, line := range lines {
		text := string(bytes.TrimRight(line, "\r"))
		if text == resultsMarker && start == -1 {
			start = i
			continue
		}
		if start != -1 && text == resultsEnd {
			end = i
			break
		}
	}
	if start == -1 || end == -1 {
		return nil, fmt.Errorf("sandbox: stdout did not contain a QUERY RESULTS block")
	}
	body := bytes.Join(lines[start+1:end], []byte("\n"))
	if !json.Valid(body) {
		return nil, fmt.Errorf("sandbox: QUERY RESULTS block is not valid JSON")
	}
	return json.RawMessage(body), nil
}
