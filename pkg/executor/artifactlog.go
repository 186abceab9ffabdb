package executor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// ArtifactLog is the append-only, on-disk artifacts file spec.md §3
// describes: one JSON-lines file per correlation id, so Synthesis can
// read prior phases' generated code and results without re-prompting
// them. A zero-value ArtifactLog (empty dir) is a deliberate no-op sink —
// the executor always calls Append, regardless of whether logging to
// disk is configured.
type ArtifactLog struct {
	dir string
	mu  sync.Mutex
}

// NewArtifactLog builds an ArtifactLog rooted at dir. An empty dir makes
// Append a no-op, which tests rely on.
func NewArtifactLog(dir string) *ArtifactLog {
	return &ArtifactLog{dir: dir}
}

func (l *ArtifactLog) path(correlationID string) string {
	return filepath.Join(l.dir, correlationID+".jsonl")
}

// Append records one phase's artifact, creating the correlation id's file
// on first use.
func (l *ArtifactLog) Append(rec models.ArtifactRecord) error {
	if l.dir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path(rec.CorrelationID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = f.Write(body)
	return err
}

// ReadAll returns every record appended for correlationID, in append
// order, used by Synthesis to reconstruct prior phases' work.
func (l *ArtifactLog) ReadAll(correlationID string) ([]models.ArtifactRecord, error) {
	if l.dir == "" {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	body, err := os.ReadFile(l.path(correlationID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []models.ArtifactRecord
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec models.ArtifactRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
