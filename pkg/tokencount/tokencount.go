// Package tokencount estimates token counts for text sent to or received
// from an LLM, used as a local sanity cross-check against a provider's
// reported usage object (SPEC_FULL.md §6.3).
//
// Grounded on BaSui01-agentflow's llm/tokenizer/tiktoken.go: lazy
// per-encoding initialization via sync.Once, a model-to-encoding lookup
// table with a cl100k_base fallback for unknown models.
package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Estimator counts tokens for one model's encoding. Safe for concurrent use.
type Estimator struct {
	encoding string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewEstimator builds an Estimator for model, falling back to cl100k_base
// when the model is not in the lookup table.
func NewEstimator(model string) *Estimator {
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = defaultEncoding
	}
	return &Estimator{encoding: encoding}
}

func (e *Estimator) init() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.initErr = fmt.Errorf("tokencount: init encoding %s: %w", e.encoding, err)
			return
		}
		e.enc = enc
	})
	return e.initErr
}

// Count returns the estimated token count of text. Returns 0 with an error
// if the encoding tables failed to load.
func (e *Estimator) Count(text string) (int, error) {
	if err := e.init(); err != nil {
		return 0, err
	}
	return len(e.enc.Encode(text, nil, nil)), nil
}

// CountMessages estimates a full chat payload's token count, approximating
// the per-message role/content framing overhead the same way
// BaSui01-agentflow's CountMessages does.
func (e *Estimator) CountMessages(roleContentPairs [][2]string) (int, error) {
	if err := e.init(); err != nil {
		return 0, err
	}
	total := 3
	for _, pair := range roleContentPairs {
		total += 4
		total += len(e.enc.Encode(pair[1], nil, nil))
		total += len(e.enc.Encode(pair[0], nil, nil))
	}
	return total, nil
}

// Diverges reports whether estimated and reported usage differ by more
// than pct (e.g. 0.2 for 20%), per SPEC_FULL.md §6.3's cross-check.
func Diverges(estimated, reported int, pct float64) bool {
	if reported == 0 {
		return estimated != 0
	}
	diff := estimated - reported
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(reported) > pct
}
