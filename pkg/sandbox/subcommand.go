package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/transport"
)

// RunSubcommand is the entire body of the hidden `__sandbox_exec` child
// process: read the script from stdin, read full_results/catalog from
// the files the parent wrote, build a tenant API client from the
// filtered environment, interpret the script, and print the framed
// QUERY RESULTS block. Returns a process exit code.
func RunSubcommand() int {
	script, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox: reading script from stdin:", err)
		return 1
	}

	fullResults, err := loadFullResults(os.Getenv(envFullResultsPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox:", err)
		return 1
	}

	catalog, err := loadCatalog(os.Getenv(envCatalogPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox:", err)
		return 1
	}

	apiCfg := TenantAPIConfig{
		BaseURL:    os.Getenv(envTenantBaseURL),
		Token:      os.Getenv(envTenantToken),
		TenantHost: os.Getenv(envTenantHost),
		// Path allow-list and retry policy are deliberately permissive here:
		// this process already only exists because the parent validated the
		// script with C1 and the URL with C1's URLValidator is re-checked
		// per-call inside TenantAPIClient.Call regardless.
		AllowedPathPrefix: []string{"/"},
		RequestTimeout:    20 * time.Second,
		Retry:             transport.Config{MaxAttempts: 3, BaseWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
	}
	api := NewTenantAPIClient(apiCfg, catalog)

	interp := NewInterp(context.Background(), fullResults, api)
	value, err := interp.Run(string(script))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox:", err)
		return 1
	}

	framed, err := writeQueryResults(value)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sandbox:", err)
		return 1
	}
	if _, err := os.Stdout.Write(framed); err != nil {
		fmt.Fprintln(os.Stderr, "sandbox: writing output:", err)
		return 1
	}
	return 0
}

func loadFullResults(path string) (map[string]Frame, error) {
	if path == "" {
		return map[string]Frame{}, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading full_results file: %w", err)
	}
	var out map[string]Frame
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing full_results file: %w", err)
	}
	return out, nil
}

func loadCatalog(path string) (*models.Catalog, error) {
	if path == "" {
		return catalogFromSnapshot(catalogSnapshot{}), nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var snap catalogSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return catalogFromSnapshot(snap), nil
}
