package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/fctr-io/okta-query-engine/pkg/safety"
	"github.com/fctr-io/okta-query-engine/pkg/transport"
)

// TenantAPIClient is the concrete APIClient an api_call(...) builtin
// invokes inside the sandboxed child process. It re-validates every
// candidate URL with the same safety.URLValidator the parent process
// uses (spec.md §8 invariant 5: "no outbound HTTP request to a host
// other than the configured tenant host") before ever dialing out —
// the generated script itself never builds a URL or touches a socket.
type TenantAPIClient struct {
	httpClient *http.Client
	validator  *safety.URLValidator
	catalog    *models.Catalog
	baseURL    string
	token      string
}

// TenantAPIConfig carries everything the child process needs to build its
// own tenant HTTP client — passed over the filtered environment rather
// than a live object, since self-re-exec starts a fresh process.
type TenantAPIConfig struct {
	BaseURL           string
	Token             string
	TenantHost        string
	AllowedPathPrefix []string
	BlockedHostSubstr []string
	RequestTimeout    time.Duration
	Retry             transport.Config
}

// NewTenantAPIClient builds a TenantAPIClient for one sandbox execution.
func NewTenantAPIClient(cfg TenantAPIConfig, catalog *models.Catalog) *TenantAPIClient {
	rt := transport.New(nil, cfg.Retry, nil)
	return &TenantAPIClient{
		httpClient: &http.Client{Transport: rt, Timeout: cfg.RequestTimeout},
		validator:  safety.NewURLValidator(cfg.TenantHost, cfg.AllowedPathPrefix, cfg.BlockedHostSubstr),
		catalog:    catalog,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
	}
}

// Call looks up (entity, operation) in the narrowed catalog, substitutes
// params into its URL pattern, validates the resulting URL with C1, and
// issues the request — returning the decoded JSON array as a Frame.
func (c *TenantAPIClient) Call(ctx context.Context, entity, operation string, params map[string]any) (Frame, error) {
	ep, ok := c.catalog.LookupEndpoint(entity, operation)
	if !ok {
		return nil, models.WrapError(models.ErrCodeCatalogMiss, fmt.Sprintf("no endpoint for (%s, %s)", entity, operation), nil)
	}

	path := ep.URLPattern
	for k, v := range params {
		path = strings.ReplaceAll(path, "{"+k+"}", fmt.Sprint(v))
	}
	fullURL := c.baseURL + path

	if res := c.validator.ValidateURL(fullURL); !res.OK {
		return nil, models.WrapError(models.ErrCodeUnsafeCode, "api_call produced a URL rejected by the safety validator: "+strings.Join(res.Violations, "; "), nil)
	}

	req, err := http.NewRequestWithContext(ctx, ep.HTTPMethod, fullURL, nil)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeSandboxFailed, "building tenant API request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "SSWS "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.WrapError(models.ErrCodeTransportError, "tenant API call failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, models.WrapError(models.ErrCodeTransportError, "reading tenant API response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, models.WrapError(models.ErrCodeTransportError, fmt.Sprintf("tenant API returned HTTP %d", resp.StatusCode), nil)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		var single map[string]any
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, models.WrapError(models.ErrCodeOutputUnparseable, "tenant API response was not a JSON array or object", err)
		}
		rows = []map[string]any{single}
	}
	return Frame(rows), nil
}
