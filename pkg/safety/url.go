package safety

import (
	"net/url"
	"regexp"
	"strings"
)

// suspiciousURLPatterns catches path-traversal and script-injection
// attempts embedded in an otherwise well-formed URL, carried over from
// network_security.py's NetworkSecurityValidator.validate_url.
var suspiciousURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.\./`),
	regexp.MustCompile(`(?i)%2e%2e%2f`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:`),
	regexp.MustCompile(`(?i)file:`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)vbscript`),
	regexp.MustCompile(`(?i)onload`),
	regexp.MustCompile(`(?i)onerror`),
}

// URLValidator enforces spec.md §4.1's URL policy: https scheme, host
// equal to the configured tenant, path under an allowlist prefix,
// reject localhost/shorteners/traversal.
type URLValidator struct {
	TenantHost        string
	AllowedPathPrefix []string
	BlockedHostSubstr []string
}

// NewURLValidator builds a URLValidator from resolved config.
func NewURLValidator(tenantHost string, allowedPaths, blockedHostSubstr []string) *URLValidator {
	return &URLValidator{TenantHost: strings.ToLower(tenantHost), AllowedPathPrefix: allowedPaths, BlockedHostSubstr: blockedHostSubstr}
}

// ValidateURL checks a candidate URL a generated script wants to contact.
func (v *URLValidator) ValidateURL(candidate string) Result {
	res := ok()

	if candidate == "" {
		res.add(RiskMedium, "empty URL")
		return res
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		res.add(RiskMedium, "URL parsing failed: "+err.Error())
		return res
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" {
		res.add(RiskHigh, "only https URLs are allowed, got scheme "+parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	for _, substr := range v.BlockedHostSubstr {
		if strings.Contains(host, strings.ToLower(substr)) {
			res.add(RiskHigh, "host on blocklist: "+host)
			break
		}
	}

	if v.TenantHost != "" && host != v.TenantHost {
		res.add(RiskCritical, "unauthorized host: "+host+", only "+v.TenantHost+" is allowed")
	}

	path := parsed.Path
	allowedPath := false
	for _, prefix := range v.AllowedPathPrefix {
		if strings.HasPrefix(path, prefix) {
			allowedPath = true
			break
		}
	}
	if !allowedPath {
		res.add(RiskHigh, "unauthorized API path: "+path)
	}

	for _, pattern := range suspiciousURLPatterns {
		if pattern.MatchString(candidate) {
			res.add(RiskCritical, "suspicious pattern in URL: "+pattern.String())
			break
		}
	}

	return res
}
