package masking

import (
	"encoding/json"
	"strings"
)

// MaskedValue replaces a masked field's value in both the structural and
// regex masking paths.
const MaskedValue = "[MASKED_CREDENTIAL]"

// sensitiveKeys are Okta JSON field names known to carry live secret
// material: factor shared secrets (TOTP/HOTP seed), password hashes and
// plaintext set during admin-initiated resets, recovery/activation
// tokens, and API keys embedded in application/authorization-server
// settings.
var sensitiveKeys = map[string]bool{
	"password":       true,
	"sharedSecret":   true,
	"secret":         true,
	"apiToken":       true,
	"client_secret":  true,
	"clientSecret":   true,
	"access_token":   true,
	"accessToken":    true,
	"refresh_token":  true,
	"refreshToken":   true,
	"recoveryAnswer": true,
	"privateKey":     true,
}

// OktaCredentialMasker walks a parsed JSON document (object or array,
// arbitrarily nested — Okta list responses are JSON arrays of objects)
// and replaces the value of any key in sensitiveKeys, regardless of
// depth. Unlike the teacher's KubernetesSecretMasker, there's no "kind"
// discriminator to gate on first — Okta responses don't carry one — so
// this masker applies the key-name check uniformly at every level.
type OktaCredentialMasker struct{}

// Name identifies this masker.
func (m *OktaCredentialMasker) Name() string { return "okta_credential" }

// AppliesTo is a cheap substring pre-check before the real JSON parse.
func (m *OktaCredentialMasker) AppliesTo(data string) bool {
	for key := range sensitiveKeys {
		if strings.Contains(data, key) {
			return true
		}
	}
	return false
}

// Mask parses data as JSON (object or array) and masks any sensitive
// field at any depth. Returns data unchanged if it doesn't parse as JSON
// or re-serialization fails.
func (m *OktaCredentialMasker) Mask(data string) string {
	var doc any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return data
	}

	masked := maskValue(doc)

	out, err := json.Marshal(masked)
	if err != nil {
		return data
	}
	return string(out)
}

func maskValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if sensitiveKeys[k] {
				val[k] = MaskedValue
				continue
			}
			val[k] = maskValue(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = maskValue(child)
		}
		return val
	default:
		return v
	}
}
