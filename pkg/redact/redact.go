// Package redact masks sensitive material (tokens, passwords, key
// material) in free-form text and parameter maps before it is logged or
// durably stored. Masking is applied at write time only; nothing in this
// package unmasks.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Mask is the replacement string substituted for matched sensitive values.
const Mask = "***MASKED***"

// pattern pairs a compiled regex with its replacement text.
type pattern struct {
	regex       *regexp.Regexp
	replacement string
}

// defaultPatterns covers the credential shapes that show up in command
// lines, environment dumps, and process output.
var defaultPatterns = []pattern{
	// Token assignments and bearer headers
	{regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9_\-.]{8,}`), "token=" + Mask},
	{regexp.MustCompile(`(?i)Bearer\s+[a-zA-Z0-9_\-.]+`), "Bearer " + Mask},

	// Password assignments
	{regexp.MustCompile(`(?i)password["\s:=]+[^\s"]{3,}`), "password=" + Mask},
	{regexp.MustCompile(`(?i)passwd["\s:=]+[^\s"]{3,}`), "passwd=" + Mask},

	// Secrets and API keys
	{regexp.MustCompile(`(?i)secret["\s:=]+[^\s"]{3,}`), "secret=" + Mask},
	{regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[^\s"]{8,}`), "api_key=" + Mask},

	// Authorization headers
	{regexp.MustCompile(`(?i)Authorization:\s*[^\n]+`), "Authorization: " + Mask},

	// AWS credentials
	{regexp.MustCompile(`(?i)aws_secret_access_key[=\s]+[^\s]+`), "aws_secret_access_key=" + Mask},
	{regexp.MustCompile(`(?i)aws_access_key_id[=\s]+[^\s]+`), "aws_access_key_id=" + Mask},

	// Private key blocks
	{regexp.MustCompile(`(?is)-----BEGIN[^-]*PRIVATE KEY-----.*?-----END[^-]*PRIVATE KEY-----`), Mask},

	// Well-known key prefixes
	{regexp.MustCompile(`\bsk-[a-zA-Z0-9]{20,}\b`), Mask},
	{regexp.MustCompile(`\bAIza[a-zA-Z0-9_-]{20,}\b`), Mask},
}

// sensitiveKeys are parameter-map key substrings whose values are masked
// wholesale regardless of content.
var sensitiveKeys = []string{
	"password", "passwd",
	"secret", "token",
	"api_key", "apikey",
	"access_key", "private_key", "ssh_key",
	"authorization",
}

// MaskString masks all sensitive fragments in text.
func MaskString(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, p := range defaultPatterns {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

// ContainsSensitive reports whether text matches any sensitive pattern.
func ContainsSensitive(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range defaultPatterns {
		if p.regex.MatchString(text) {
			return true
		}
	}
	return false
}

// IsSensitiveKey reports whether a parameter key names a credential field.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskMap returns a masked copy of a parameter map. Values under sensitive
// key names are replaced entirely; string values under other keys are
// pattern-masked. Nested maps are masked recursively. The input map is not
// modified.
func MaskMap(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	masked := make(map[string]any, len(params))
	for key, value := range params {
		if IsSensitiveKey(key) {
			masked[key] = Mask
			continue
		}

		switch v := value.(type) {
		case string:
			masked[key] = MaskString(v)
		case map[string]any:
			masked[key] = MaskMap(v)
		case []string:
			items := make([]string, len(v))
			for i, s := range v {
				items[i] = MaskString(s)
			}
			masked[key] = items
		case fmt.Stringer:
			masked[key] = MaskString(v.String())
		default:
			masked[key] = value
		}
	}
	return masked
}
