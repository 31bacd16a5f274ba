package audit

import (
	"fmt"
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces anything that must never reach a log line.
const RedactedPlaceholder = "[REDACTED]"

// Sensitive wraps a value that must never be logged: the plaintext credential
// and the full invite URL. Redaction is a property of the type, not of the
// logging boundary; a caller that genuinely needs the value calls Reveal at
// the response-serialization edge.
type Sensitive string

func (s Sensitive) String() string { return RedactedPlaceholder }

func (s Sensitive) GoString() string { return RedactedPlaceholder }

func (s Sensitive) MarshalJSON() ([]byte, error) {
	return []byte(`"` + RedactedPlaceholder + `"`), nil
}

// Reveal returns the wrapped value. Call it only where the value is meant to
// leave the process, never on a logging path.
func (s Sensitive) Reveal() string { return string(s) }

var sensitiveKeyFragments = []string{
	"token",
	"credential",
	"digest",
	"secret",
	"password",
	"authorization",
	"cookie",
	"inviteurl",
	"invite_url",
}

var (
	jwtPattern      = regexp.MustCompile(`^eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)
	tokenURLPattern = regexp.MustCompile(`(?i)([?&](?:token|invite|credential|key|code)=)[^&\s"]+`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	opaquePattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

func sensitiveKey(key string) bool {
	lowered := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

// Redact walks v and strips credential material by key name and by value
// shape, recursively through nested maps and slices. It returns a scrubbed
// copy; the input is not modified.
func Redact(v interface{}) interface{} {
	switch value := v.(type) {
	case Sensitive:
		return RedactedPlaceholder
	case map[string]interface{}:
		scrubbed := make(map[string]interface{}, len(value))
		for key, nested := range value {
			if sensitiveKey(key) {
				scrubbed[key] = RedactedPlaceholder
				continue
			}
			scrubbed[key] = Redact(nested)
		}
		return scrubbed
	case []interface{}:
		scrubbed := make([]interface{}, len(value))
		for i, nested := range value {
			scrubbed[i] = Redact(nested)
		}
		return scrubbed
	case []string:
		scrubbed := make([]interface{}, len(value))
		for i, nested := range value {
			scrubbed[i] = Redact(nested)
		}
		return scrubbed
	case string:
		return redactString(value)
	case fmt.Stringer:
		return redactString(value.String())
	default:
		return v
	}
}

func redactString(s string) string {
	if jwtPattern.MatchString(s) {
		return RedactedPlaceholder
	}
	if tokenURLPattern.MatchString(s) {
		return tokenURLPattern.ReplaceAllString(s, "${1}"+RedactedPlaceholder)
	}
	// ids are uuids and stay readable; anything else token-shaped is scrubbed
	if !uuidPattern.MatchString(s) && opaquePattern.MatchString(s) {
		return RedactedPlaceholder
	}
	return s
}
