package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/courierai/courier/pkg/models"
)

// SecurityViolationError is the typed error executors raise when a request
// trips a security guard. The dispatcher counts these against the session.
type SecurityViolationError struct {
	Kind   string // e.g. "secret-access", "destructive-command"
	Detail string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("BLOCKED: %s", e.Detail)
}

// sensitiveTokens narrows the textual fallback: an error string counts as a
// violation only when it contains "BLOCKED" and one of these.
var sensitiveTokens = []string{
	"secret", "env", "token", "key", "password", "credential",
	"injection", "/etc/passwd", "/etc/shadow", "proc/self",
	"base64", "exfiltration", "fork bomb", "rm -rf",
}

// IsViolation reports whether an executor error is a security violation.
// Typed SecurityViolationError values always count; otherwise the textual
// heuristic applies, which covers outputs from the opaque sandbox executor.
// Privilege or capability errors do not match either path.
func IsViolation(err error) bool {
	if err == nil {
		return false
	}
	var sv *SecurityViolationError
	if errors.As(err, &sv) {
		return true
	}
	return violationText(err.Error())
}

// ResultIsViolation applies the classifier to a finished ToolResult.
func ResultIsViolation(res *models.ToolResult) bool {
	if res == nil || res.Success {
		return false
	}
	return violationText(res.Error)
}

func violationText(msg string) bool {
	if !strings.Contains(msg, "BLOCKED") {
		return false
	}
	lower := strings.ToLower(msg)
	for _, token := range sensitiveTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
