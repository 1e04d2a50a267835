package rpcserver

import (
	"regexp"
	"strings"

	"github.com/automatosx/automatosx/pkg/apperrors"
)

// agentNamePattern matches the agent-name shape accepted anywhere in the
// tool surface: alphanumerics, underscore, and hyphen, 1-100 characters.
var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

func validateAgentName(name string) error {
	if !agentNamePattern.MatchString(name) {
		return apperrors.New(apperrors.CodeInvalidAgentName, "agent name must match ^[A-Za-z0-9_-]{1,100}$").
			WithContext("name", name)
	}
	return nil
}

// validateText rejects null bytes and raw control characters (other than
// newline/tab/carriage-return) in a free-form text field.
func validateText(field, value string) error {
	if strings.ContainsRune(value, 0) {
		return apperrors.New(apperrors.CodeInvalidInput, field+" must not contain a null byte").WithContext("field", field)
	}
	for _, r := range value {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			return apperrors.New(apperrors.CodeInvalidInput, field+" contains a disallowed control character").WithContext("field", field)
		}
	}
	return nil
}

// validatePath rejects the empty string, null bytes, and any parent-directory
// traversal segment in a filesystem path field (memory export/import).
func validatePath(field, value string) error {
	if value == "" {
		return apperrors.New(apperrors.CodeInvalidInput, field+" must not be empty").WithContext("field", field)
	}
	if err := validateText(field, value); err != nil {
		return err
	}
	for _, segment := range strings.Split(filepathSlashify(value), "/") {
		if segment == ".." {
			return apperrors.New(apperrors.CodePathTraversal, field+" must not contain a parent-directory segment").WithContext("field", field)
		}
	}
	return nil
}

// filepathSlashify normalizes backslashes so the traversal check above sees
// a single separator style regardless of how the caller wrote the path.
func filepathSlashify(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
