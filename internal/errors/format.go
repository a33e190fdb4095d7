package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// Plain errors are shown as internal errors.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ne, ok := as(err)
	if !ok {
		ne = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ne.Message))
	if ne.Cause != nil && ne.Cause.Error() != ne.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %s\n", ne.Cause.Error()))
	}
	if ne.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ne.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ne.Code))
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
// Details are emitted in key order so log lines are stable.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	ne, ok := as(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", ne.Code),
		slog.String("error", ne.Error()),
		slog.String("category", string(ne.Category)),
		slog.Bool("retryable", ne.Retryable),
	}

	keys := make([]string, 0, len(ne.Details))
	for k := range ne.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, ne.Details[k]))
	}
	return attrs
}
