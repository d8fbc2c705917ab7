package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrScanAmbiguity = errors.New("ambiguous primary file")
	ErrParse         = errors.New("parse failure")
	ErrProbe         = errors.New("probe failure")
	ErrExternalTool  = errors.New("external tool error")
	ErrConflict      = errors.New("concurrent edit conflict")
	ErrMissingSource = errors.New("missing source")
	ErrStorage       = errors.New("storage error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the marker carried by err. It is used as a
// metric label and persisted with item results.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrScanAmbiguity):
		return "ambiguity"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrProbe):
		return "probe"
	case errors.Is(err, ErrExternalTool):
		return "tool"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrMissingSource):
		return "missing_source"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}

// Fatal reports whether err should stop a whole batch rather than a single item.
func Fatal(err error) bool {
	return errors.Is(err, ErrStorage)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "media pipeline failure"
	}
	return strings.Join(parts, ": ")
}
