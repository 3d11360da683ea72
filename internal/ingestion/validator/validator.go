// Package validator checks ingestion requests before they touch the store.
// It enforces field count and size limits and returns per-field error
// details.
package validator

import (
	"fmt"
	"strings"

	"github.com/openfts/openfts/internal/ingestion"
)

const (
	maxFields       = 32
	maxFieldName    = 64
	maxFieldSize    = 65536   // 64 KiB per field
	maxDocumentSize = 1048576 // 1 MiB across all fields
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the fields map of an ingestion request. At
// least one field must carry non-whitespace text; the indexer enforces the
// same rule, so rejecting here keeps invalid documents out of the pipeline
// entirely.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	if len(req.Fields) == 0 {
		errs["fields"] = "at least one field is required"
		return &ValidationError{Fields: errs}
	}
	if len(req.Fields) > maxFields {
		errs["fields"] = fmt.Sprintf("at most %d fields allowed, got %d", maxFields, len(req.Fields))
	}

	total := 0
	hasText := false
	for name, text := range req.Fields {
		if name == "" {
			errs["fields"] = "field names must not be empty"
			continue
		}
		if len(name) > maxFieldName {
			errs[name] = fmt.Sprintf("field name must be at most %d characters", maxFieldName)
			continue
		}
		if len(text) > maxFieldSize {
			errs[name] = fmt.Sprintf("field must be at most %d bytes, got %d", maxFieldSize, len(text))
		}
		if strings.TrimSpace(text) != "" {
			hasText = true
		}
		total += len(text)
	}
	if !hasText {
		errs["fields"] = "at least one field must contain text"
	}
	if total > maxDocumentSize {
		errs["fields"] = fmt.Sprintf("document must be at most %d bytes, got %d", maxDocumentSize, total)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
