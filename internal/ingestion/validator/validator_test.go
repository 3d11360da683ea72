package validator

import (
	"strings"
	"testing"

	"github.com/openfts/openfts/internal/ingestion"
)

func TestValidRequest(t *testing.T) {
	req := &ingestion.IngestRequest{Fields: map[string]string{
		"title": "Penne with Arrabiata",
		"body":  "A spicy tomato classic.",
	}}
	if err := ValidateIngestRequest(req); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestEmptyFieldsMap(t *testing.T) {
	err := ValidateIngestRequest(&ingestion.IngestRequest{})
	if err == nil {
		t.Fatal("empty fields map accepted")
	}
	var verr *ValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if _, ok := verr.Fields["fields"]; !ok {
		t.Errorf("missing fields-level message: %v", verr.Fields)
	}
}

func TestWhitespaceOnlyFields(t *testing.T) {
	req := &ingestion.IngestRequest{Fields: map[string]string{"title": "   ", "body": "\t\n"}}
	if err := ValidateIngestRequest(req); err == nil {
		t.Error("whitespace-only document accepted")
	}
}

func TestOversizedField(t *testing.T) {
	req := &ingestion.IngestRequest{Fields: map[string]string{
		"title": "ok",
		"body":  strings.Repeat("x", maxFieldSize+1),
	}}
	err := ValidateIngestRequest(req)
	if err == nil {
		t.Fatal("oversized field accepted")
	}
	var verr *ValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if _, ok := verr.Fields["body"]; !ok {
		t.Errorf("missing body message: %v", verr.Fields)
	}
}

func TestTooManyFields(t *testing.T) {
	fields := make(map[string]string, maxFields+1)
	for i := 0; i <= maxFields; i++ {
		fields[strings.Repeat("f", i+1)] = "text"
	}
	if err := ValidateIngestRequest(&ingestion.IngestRequest{Fields: fields}); err == nil {
		t.Error("request with too many fields accepted")
	}
}

func asValidationError(err error, target **ValidationError) bool {
	v, ok := err.(*ValidationError)
	if ok {
		*target = v
	}
	return ok
}
