package parser

import (
	"reflect"
	"testing"

	"github.com/openfts/openfts/internal/indexer/tokenizer"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	tok, err := tokenizer.New(tokenizer.Config{})
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	return New(tok)
}

func TestParseNormalises(t *testing.T) {
	p := newTestParser(t)

	q := p.Parse("Penne with Arrabiata!", false)
	want := []Term{{Text: "penne"}, {Text: "arrabiata"}}
	if !reflect.DeepEqual(q.Terms, want) {
		t.Errorf("Terms = %v, want %v", q.Terms, want)
	}
	if q.Raw != "Penne with Arrabiata!" {
		t.Errorf("Raw = %q", q.Raw)
	}
}

func TestParsePrefixMode(t *testing.T) {
	p := newTestParser(t)

	q := p.Parse("pen spa", true)
	want := []Term{{Text: "pen", Prefix: true}, {Text: "spa", Prefix: true}}
	if !reflect.DeepEqual(q.Terms, want) {
		t.Errorf("Terms = %v, want %v", q.Terms, want)
	}
}

func TestParseEmptyAndWhitespace(t *testing.T) {
	p := newTestParser(t)

	for _, raw := range []string{"", "   ", "\t\n", "the and of"} {
		if q := p.Parse(raw, false); len(q.Terms) != 0 {
			t.Errorf("Parse(%q).Terms = %v, want empty", raw, q.Terms)
		}
	}
}

func TestParseDeduplicates(t *testing.T) {
	p := newTestParser(t)

	q := p.Parse("penne PENNE penne arrabiata", false)
	want := []Term{{Text: "penne"}, {Text: "arrabiata"}}
	if !reflect.DeepEqual(q.Terms, want) {
		t.Errorf("Terms = %v, want %v", q.Terms, want)
	}
}
