package markup

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

func testPage(t *testing.T) page.Page {
	t.Helper()
	id, err := page.NewPageID("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return page.Page{ID: id, Title: "Release Notes"}
}

func TestAssembleJoinsBlocksWithBlankLines(t *testing.T) {
	doc := Assemble(testPage(t), []page.Block{
		{Variant: page.VariantParagraph, Spans: spansOf("one")},
		{Variant: page.VariantParagraph, Spans: spansOf("two")},
	})
	if doc.Truncated {
		t.Fatalf("unexpected truncation")
	}
	if !strings.Contains(doc.Body, "one\n\ntwo") {
		t.Fatalf("expected blank line between blocks, got %q", doc.Body)
	}
	if !strings.HasPrefix(doc.Body, "*Release Notes*") {
		t.Fatalf("expected bold title line, got %q", doc.Body)
	}
}

func TestAssembleKeepsListItemsAdjoining(t *testing.T) {
	doc := Assemble(testPage(t), []page.Block{
		{Variant: page.VariantBulleted, Spans: spansOf("a")},
		{Variant: page.VariantBulleted, Spans: spansOf("b")},
	})
	if !strings.Contains(doc.Body, "\\- a\n\\- b") {
		t.Fatalf("expected adjoining list items, got %q", doc.Body)
	}
}

func TestAssembleAppendsProvenanceTrailer(t *testing.T) {
	p := testPage(t)
	doc := Assemble(p, nil)
	trailer := "[Source](" + p.URL() + ")"
	if !strings.HasSuffix(doc.Body, trailer) {
		t.Fatalf("expected trailer %q, got %q", trailer, doc.Body)
	}
}

func TestAssembleTruncatesAtBlockBoundary(t *testing.T) {
	big := strings.Repeat("x", 1500)
	doc := Assemble(testPage(t), []page.Block{
		{Variant: page.VariantParagraph, Spans: spansOf(big)},
		{Variant: page.VariantParagraph, Spans: spansOf(big)},
		{Variant: page.VariantParagraph, Spans: spansOf(big)},
		{Variant: page.VariantParagraph, Spans: spansOf("marker-tail")},
	})
	if !doc.Truncated {
		t.Fatalf("expected truncation to be reported")
	}
	if utf8.RuneCountInString(doc.Body) > MessageLimit {
		t.Fatalf("body exceeds ceiling: %d", utf8.RuneCountInString(doc.Body))
	}
	if strings.Contains(doc.Body, "marker-tail") {
		t.Fatalf("fragment past the ceiling should be dropped entirely")
	}
	// Whole fragments are dropped, so the kept body still ends with a
	// complete block followed by the trailer.
	if !strings.Contains(doc.Body, big+"\n\n"+big) {
		t.Fatalf("expected two complete fragments to survive")
	}
	if !strings.HasSuffix(doc.Body, ")") {
		t.Fatalf("trailer must survive truncation, got tail %q", doc.Body[len(doc.Body)-20:])
	}
	found := false
	for _, note := range doc.Notes {
		if strings.Contains(note, "truncated") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected truncation note, got %v", doc.Notes)
	}
}

func TestAssembleNeverSplitsEscapeSequences(t *testing.T) {
	// A fragment built entirely of escaped characters: if truncation ever
	// cut inside a fragment, a trailing lone backslash could appear.
	escaped := strings.Repeat(".", 900)
	var blocks []page.Block
	for i := 0; i < 6; i++ {
		blocks = append(blocks, page.Block{Variant: page.VariantParagraph, Spans: spansOf(escaped)})
	}
	doc := Assemble(testPage(t), blocks)
	if !doc.Truncated {
		t.Fatalf("expected truncation")
	}
	if strings.Contains(doc.Body, "\\\n") || strings.HasSuffix(strings.TrimSuffix(doc.Body, ")"), "\\") {
		t.Fatalf("truncation split an escape sequence")
	}
}

func TestAssembleEmptyPage(t *testing.T) {
	doc := Assemble(testPage(t), nil)
	if doc.Truncated {
		t.Fatalf("unexpected truncation")
	}
	if !strings.HasPrefix(doc.Body, "*Release Notes*") {
		t.Fatalf("unexpected body: %q", doc.Body)
	}
}

func TestAssembleCollectsUnsupportedNotes(t *testing.T) {
	doc := Assemble(testPage(t), []page.Block{
		{ID: "blk-9", Variant: page.VariantUnsupported},
	})
	if len(doc.Notes) != 1 || !strings.Contains(doc.Notes[0], "blk-9") {
		t.Fatalf("expected unsupported-block note, got %v", doc.Notes)
	}
}
