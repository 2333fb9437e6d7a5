package markup

import (
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

// MessageLimit is the destination payload ceiling in characters.
const MessageLimit = 4096

// Document is the assembled MarkdownV2 rendering of one page.
type Document struct {
	Body      string
	Truncated bool
	Notes     []string
}

// Assemble renders a page's top-level blocks into a single message body: a
// bold title line, blank-line separated block fragments (consecutive list
// items stay on adjoining lines), and a provenance trailer linking back to
// the source page. Bodies over MessageLimit are truncated at the last block
// boundary that fits; truncation never lands inside an escape sequence or
// delimiter pair because whole fragments are dropped.
func Assemble(p page.Page, blocks []page.Block) Document {
	fragments, notes := RenderBlocks(blocks)

	title := "*" + Escape(p.Title, ContextPlain) + "*"
	trailer := "\n\n[Source](" + Escape(p.URL(), ContextURL) + ")"
	budget := MessageLimit - utf8.RuneCountInString(trailer)

	var body strings.Builder
	body.WriteString(title)
	used := utf8.RuneCountInString(title)
	truncated := false

	var prev *Fragment
	for i := range fragments {
		fragment := fragments[i]
		sep := separator(prev, fragment)
		cost := utf8.RuneCountInString(sep) + utf8.RuneCountInString(fragment.Text)
		if used+cost > budget {
			truncated = true
			break
		}
		body.WriteString(sep)
		body.WriteString(fragment.Text)
		used += cost
		prev = &fragments[i]
	}
	body.WriteString(trailer)

	if truncated {
		notes = append(notes, "body exceeded payload ceiling, truncated at block boundary")
	}
	return Document{Body: body.String(), Truncated: truncated, Notes: notes}
}

// separator keeps contiguous list items on adjoining lines and puts exactly
// one blank line between all other top-level blocks.
func separator(prev *Fragment, next Fragment) string {
	if prev == nil {
		return "\n\n"
	}
	if isListItem(prev.Variant) && isListItem(next.Variant) {
		return "\n"
	}
	return "\n\n"
}

func isListItem(v page.Variant) bool {
	return v == page.VariantBulleted || v == page.VariantNumbered
}
