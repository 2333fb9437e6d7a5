package markup

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

// indentUnit is prepended once per nesting level for nested list items.
// MarkdownV2 has no native nested-list construct; non-breaking spaces
// survive Telegram's whitespace collapsing.
const indentUnit = "    "

// dividerRule is the horizontal-rule replacement, escaped at render time.
const dividerRule = "------"

// Fragment is one rendered top-level block, kept only transiently during
// assembly.
type Fragment struct {
	Variant page.Variant
	Text    string
}

// RenderBlocks renders an ordered sibling run of blocks into fragments.
// Unsupported variants degrade to nothing and are reported in notes instead
// of failing the page.
func RenderBlocks(blocks []page.Block) ([]Fragment, []string) {
	return renderSiblings(blocks, 0)
}

func renderSiblings(blocks []page.Block, depth int) ([]Fragment, []string) {
	fragments := make([]Fragment, 0, len(blocks))
	var notes []string
	ordinal := 0
	for _, block := range blocks {
		if block.Variant == page.VariantNumbered {
			ordinal++
		} else {
			// Numbering restarts at 1 per contiguous run of numbered
			// siblings.
			ordinal = 0
		}
		text, blockNotes := renderBlock(block, depth, ordinal)
		notes = append(notes, blockNotes...)
		if text == "" {
			continue
		}
		fragments = append(fragments, Fragment{Variant: block.Variant, Text: text})
	}
	return fragments, notes
}

func renderBlock(block page.Block, depth int, ordinal int) (string, []string) {
	switch block.Variant {
	case page.VariantParagraph:
		return RenderSpans(block.Spans), nil

	case page.VariantHeading:
		// Telegram has no heading construct; all heading levels collapse
		// to bold.
		return "*" + RenderSpans(block.Spans) + "*", nil

	case page.VariantBulleted:
		line := indent(depth) + "\\- " + RenderSpans(block.Spans)
		return appendChildren(line, block.Children, depth+1)

	case page.VariantNumbered:
		line := fmt.Sprintf("%s%d\\. %s", indent(depth), ordinal, RenderSpans(block.Spans))
		return appendChildren(line, block.Children, depth+1)

	case page.VariantQuote:
		text, notes := appendChildren(RenderSpans(block.Spans), block.Children, depth)
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = "\\> " + line
		}
		return strings.Join(lines, "\n"), notes

	case page.VariantCallout:
		text := RenderSpans(block.Spans)
		if block.Emoji != "" {
			text = Escape(block.Emoji, ContextPlain) + " " + text
		}
		return text, nil

	case page.VariantToggle:
		// Lossy by necessity: a spoiler is the closest construct the
		// dialect offers for collapsible content.
		header := RenderSpans(block.Spans)
		body, notes := renderJoined(block.Children, depth)
		if body == "" {
			return "||" + header + "||", notes
		}
		return "||" + header + "\n" + body + "||", notes

	case page.VariantCode:
		content := rawText(block.Spans)
		return "```" + block.Language + "\n" + content + "\n```", nil

	case page.VariantDivider:
		return Escape(dividerRule, ContextPlain), nil

	case page.VariantImage:
		if block.ImageURL == "" {
			return "", nil
		}
		label := rawText(block.Spans)
		if label == "" {
			label = "image"
		}
		return "[" + Escape(label, ContextLinkLabel) + "](" + Escape(block.ImageURL, ContextURL) + ")", nil

	case page.VariantTable:
		return renderTable(block), nil

	default:
		note := fmt.Sprintf("unsupported block variant %q (block id %s)", block.Variant, block.ID)
		return "", []string{note}
	}
}

// appendChildren renders child blocks below a parent line, one per line.
func appendChildren(line string, children []page.Block, depth int) (string, []string) {
	if len(children) == 0 {
		return line, nil
	}
	body, notes := renderJoined(children, depth)
	if body == "" {
		return line, notes
	}
	return line + "\n" + body, notes
}

func renderJoined(blocks []page.Block, depth int) (string, []string) {
	fragments, notes := renderSiblings(blocks, depth)
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		parts = append(parts, fragment.Text)
	}
	return strings.Join(parts, "\n"), notes
}

// renderTable lays the cell grid out as fixed-width plain text inside one
// code fence. Inline styling inside cells is dropped: a plain grid is
// readable, a grid full of raw delimiter characters is not.
func renderTable(block page.Block) string {
	if len(block.Rows) == 0 {
		return ""
	}
	widths := make([]int, 0)
	cells := make([][]string, len(block.Rows))
	for r, row := range block.Rows {
		cells[r] = make([]string, len(row))
		for c, cell := range row {
			text := rawText(cell)
			cells[r][c] = text
			for len(widths) <= c {
				widths = append(widths, 0)
			}
			if len(text) > widths[c] {
				widths[c] = len(text)
			}
		}
	}
	lines := make([]string, len(cells))
	for r, row := range cells {
		padded := make([]string, len(row))
		for c, text := range row {
			padded[c] = text + strings.Repeat(" ", widths[c]-len(text))
		}
		lines[r] = strings.TrimRight(strings.Join(padded, " | "), " ")
	}
	return "```\n" + strings.Join(lines, "\n") + "\n```"
}

func rawText(spans []page.Span) string {
	var b strings.Builder
	for _, span := range spans {
		if span.Mention != "" {
			b.WriteString(span.Mention)
			continue
		}
		b.WriteString(span.Text)
	}
	return b.String()
}

func indent(depth int) string {
	return strings.Repeat(indentUnit, depth)
}
