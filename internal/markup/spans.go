package markup

import (
	"strings"

	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

// RenderSpans converts an ordered run of annotated spans into escaped
// MarkdownV2. Adjacent spans with identical annotation sets are concatenated
// before wrapping so the output never contains back-to-back delimiter pairs
// (`*bold**bold*` renders visibly broken; `*boldbold*` does not).
func RenderSpans(spans []page.Span) string {
	var b strings.Builder
	for i := 0; i < len(spans); {
		run := spans[i]
		text := run.Text
		j := i + 1
		for j < len(spans) && run.StyleEqual(spans[j]) {
			text += spans[j].Text
			j++
		}
		b.WriteString(renderRun(run, text))
		i = j
	}
	return b.String()
}

// renderRun escapes the merged text and applies delimiters in the fixed
// nesting order bold > italic > strikethrough > code > spoiler, link
// outermost. The fixed order keeps overlapping annotations unambiguous no
// matter how the source ordered them.
func renderRun(run page.Span, text string) string {
	if run.Mention != "" {
		// Destination identities are not guaranteed to resolve in the
		// target chat, so mentions degrade to the display name.
		return Escape(run.Mention, ContextPlain)
	}

	ctx := ContextPlain
	if run.URL != "" {
		ctx = ContextLinkLabel
	}
	out := Escape(text, ctx)

	if run.Spoiler {
		out = "||" + out + "||"
	}
	if run.Code {
		out = "`" + out + "`"
	}
	if run.Strikethrough {
		out = "~" + out + "~"
	}
	if run.Italic {
		out = "_" + out + "_"
	}
	if run.Bold {
		out = "*" + out + "*"
	}
	if run.URL != "" {
		out = "[" + out + "](" + Escape(run.URL, ContextURL) + ")"
	}
	return out
}
