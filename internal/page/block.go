package page

// Variant enumerates the supported content block types.
type Variant string

const (
	VariantParagraph   Variant = "paragraph"
	VariantHeading     Variant = "heading"
	VariantBulleted    Variant = "bulleted_list_item"
	VariantNumbered    Variant = "numbered_list_item"
	VariantToggle      Variant = "toggle"
	VariantQuote       Variant = "quote"
	VariantCallout     Variant = "callout"
	VariantCode        Variant = "code"
	VariantDivider     Variant = "divider"
	VariantImage       Variant = "image"
	VariantTable       Variant = "table"
	VariantUnsupported Variant = "unsupported"
)

// Span is a run of text carrying zero or more style annotations. A span with
// a non-empty URL renders as a link; a span with a non-empty Mention renders
// as the display name of the mentioned entity.
type Span struct {
	Text          string
	Bold          bool
	Italic        bool
	Strikethrough bool
	Code          bool
	Spoiler       bool
	URL           string
	Mention       string
}

// styleKey captures the annotation set of a span for merge comparison.
type styleKey struct {
	bold, italic, strike, code, spoiler bool
	url                                 string
}

// StyleEqual reports whether two spans carry an identical annotation set, so
// adjacent runs can be concatenated before wrapping. Mention spans never
// merge because their text is substituted.
func (s Span) StyleEqual(other Span) bool {
	if s.Mention != "" || other.Mention != "" {
		return false
	}
	a := styleKey{s.Bold, s.Italic, s.Strikethrough, s.Code, s.Spoiler, s.URL}
	b := styleKey{other.Bold, other.Italic, other.Strikethrough, other.Code, other.Spoiler, other.URL}
	return a == b
}

// Block is a typed node of page content. Container variants (toggle, list
// items, quote, callout) may nest arbitrarily deep through Children; the
// table variant never nests and carries its cells in Rows instead of Spans.
type Block struct {
	ID       string
	Variant  Variant
	Spans    []Span
	Children []Block

	// Language is set for code blocks.
	Language string
	// ImageURL is set for image blocks.
	ImageURL string
	// Emoji is set for callout blocks.
	Emoji string
	// Rows is the cell grid for table blocks, one span list per cell.
	Rows [][][]Span
}
