package notion

import (
	"github.com/MarcoPoloResearchLab/pagepin/internal/page"
)

// apiRichText is one rich_text entry of a block payload.
type apiRichText struct {
	Type        string `json:"type"`
	PlainText   string `json:"plain_text"`
	Href        string `json:"href"`
	Annotations struct {
		Bold          bool `json:"bold"`
		Italic        bool `json:"italic"`
		Strikethrough bool `json:"strikethrough"`
		Underline     bool `json:"underline"`
		Code          bool `json:"code"`
	} `json:"annotations"`
}

type apiRichTextHolder struct {
	RichText []apiRichText `json:"rich_text"`
}

type apiCode struct {
	RichText []apiRichText `json:"rich_text"`
	Language string        `json:"language"`
}

type apiCallout struct {
	RichText []apiRichText `json:"rich_text"`
	Icon     struct {
		Emoji string `json:"emoji"`
	} `json:"icon"`
}

type apiFile struct {
	URL string `json:"url"`
}

type apiImage struct {
	Type     string        `json:"type"`
	File     *apiFile      `json:"file"`
	External *apiFile      `json:"external"`
	Caption  []apiRichText `json:"caption"`
}

type apiTableRow struct {
	Cells [][]apiRichText `json:"cells"`
}

type apiChildPage struct {
	Title string `json:"title"`
}

type apiChildDatabase struct {
	Title string `json:"title"`
}

// apiBlock is the union shape of a block-children result entry. Only the
// member matching Type is populated.
type apiBlock struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`

	Paragraph     *apiRichTextHolder `json:"paragraph"`
	Heading1      *apiRichTextHolder `json:"heading_1"`
	Heading2      *apiRichTextHolder `json:"heading_2"`
	Heading3      *apiRichTextHolder `json:"heading_3"`
	Bulleted      *apiRichTextHolder `json:"bulleted_list_item"`
	Numbered      *apiRichTextHolder `json:"numbered_list_item"`
	Toggle        *apiRichTextHolder `json:"toggle"`
	Quote         *apiRichTextHolder `json:"quote"`
	Callout       *apiCallout        `json:"callout"`
	Code          *apiCode           `json:"code"`
	Image         *apiImage          `json:"image"`
	TableRow      *apiTableRow       `json:"table_row"`
	ChildPage     *apiChildPage      `json:"child_page"`
	ChildDatabase *apiChildDatabase  `json:"child_database"`
}

// parseSpans converts rich_text entries to spans. Notion's underline has no
// MarkdownV2 counterpart and is dropped; mention entries substitute their
// display text.
func parseSpans(entries []apiRichText) []page.Span {
	spans := make([]page.Span, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == "mention" {
			spans = append(spans, page.Span{Mention: entry.PlainText})
			continue
		}
		spans = append(spans, page.Span{
			Text:          entry.PlainText,
			Bold:          entry.Annotations.Bold,
			Italic:        entry.Annotations.Italic,
			Strikethrough: entry.Annotations.Strikethrough,
			Code:          entry.Annotations.Code,
			URL:           entry.Href,
		})
	}
	return spans
}

// parseBlock maps one API block onto the internal model. Children of
// container blocks are resolved by the caller, which owns the extra fetches.
func parseBlock(raw apiBlock) page.Block {
	block := page.Block{ID: raw.ID}
	switch raw.Type {
	case "paragraph":
		block.Variant = page.VariantParagraph
		block.Spans = holderSpans(raw.Paragraph)
	case "heading_1", "heading_2", "heading_3":
		block.Variant = page.VariantHeading
		switch raw.Type {
		case "heading_1":
			block.Spans = holderSpans(raw.Heading1)
		case "heading_2":
			block.Spans = holderSpans(raw.Heading2)
		default:
			block.Spans = holderSpans(raw.Heading3)
		}
	case "bulleted_list_item":
		block.Variant = page.VariantBulleted
		block.Spans = holderSpans(raw.Bulleted)
	case "numbered_list_item":
		block.Variant = page.VariantNumbered
		block.Spans = holderSpans(raw.Numbered)
	case "toggle":
		block.Variant = page.VariantToggle
		block.Spans = holderSpans(raw.Toggle)
	case "quote":
		block.Variant = page.VariantQuote
		block.Spans = holderSpans(raw.Quote)
	case "callout":
		block.Variant = page.VariantCallout
		if raw.Callout != nil {
			block.Spans = parseSpans(raw.Callout.RichText)
			block.Emoji = raw.Callout.Icon.Emoji
		}
	case "code":
		block.Variant = page.VariantCode
		if raw.Code != nil {
			block.Spans = parseSpans(raw.Code.RichText)
			block.Language = raw.Code.Language
		}
	case "divider":
		block.Variant = page.VariantDivider
	case "image":
		block.Variant = page.VariantImage
		if raw.Image != nil {
			block.Spans = parseSpans(raw.Image.Caption)
			if raw.Image.File != nil {
				block.ImageURL = raw.Image.File.URL
			} else if raw.Image.External != nil {
				block.ImageURL = raw.Image.External.URL
			}
		}
	case "table":
		block.Variant = page.VariantTable
	default:
		block.Variant = page.VariantUnsupported
	}
	return block
}

func holderSpans(holder *apiRichTextHolder) []page.Span {
	if holder == nil {
		return nil
	}
	return parseSpans(holder.RichText)
}

// containerVariant reports whether a variant's children belong in the block
// tree. Tables are handled separately because their children are rows, not
// nested blocks.
func containerVariant(v page.Variant) bool {
	switch v {
	case page.VariantToggle, page.VariantBulleted, page.VariantNumbered, page.VariantQuote, page.VariantCallout:
		return true
	}
	return false
}
