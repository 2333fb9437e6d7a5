// Package markup renders page block trees into Telegram MarkdownV2.
package markup

import "strings"

// EscapeContext selects which character set Escape protects.
type EscapeContext int

const (
	// ContextPlain escapes the full MarkdownV2 reserved set.
	ContextPlain EscapeContext = iota
	// ContextLinkLabel escapes the full reserved set inside a link label.
	ContextLinkLabel
	// ContextURL escapes only what breaks link-target syntax.
	ContextURL
)

// reserved is the MarkdownV2 special-character set. Leading digits followed
// by a dot and leading hyphens are covered by '.' and '-' being in the set,
// so list markers at line start never start accidental markup.
const reserved = "_*[]()~`>#+-=|{}.!\\"

// urlReserved is the character set that breaks a (...) link target.
const urlReserved = ")\\"

// Escape backslash-escapes text for MarkdownV2 in a single left-to-right
// pass. Inserted escapes are never re-scanned. Empty input yields empty
// output.
func Escape(text string, ctx EscapeContext) string {
	if text == "" {
		return ""
	}
	set := reserved
	if ctx == ContextURL {
		set = urlReserved
	}
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if r < 0x80 && strings.ContainsRune(set, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
