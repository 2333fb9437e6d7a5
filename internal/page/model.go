package page

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidPageID indicates that a page identifier is empty, malformed
	// or exceeds storage bounds.
	ErrInvalidPageID = errors.New("page: invalid page id")
)

var pageIDPattern = regexp.MustCompile(`(?i)([0-9a-f]{32}|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

// PageID represents a validated, normalized (undashed hex) page identifier.
type PageID string

// NewPageID validates raw input and returns a normalized PageID.
func NewPageID(rawInput string) (PageID, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(rawInput), "-", "")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPageID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPageID, maxIdentifierLength)
	}
	return PageID(strings.ToLower(trimmed)), nil
}

// String returns the underlying string identifier.
func (id PageID) String() string {
	return string(id)
}

// ExtractPageID pulls a page identifier out of a page URL. It accepts both
// the undashed 32-hex form and the dashed UUID form and normalizes to the
// undashed form. Returns an empty string when the URL carries no identifier.
func ExtractPageID(url string) string {
	match := pageIDPattern.FindString(url)
	if match == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(match, "-", ""))
}

// Page carries the metadata of a mirrored source page. EditedAt is the
// revision marker the sync tracker compares between cycles.
type Page struct {
	ID       PageID
	Title    string
	EditedAt time.Time
}

// URL returns the canonical source link for the page.
func (p Page) URL() string {
	return "https://www.notion.so/" + p.ID.String()
}
