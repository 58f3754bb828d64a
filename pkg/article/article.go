// Package article defines the normalized scrape result for one Wikipedia page
// and the id/title normalization shared by every other package.
package article

import (
	"net/url"
	"strings"
	"unicode"
)

// LinkRef is an outgoing reference discovered on a scraped page.
// Title is the display title, not a resolved id.
type LinkRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Record is the normalized scrape result for one article.
type Record struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Summary string    `json:"summary"`
	Image   *string   `json:"image"`
	Links   []LinkRef `json:"links"`
}

// Valid reports whether the record carries a usable id and title.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.ID) != "" && strings.TrimSpace(r.Title) != ""
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Links = CloneLinks(r.Links)
	if r.Image != nil {
		img := *r.Image
		out.Image = &img
	}
	return out
}

// CloneLinks copies a link slice. A nil input stays nil.
func CloneLinks(links []LinkRef) []LinkRef {
	if links == nil {
		return nil
	}
	out := make([]LinkRef, len(links))
	copy(out, links)
	return out
}

const wikiSegment = "/wiki/"

// IDFromURL derives an article id from a Wikipedia URL: the path segment after
// /wiki/, without query or fragment, percent-decoded, spaces as underscores.
// Returns "" when the URL has no /wiki/ segment.
func IDFromURL(raw string) string {
	idx := strings.Index(raw, wikiSegment)
	if idx < 0 {
		return ""
	}
	seg := raw[idx+len(wikiSegment):]
	if cut := strings.IndexAny(seg, "?#"); cut >= 0 {
		seg = seg[:cut]
	}
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	return IDFromTitle(seg)
}

// IDFromTitle turns a display title into an id by collapsing every run of
// whitespace into a single underscore.
func IDFromTitle(title string) string {
	return strings.Join(strings.Fields(title), "_")
}

// TitleFromID is the inverse of IDFromTitle for display purposes.
func TitleFromID(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}

// TitleKey normalizes a link title for cross-reference lookups.
// "Foo_Bar", "foo bar" and "  Foo   Bar " share one key.
func TitleKey(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	space := false
	for _, r := range strings.TrimSpace(title) {
		if r == '_' || unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// URLForID builds the canonical English Wikipedia URL for an id.
func URLForID(id string) string {
	return "https://en.wikipedia.org/wiki/" + id
}
