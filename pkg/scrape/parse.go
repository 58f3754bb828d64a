package scrape

import (
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/kittclouds/wikigraph/pkg/article"
)

// BaseURL prefixes the site-relative /wiki/ links found on a page.
const BaseURL = "https://en.wikipedia.org"

var (
	selTitle      = cascadia.MustCompile("#firstHeading")
	selParagraphs = cascadia.MustCompile(".mw-parser-output > p")
	selLinks      = cascadia.MustCompile(".mw-parser-output > p a")
	selOGImage    = cascadia.MustCompile(`meta[property="og:image"]`)
	selInfobox    = cascadia.MustCompile(".infobox img")
	selFigure     = cascadia.MustCompile(`figure[typeof="mw:File/Thumb"] img`)
)

type page struct {
	title   string
	summary string
	image   *string
	links   []article.LinkRef
}

func parsePage(r io.Reader, maxLinks, summaryLimit int) (page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return page{}, err
	}

	var p page
	if n := selTitle.MatchFirst(doc); n != nil {
		p.title = strings.TrimSpace(textOf(n))
	}

	for _, n := range selParagraphs.MatchAll(doc) {
		if text := strings.TrimSpace(textOf(n)); text != "" {
			p.summary = truncate(text, summaryLimit)
			break
		}
	}

	p.image = findImage(doc)
	p.links = findLinks(doc, maxLinks)
	return p, nil
}

// findImage prefers og:image, then the first infobox image, then the first
// thumbnail figure. Protocol-relative URLs get an https scheme.
func findImage(doc *html.Node) *string {
	var src string
	if n := selOGImage.MatchFirst(doc); n != nil {
		src = attr(n, "content")
	}
	if src == "" {
		if n := selInfobox.MatchFirst(doc); n != nil {
			src = attr(n, "src")
		}
	}
	if src == "" {
		if n := selFigure.MatchFirst(doc); n != nil {
			src = attr(n, "src")
		}
	}
	if src == "" {
		return nil
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	return &src
}

// findLinks collects up to max article links from the body paragraphs,
// skipping namespaced pages, section anchors and repeats.
func findLinks(doc *html.Node, max int) []article.LinkRef {
	links := make([]article.LinkRef, 0, max)
	for _, n := range selLinks.MatchAll(doc) {
		if len(links) >= max {
			break
		}
		href := attr(n, "href")
		if !strings.HasPrefix(href, "/wiki/") || strings.ContainsAny(href, ":#") {
			continue
		}
		title := attr(n, "title")
		if title == "" {
			title = textOf(n)
		}
		if title == "" {
			continue
		}
		full := BaseURL + href
		dup := false
		for _, l := range links {
			if l.URL == full {
				dup = true
				break
			}
		}
		if !dup {
			links = append(links, article.LinkRef{Title: title, URL: full})
		}
	}
	return links
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
