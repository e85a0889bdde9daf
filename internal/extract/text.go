package extract

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrUnexpectedLayout is returned when a page lacks an element the extractor relies on
var ErrUnexpectedLayout = errors.New("unexpected page layout")

// textNodes returns every text node under n, trimmed, in document order.
// Whitespace-only nodes are kept as empty strings because the case page
// fields are positional.
func textNodes(n *html.Node) []string {
	var out []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return out
}

// normalizeSpace collapses runs of whitespace like XPath normalize-space()
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstText returns the first direct text child of n, trimmed
func firstText(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return strings.TrimSpace(c.Data)
		}
	}
	return ""
}

// firstDescendantText returns the first non-empty text node under n, trimmed
func firstDescendantText(n *html.Node) string {
	for _, text := range textNodes(n) {
		if text != "" {
			return text
		}
	}
	return ""
}

// resolveURL resolves a relative URL against a base URL
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
