package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/courtcrawl/internal/model"
)

// SearchExtractor extracts rows from the warrant number search results page
type SearchExtractor struct{}

// NewSearchExtractor creates a new search results extractor
func NewSearchExtractor() *SearchExtractor {
	return &SearchExtractor{}
}

// Extract returns one hit per results table row. A page without a results
// table yields no hits and no error.
func (e *SearchExtractor) Extract(htmlContent string, pageURL string) ([]model.SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var hits []model.SearchHit
	var rowErr error

	doc.Find("table.warrant-number-results tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.ChildrenFiltered("td")
		link := cells.Eq(0).ChildrenFiltered("a").First()

		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			rowErr = fmt.Errorf("%w: results row %d has no case link", ErrUnexpectedLayout, i)
			return false
		}

		hits = append(hits, model.SearchHit{
			CaseNumber: strings.TrimSpace(link.Text()),
			FirstName:  strings.TrimSpace(cells.Eq(1).ChildrenFiltered("a").First().Text()),
			LastName:   strings.TrimSpace(cells.Eq(2).ChildrenFiltered("a").First().Text()),
			DetailsURL: resolveURL(base, href),
		})
		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}
	return hits, nil
}
