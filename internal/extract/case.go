package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/courtcrawl/internal/model"
	"golang.org/x/net/html"
)

const (
	chargesHeading = "Charged/Cited Offense"

	// Each charge renders as this many text nodes under the charges list.
	chargeFieldCount = 12
)

var (
	dobPattern   = regexp.MustCompile(`Date of Birth: ([\d/]*)`)
	ocaPattern   = regexp.MustCompile(`OCA Number:</span> (\d*)`)
	countPattern = regexp.MustCompile(`Count (\d*)`)
)

// CaseExtractor extracts case details from a case page
type CaseExtractor struct{}

// NewCaseExtractor creates a new case page extractor
func NewCaseExtractor() *CaseExtractor {
	return &CaseExtractor{}
}

// Extract builds a CaseRecord from the case page. The search hit supplies the
// case number and names shown in the results table.
func (e *CaseExtractor) Extract(htmlContent string, pageURL string, hit model.SearchHit) (*model.CaseRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse case page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	record := &model.CaseRecord{
		CaseNumber: hit.CaseNumber,
		FirstName:  hit.FirstName,
		LastName:   hit.LastName,
		CaseURL:    pageURL,
		Charges:    []model.Charge{},
	}

	nameLink := doc.Find("a.defendant-name-link").First()
	if nameLink.Length() == 0 {
		return nil, fmt.Errorf("%w: no defendant name link", ErrUnexpectedLayout)
	}
	record.FullName = firstDescendantText(nameLink.Get(0))
	if href, ok := nameLink.Attr("href"); ok {
		record.CriminalHistoryURL = resolveURL(base, href)
	}

	var status []string
	doc.Find("span.case-status").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			status = append(status, textNodes(n)...)
		}
	})
	if len(status) < 2 {
		return nil, fmt.Errorf("%w: case status has %d fields", ErrUnexpectedLayout, len(status))
	}
	record.CaseStatus = strings.TrimPrefix(status[0], "Case Status: ")
	record.DefendantStatus = strings.TrimPrefix(status[1], "Defendant Status: ")
	if len(status) >= 4 && status[2] != "" {
		amount := status[3]
		record.FeesOwed = &amount
	}

	if title, err := goquery.OuterHtml(doc.Find("div.results-title").First()); err == nil {
		if m := dobPattern.FindStringSubmatch(title); m != nil {
			record.DateOfBirth = m[1]
		}
		if m := ocaPattern.FindStringSubmatch(title); m != nil {
			oca := m[1]
			record.OCA = &oca
		}
	}

	record.Charges = extractCharges(doc)

	return record, nil
}

// extractCharges reads the charge list. The list is a flat run of text nodes,
// chargeFieldCount per charge. Any other shape yields no charges; the layout
// is not documented and guessing would attach fields to the wrong charge.
func extractCharges(doc *goquery.Document) []model.Charge {
	lists := doc.Find("ul").FilterFunction(func(_ int, ul *goquery.Selection) bool {
		found := false
		ul.ChildrenFiltered("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
			if normalizeSpace(firstText(li.Get(0))) == chargesHeading {
				found = true
				return false
			}
			return true
		})
		return found
	})

	var fields []string
	lists.Each(func(_ int, ul *goquery.Selection) {
		for _, n := range ul.Nodes {
			fields = append(fields, liTextNodes(n)...)
		}
	})

	charges := []model.Charge{}
	if len(fields) == 0 || len(fields)%chargeFieldCount != 0 {
		return charges
	}

	for i := 0; i < len(fields); i += chargeFieldCount {
		charges = append(charges, parseCharge(fields[i:i+chargeFieldCount]))
	}
	return charges
}

// liTextNodes returns the text nodes of ul that sit inside an li
func liTextNodes(ul *html.Node) []string {
	var out []string

	var walk func(n *html.Node, inLI bool)
	walk = func(n *html.Node, inLI bool) {
		if n.Type == html.TextNode {
			if inLI {
				out = append(out, strings.TrimSpace(n.Data))
			}
			return
		}
		if n.Type == html.ElementNode && n.Data == "li" {
			inLI = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLI)
		}
	}

	walk(ul, false)
	return out
}

// parseCharge maps one block of positional fields to a charge.
// Positions: 2 charge, 4 count, 7 amended, 9 convicted, 11 disposition.
func parseCharge(f []string) model.Charge {
	charge := model.Charge{Charge: f[2]}

	if m := countPattern.FindStringSubmatch(f[4]); m != nil && m[1] != "" {
		if n, err := strconv.Atoi(m[1]); err == nil {
			charge.Count = &n
		}
	}

	charge.Amended = labeled(f[7], "Amended:")
	charge.Convicted = labeled(f[9], "Convicted:")
	charge.Disposition = labeled(f[11], "Disposition:")

	return charge
}

// labeled strips label from a "Label: value" field; a bare label means no value
func labeled(field, label string) *string {
	if field == label {
		return nil
	}
	v := strings.TrimSpace(strings.TrimPrefix(field, label))
	return &v
}
