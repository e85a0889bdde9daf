package pipeline

import (
	"context"
	"net/url"
	"strings"

	"github.com/ppiankov/courtcrawl/internal/discover"
)

// SearchOracle answers existence checks by submitting the warrant search form.
// A case number exists when the response body contains the marker string
// (a link to the case details page). Answers are never cached.
type SearchOracle struct {
	fetcher   *Fetcher
	searchURL string
	formField string
	marker    string
}

// NewSearchOracle creates an oracle posting formField to searchURL
func NewSearchOracle(fetcher *Fetcher, searchURL, formField, marker string) *SearchOracle {
	return &SearchOracle{
		fetcher:   fetcher,
		searchURL: searchURL,
		formField: formField,
		marker:    marker,
	}
}

// Exists implements discover.Oracle. Transient failures are retried by the
// fetcher; anything left is returned as an error.
func (o *SearchOracle) Exists(ctx context.Context, key discover.CaseKey) (bool, error) {
	result, err := o.fetcher.PostFormWithRetry(ctx, o.searchURL, url.Values{o.formField: {key.String()}})
	if err != nil {
		return false, err
	}
	return strings.Contains(result.HTML, o.marker), nil
}
