package model

import "time"

// CaseRecord is one scraped criminal case, emitted as a JSON line.
// Field names match the downstream CSV report columns.
type CaseRecord struct {
	CaseNumber         string    `json:"case_number"`                    // e.g. "2024-A-117"
	FirstName          string    `json:"first_name"`                     // From the search results table
	LastName           string    `json:"last_name"`                      // From the search results table
	FullName           string    `json:"full_name"`                      // From the case page defendant link
	CaseURL            string    `json:"case_url"`                       // Final URL of the case page
	CriminalHistoryURL string    `json:"criminal_history_url,omitempty"` // Absolute defendant history link
	CaseStatus         string    `json:"case_status"`
	DefendantStatus    string    `json:"defendant_status"`
	FeesOwed           *string   `json:"fees_owed"`     // Raw amount such as "$1,234.50", nil if none owed
	DateOfBirth        string    `json:"date_of_birth"` // MM/DD/YYYY as shown on the portal
	OCA                *string   `json:"oca"`           // Originating case agency number, nil if absent
	Charges            []Charge  `json:"charges"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

// Charge is one charged or cited offense on a case page.
type Charge struct {
	Charge      string  `json:"charge"`
	Count       *int    `json:"count"`       // nil when the portal shows "Count" with no number
	Amended     *string `json:"amended"`     // nil when not amended
	Convicted   *string `json:"convicted"`   // Conviction offense text, nil if none
	Disposition *string `json:"disposition"` // nil when blank
}

// SearchHit is one row of the warrant number search results table.
type SearchHit struct {
	CaseNumber string `json:"case_number"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	DetailsURL string `json:"details_url"` // Absolute URL of the case details page
}

// FetchMeta contains HTTP metadata from a fetched page
type FetchMeta struct {
	StatusCode   int               `json:"status_code"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}
