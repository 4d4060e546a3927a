// internal/model/link.go
package model

// LinkType classifies a discovered legal document link.
type LinkType string

const (
	LinkTypePolicy LinkType = "policy"
	LinkTypeTerms  LinkType = "terms"
)

// DocumentLink is one candidate legal document reported by the page-side
// collector. Hrefs are not guaranteed unique across a page, so batch results
// are correlated by position, never by href.
type DocumentLink struct {
	Href      string   `json:"href"`
	Text      string   `json:"text,omitempty"`
	Type      LinkType `json:"type"`
	PageTitle string   `json:"pageTitle,omitempty"`
}
