package model

// Claim is an attributed statement found in the submitted text
type Claim struct {
	Text      string `json:"text"`                // The sentence carrying the attribution
	Heuristic string `json:"heuristic,omitempty"` // Which cue matched (e.g., "cue:according to")
	Sentence  int    `json:"sentence,omitempty"`  // Sentence index in the text (0-based)
}

// SourceCategory is the closed set of claimed-source kinds
type SourceCategory string

const (
	CategoryOfficialSite         SourceCategory = "official-site"         // Government or institutional website
	CategoryNewsAgency           SourceCategory = "news-agency"           // Wire service or news outlet
	CategoryOfficialPerson       SourceCategory = "official-person"       // Named official or spokesperson
	CategoryOfficialDocument     SourceCategory = "official-document"     // Decree, report, statement
	CategoryOfficialOrganization SourceCategory = "official-organization" // Ministry, government, agency
)

// Categories lists every valid SourceCategory in display order.
var Categories = []SourceCategory{
	CategoryOfficialSite,
	CategoryNewsAgency,
	CategoryOfficialPerson,
	CategoryOfficialDocument,
	CategoryOfficialOrganization,
}

// Valid reports whether c is one of the known categories.
func (c SourceCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ClaimedSource is a source the text itself cites as the origin of its claims
type ClaimedSource struct {
	Name     string         `json:"name"`               // As named in the text
	Category SourceCategory `json:"category"`           // Classified kind
	Citation string         `json:"citation,omitempty"` // Text span attributed to the source
}
