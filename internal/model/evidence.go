package model

import "time"

// EvidenceGroup identifies which search group produced a result
type EvidenceGroup string

const (
	GroupOfficial EvidenceGroup = "official" // Allow-listed official domains
	GroupNews     EvidenceGroup = "news"     // Allow-listed news domains
	GroupSource   EvidenceGroup = "source"   // One query per claimed source
)

// SearchEvidence is one corroborating search result
type SearchEvidence struct {
	Group       EvidenceGroup `json:"group"`
	Title       string        `json:"title"`
	Snippet     string        `json:"snippet,omitempty"`
	URL         string        `json:"url"`
	Host        string        `json:"host,omitempty"`
	Recency     string        `json:"recency,omitempty"`      // Search window label, e.g. "7d"
	PublishedAt *time.Time    `json:"published_at,omitempty"` // Best-effort, parsed from the snippet
	Source      string        `json:"source,omitempty"`       // Claimed source name (source group only)
}

// SourceEvidence holds the results gathered for one claimed source
type SourceEvidence struct {
	Source  ClaimedSource    `json:"source"`
	Results []SearchEvidence `json:"results"`
}

// GroupStatus is the terminal state of a search group
type GroupStatus string

const (
	GroupOK     GroupStatus = "ok"     // At least one result
	GroupEmpty  GroupStatus = "empty"  // Query succeeded with no results
	GroupFailed GroupStatus = "failed" // Query failed after retries
)

// GroupOutcome records how a search group finished
type GroupOutcome struct {
	Status   GroupStatus `json:"status"`
	Error    string      `json:"error,omitempty"` // Sanitized failure reason
	Attempts int         `json:"attempts"`
	Results  int         `json:"results"`
}

// EvidenceSet is the aggregated, deduplicated output of the search stage
type EvidenceSet struct {
	Keywords []string                `json:"keywords,omitempty"`
	Official []SearchEvidence        `json:"official"`
	News     []SearchEvidence        `json:"news"`
	BySource []SourceEvidence        `json:"by_source"`
	Outcomes map[string]GroupOutcome `json:"outcomes,omitempty"` // Keyed by group ("official", "news", "source:<name>")
	Degraded bool                    `json:"degraded"`           // Every group failed
}

// OutcomeKey returns the Outcomes key for a per-source group.
func OutcomeKey(group EvidenceGroup, sourceName string) string {
	if group != GroupSource {
		return string(group)
	}
	return string(GroupSource) + ":" + sourceName
}

// Failed reports whether the named group failed.
func (e EvidenceSet) Failed(key string) bool {
	o, ok := e.Outcomes[key]
	return ok && o.Status == GroupFailed
}

// Total counts results across all groups.
func (e EvidenceSet) Total() int {
	n := len(e.Official) + len(e.News)
	for _, s := range e.BySource {
		n += len(s.Results)
	}
	return n
}
