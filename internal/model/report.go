package model

import "time"

// SectionStatus marks whether a report section carries an assessment
type SectionStatus string

const (
	SectionDetermined    SectionStatus = "determined"     // Parsed from the synthesis
	SectionNotDetermined SectionStatus = "not-determined" // Missing or empty in the synthesis
	SectionAbsent        SectionStatus = "absent"         // Evidence for it could not be gathered
)

// NotDeterminedText is the placeholder shown for sections without an assessment.
const NotDeterminedText = "not determined"

// Section is one part of a credibility report
type Section struct {
	Status SectionStatus `json:"status"`
	Text   string        `json:"text"`
}

// NotDetermined returns an empty section placeholder.
func NotDetermined() Section {
	return Section{Status: SectionNotDetermined, Text: NotDeterminedText}
}

// Determined reports whether the section carries an assessment.
func (s Section) Determined() bool {
	return s.Status == SectionDetermined
}

// VerificationOutcome is the verdict for one claimed source
type VerificationOutcome string

const (
	OutcomeVerified          VerificationOutcome = "verified"
	OutcomePartiallyVerified VerificationOutcome = "partially-verified"
	OutcomeUnverified        VerificationOutcome = "unverified"
	OutcomeContradicted      VerificationOutcome = "contradicted"
	OutcomeNotDetermined     VerificationOutcome = "not-determined"
)

// SourceVerdict is the synthesized verdict on a claimed source
type SourceVerdict struct {
	Source  ClaimedSource       `json:"source"`
	Outcome VerificationOutcome `json:"outcome"`
	Note    string              `json:"note,omitempty"`
}

// Caveat codes describe why a report is incomplete.
const (
	CaveatNewsUnavailable     = "news_search_unavailable"
	CaveatOfficialUnavailable = "official_search_unavailable"
	CaveatSourceUnavailable   = "source_search_unavailable"
	CaveatSearchDegraded      = "search_degraded"
	CaveatExtractionSkipped   = "extraction_unavailable"
	CaveatKeywordsHeuristic   = "keywords_heuristic"
	CaveatTruncated           = "content_truncated"
	CaveatSynthesisPartial    = "synthesis_partial"
)

// Caveat marks a report as produced from partial evidence
type Caveat struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OracleInfo records which model produced the synthesis
type OracleInfo struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// CredibilityReport is the user-facing result of a check. A report is never
// modified after it is produced; Cached is set on the copy returned to the caller.
type CredibilityReport struct {
	Fingerprint string    `json:"fingerprint"`
	Kind        InputKind `json:"kind"`
	Origin      string    `json:"origin,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	Truthfulness          Section         `json:"truthfulness"`
	SourceReliability     Section         `json:"source_reliability"`
	Neutrality            Section         `json:"neutrality"`
	SourceVerification    []SourceVerdict `json:"source_verification"`
	OfficialCorroboration Section         `json:"official_corroboration"`
	NewsCorroboration     Section         `json:"news_corroboration"`
	Warnings              []string        `json:"warnings,omitempty"`
	Caveats               []Caveat        `json:"caveats,omitempty"`

	ClaimedSources []ClaimedSource `json:"claimed_sources"`
	Evidence       EvidenceSet     `json:"evidence"`
	Assessment     Score           `json:"assessment"` // Heuristic pre-assessment, never a verdict
	Oracle         OracleInfo      `json:"oracle"`

	Cached bool `json:"cached"`
}

// Incomplete reports whether the report carries any caveat.
func (r *CredibilityReport) Incomplete() bool {
	return len(r.Caveats) > 0
}

// HasCaveat reports whether a caveat with the given code is present.
func (r *CredibilityReport) HasCaveat(code string) bool {
	for _, c := range r.Caveats {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Score is the transparent heuristic pre-assessment
type Score struct {
	Index      int      `json:"index"`           // 0-100, higher means more signals of credibility
	Level      string   `json:"level"`           // "high", "medium", "low", "very-low"
	Confidence string   `json:"confidence"`      // "low", "medium", "high"
	Signals    []Signal `json:"signals"`         // Diagnostic signals with transparent data
	Flags      []string `json:"flags,omitempty"` // Red flags spotted in the language
}

// Signal is a diagnostic signal with its scoring inputs
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // Formula inputs and weights
}

// SignalType classifies a diagnostic signal
type SignalType string

const (
	SignalLanguage              SignalType = "language"               // Sensational or manipulative wording
	SignalSourceAttribution     SignalType = "source_attribution"     // Claimed sources and attribution cues
	SignalOfficialCorroboration SignalType = "official_corroboration" // Official-domain results
	SignalNewsCorroboration     SignalType = "news_corroboration"     // News-domain results and diversity
	SignalConsistency           SignalType = "consistency"            // Overlap between text and snippets
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
