// Package score computes the heuristic pre-assessment that accompanies every
// synthesis. It is transparent by construction: each signal carries the
// inputs and the formula that produced it.
package score

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/validate"
)

// Component weights. They sum to 1.
const (
	weightAttribution = 0.25
	weightOfficial    = 0.25
	weightNews        = 0.20
	weightConsistency = 0.15
	weightLanguage    = 0.15
)

// Levels by index.
const (
	LevelHigh    = "high"
	LevelMedium  = "medium"
	LevelLow     = "low"
	LevelVeryLow = "very-low"
)

// Language flag codes.
const (
	FlagSensational = "sensational_language"
	FlagEmotional   = "emotional_manipulation"
	FlagUnverified  = "unverified_claims"
	FlagConspiracy  = "conspiracy_indicators"
	FlagExclamation = "excessive_exclamation"
	FlagShouting    = "all_caps"
)

type patternGroup struct {
	flag    string
	phrases []string // lower-case, matched on word boundaries
}

var warningPatterns = []patternGroup{
	{FlagSensational, []string{
		"shocking", "breaking", "exclusive", "urgent", "alert", "everyone must know",
		"müdhiş", "şok edici", "fövqəladə", "təcili", "hamı bilməlidir",
	}},
	{FlagEmotional, []string{
		"you won't believe", "doctors hate", "secret that", "they don't want you to know",
		"inanmayacaqsınız", "həkimlər nifrət edir", "gizli sirr", "bilməyinizi istəmirlər",
	}},
	{FlagUnverified, []string{
		"according to anonymous", "insider sources", "leaked information", "exclusive sources",
		"anonim mənbəyə görə", "daxili mənbələr", "sızan məlumat", "ekskluziv mənbələr",
	}},
	{FlagConspiracy, []string{
		"cover-up", "hidden truth", "they control", "wake up people",
		"ört-basdır", "gizli həqiqət", "onlar idarə edir", "oyanın insanlar",
	}},
}

var balanceWords = []string{"however", "although", "but", "lakin", "ancaq", "amma"}

// trustedHosts are outlets whose presence in the evidence lends weight to news
// corroboration.
var trustedHosts = []string{
	"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk", "dw.com", "cnn.com",
	"who.int", "gov.az", "president.az", "mfa.gov.az", "azernews.az", "trend.az",
}

var (
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	percentPattern = regexp.MustCompile(`\d+\s?[%‰]`)
	moneyPattern   = regexp.MustCompile(`(?i)[$€₼]\s?\d+|\d+\s*(dollar|manat|azn|euro|usd)`)
	datePattern    = regexp.MustCompile(`\b\d{1,2}[./]\d{1,2}[./]\d{2,4}\b`)
	quotePattern   = regexp.MustCompile(`["“„«][^"”“«»]{3,}["”»]`)
)

// Scorer computes the pre-assessment
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Assess scores text against the claimed sources, gathered evidence and
// attribution sentences found in it.
func (s *Scorer) Assess(text string, sources []model.ClaimedSource, evidence model.EvidenceSet, attributions []model.Claim) model.Score {
	language, languageSignal, flags := s.assessLanguage(text)
	attribution, attributionSignal := s.assessAttribution(text, sources, attributions)
	official, officialSignal := s.assessOfficial(evidence)
	news, newsSignal := s.assessNews(evidence)
	consistency, consistencySignal := s.assessConsistency(text, evidence)

	weighted := attribution*weightAttribution +
		official*weightOfficial +
		news*weightNews +
		consistency*weightConsistency +
		language*weightLanguage
	index := clampIndex(int(math.Round(weighted * 10)))

	return model.Score{
		Index:      index,
		Level:      Level(index),
		Confidence: s.determineConfidence(evidence),
		Signals: []model.Signal{
			attributionSignal,
			officialSignal,
			newsSignal,
			consistencySignal,
			languageSignal,
		},
		Flags: flags,
	}
}

// Level maps an index to its credibility level.
func Level(index int) string {
	switch {
	case index >= 75:
		return LevelHigh
	case index >= 50:
		return LevelMedium
	case index >= 25:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// assessLanguage starts high and deducts for manipulative wording (0-10)
func (s *Scorer) assessLanguage(text string) (float64, model.Signal, []string) {
	lower := strings.ToLower(text)
	score := 8.0

	var flags []string
	matches := make(map[string]int)
	for _, group := range warningPatterns {
		n := 0
		for _, phrase := range group.phrases {
			n += countPhrase(lower, phrase)
		}
		if group.flag == FlagSensational {
			n += strings.Count(text, "!!")
		}
		if n > 0 {
			matches[group.flag] = n
			flags = append(flags, group.flag)
			score -= math.Min(float64(n)*0.5, 2.0)
		}
	}

	exclamations := strings.Count(text, "!")
	if exclamations > 3 {
		score -= math.Min(float64(exclamations)*0.2, 1.5)
		flags = append(flags, FlagExclamation)
	}

	caps := countShouting(text)
	if caps > 2 {
		score -= math.Min(float64(caps)*0.1, 1.0)
		flags = append(flags, FlagShouting)
	}

	balanced := false
	for _, w := range balanceWords {
		if countPhrase(lower, w) > 0 {
			balanced = true
			break
		}
	}
	if balanced {
		score += 0.3
	}
	score = clamp10(score)

	severity := model.SeverityInfo
	if score < 5 {
		severity = model.SeverityCritical
	} else if len(flags) > 0 {
		severity = model.SeverityWarning
	}

	description := "No sensational or manipulative wording detected"
	if len(flags) > 0 {
		description = fmt.Sprintf("Language red flags: %s", strings.Join(flags, ", "))
	}

	return score, model.Signal{
		Type:        model.SignalLanguage,
		Severity:    severity,
		Description: description,
		Data: map[string]any{
			"pattern_matches": matches,
			"exclamations":    exclamations,
			"caps_words":      caps,
			"balanced":        balanced,
			"score":           round1(score),
			"weight":          weightLanguage,
			"formula":         "8 - sum(min(matches*0.5, 2)) - min(exclamations*0.2, 1.5) - min(caps*0.1, 1) + 0.3*balanced",
		},
	}, flags
}

// assessAttribution rewards named sources, attribution cues and concrete
// specifics (0-10)
func (s *Scorer) assessAttribution(text string, sources []model.ClaimedSource, attributions []model.Claim) (float64, model.Signal) {
	official := 0
	for _, src := range sources {
		if src.Category != model.CategoryNewsAgency {
			official++
		}
	}

	specifics := 0
	for _, p := range []*regexp.Regexp{yearPattern, percentPattern, moneyPattern, datePattern, quotePattern} {
		if p.MatchString(text) {
			specifics++
		}
	}

	var score float64
	if len(sources) == 0 && len(attributions) == 0 {
		score = 3.0 + float64(specifics)*0.3
	} else {
		score = 5.0 +
			math.Min(float64(len(sources)), 2.0) +
			math.Min(float64(official), 1.0) +
			math.Min(float64(len(attributions))*0.5, 1.5) +
			float64(specifics)*0.3
	}
	score = clamp10(score)

	severity := model.SeverityInfo
	description := fmt.Sprintf("%d claimed source(s), %d attributed sentence(s)", len(sources), len(attributions))
	if len(sources) == 0 && len(attributions) == 0 {
		severity = model.SeverityWarning
		description = "The text names no source for its claims"
	}

	return score, model.Signal{
		Type:        model.SignalSourceAttribution,
		Severity:    severity,
		Description: description,
		Data: map[string]any{
			"sources":          len(sources),
			"official_sources": official,
			"attributions":     len(attributions),
			"specifics":        specifics,
			"score":            round1(score),
			"weight":           weightAttribution,
			"formula":          "5 + min(sources, 2) + min(official_sources, 1) + min(attributions*0.5, 1.5) + specifics*0.3 (3 + specifics*0.3 when unattributed)",
		},
	}
}

// assessOfficial scores results from official domains (0-10)
func (s *Scorer) assessOfficial(evidence model.EvidenceSet) (float64, model.Signal) {
	key := model.OutcomeKey(model.GroupOfficial, "")
	if evidence.Failed(key) {
		return 5.0, unavailableSignal(model.SignalOfficialCorroboration, "Official search failed; corroboration unknown", weightOfficial)
	}

	n := len(evidence.Official)
	score := 3.0
	severity := model.SeverityWarning
	description := "No matching results on official domains"
	if n > 0 {
		score = 6.0 + math.Min(float64(n)*0.5, 2.0)
		severity = model.SeverityInfo
		description = fmt.Sprintf("%d result(s) on official domains", n)
	}
	score = clamp10(score)

	return score, model.Signal{
		Type:        model.SignalOfficialCorroboration,
		Severity:    severity,
		Description: description,
		Data: map[string]any{
			"results": n,
			"score":   round1(score),
			"weight":  weightOfficial,
			"formula": "6 + min(results*0.5, 2), or 3 with no results",
		},
	}
}

// assessNews scores news results by volume, trusted outlets and host
// diversity (0-10)
func (s *Scorer) assessNews(evidence model.EvidenceSet) (float64, model.Signal) {
	key := model.OutcomeKey(model.GroupNews, "")
	if evidence.Failed(key) {
		return 5.0, unavailableSignal(model.SignalNewsCorroboration, "News search failed; corroboration unknown", weightNews)
	}

	results := append([]model.SearchEvidence(nil), evidence.News...)
	for _, src := range evidence.BySource {
		results = append(results, src.Results...)
	}

	hosts := make(map[string]bool)
	trusted := 0
	for _, r := range results {
		host := r.Host
		if host == "" {
			host = validate.Host(r.URL)
		}
		if host != "" {
			hosts[host] = true
		}
		if isTrusted(host) {
			trusted++
		}
	}

	n := len(evidence.News)
	score := 3.0
	severity := model.SeverityWarning
	description := "No matching results on news domains"
	if n > 0 || len(results) > 0 {
		score = 5.0 +
			math.Min(float64(n)*0.3, 1.5) +
			math.Min(float64(trusted)*0.3, 1.5)
		if len(hosts) > 1 {
			score += math.Min(float64(len(hosts))*0.2, 1.0)
		}
		severity = model.SeverityInfo
		description = fmt.Sprintf("%d news result(s) across %d host(s), %d from trusted outlets", n, len(hosts), trusted)
	}
	score = clamp10(score)

	return score, model.Signal{
		Type:        model.SignalNewsCorroboration,
		Severity:    severity,
		Description: description,
		Data: map[string]any{
			"news_results":  n,
			"total_results": len(results),
			"unique_hosts":  len(hosts),
			"trusted":       trusted,
			"score":         round1(score),
			"weight":        weightNews,
			"formula":       "5 + min(news*0.3, 1.5) + min(trusted*0.3, 1.5) + min(hosts*0.2, 1) when hosts > 1, or 3 with no results",
		},
	}
}

// assessConsistency counts snippets that share vocabulary with the text (0-10)
func (s *Scorer) assessConsistency(text string, evidence model.EvidenceSet) (float64, model.Signal) {
	vocab := tokenSet(text)

	var snippets []string
	for _, r := range evidence.Official {
		snippets = append(snippets, r.Title+" "+r.Snippet)
	}
	for _, r := range evidence.News {
		snippets = append(snippets, r.Title+" "+r.Snippet)
	}
	for _, src := range evidence.BySource {
		for _, r := range src.Results {
			snippets = append(snippets, r.Title+" "+r.Snippet)
		}
	}

	if len(snippets) == 0 {
		return 4.0, model.Signal{
			Type:        model.SignalConsistency,
			Severity:    model.SeverityWarning,
			Description: "No search snippets to compare against",
			Data: map[string]any{
				"snippets": 0,
				"score":    4.0,
				"weight":   weightConsistency,
			},
		}
	}

	consistent := 0
	for _, snippet := range snippets {
		if overlap(vocab, tokenSet(snippet)) >= 4 {
			consistent++
		}
	}
	score := clamp10(4.0 + math.Min(float64(consistent), 8)*0.75)

	severity := model.SeverityInfo
	if consistent == 0 {
		severity = model.SeverityWarning
	}

	return score, model.Signal{
		Type:        model.SignalConsistency,
		Severity:    severity,
		Description: fmt.Sprintf("%d/%d snippet(s) share key terms with the text", consistent, len(snippets)),
		Data: map[string]any{
			"snippets":   len(snippets),
			"consistent": consistent,
			"score":      round1(score),
			"weight":     weightConsistency,
			"formula":    "4 + min(consistent, 8) * 0.75, consistent = snippets sharing >= 4 terms",
		},
	}
}

// determineConfidence reflects how much evidence the index rests on
func (s *Scorer) determineConfidence(evidence model.EvidenceSet) string {
	if evidence.Degraded {
		return "low"
	}

	failed := 0
	for _, o := range evidence.Outcomes {
		if o.Status == model.GroupFailed {
			failed++
		}
	}

	total := evidence.Total()
	switch {
	case total < 3:
		return "low"
	case total >= 6 && failed == 0:
		return "high"
	default:
		return "medium"
	}
}

func unavailableSignal(t model.SignalType, description string, weight float64) model.Signal {
	return model.Signal{
		Type:        t,
		Severity:    model.SeverityWarning,
		Description: description,
		Data: map[string]any{
			"status":  string(model.GroupFailed),
			"score":   5.0,
			"weight":  weight,
			"formula": "neutral 5 when the search group failed",
		},
	}
}

// countPhrase counts occurrences of phrase in lower that sit on word
// boundaries. Go's \b only understands ASCII, which breaks on Azerbaijani
// letters, hence the manual check.
func countPhrase(lower, phrase string) int {
	n := 0
	for start := 0; start < len(lower); {
		i := strings.Index(lower[start:], phrase)
		if i < 0 {
			break
		}
		i += start
		end := i + len(phrase)
		if boundaryBefore(lower, i) && boundaryAfter(lower, end) {
			n++
		}
		start = end
	}
	return n
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// countShouting counts words of three or more letters written entirely in
// upper case.
func countShouting(text string) int {
	n := 0
	for _, word := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		letters := 0
		upper := true
		for _, r := range word {
			letters++
			if !unicode.IsUpper(r) {
				upper = false
				break
			}
		}
		if upper && letters >= 3 {
			n++
		}
	}
	return n
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWordRune(r) }) {
		if len([]rune(tok)) >= 4 {
			set[tok] = true
		}
	}
	return set
}

func overlap(a, b map[string]bool) int {
	n := 0
	for tok := range b {
		if a[tok] {
			n++
		}
	}
	return n
}

func isTrusted(host string) bool {
	for _, t := range trustedHosts {
		if host == t || strings.HasSuffix(host, "."+t) {
			return true
		}
	}
	return false
}

func clamp10(v float64) float64 {
	return math.Max(0, math.Min(v, 10))
}

func clampIndex(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
