// Package extract asks the reasoning oracle which sources a text cites and
// which keywords best describe it, and finds attribution cues locally.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/model"
)

// ErrAnalysisUnavailable is returned when the oracle cannot be reached
// after retries.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

const sourceSystemPrompt = `You identify the sources a news text cites as the origin of its claims. ` +
	`You never judge whether the text is true. You answer only in the requested format.`

const sourcePromptTemplate = `Find every source the following news text cites or attributes information to.
A source can be one of:
- official site (e.g. gov.az, who.int)
- news agency (e.g. Reuters, APA, Trend)
- official person (e.g. the President, a minister, a spokesperson)
- official document (e.g. a decree, order, statement, report)
- official organization (e.g. the government, a ministry, the UN)

The text may be in Azerbaijani, English or Russian. Keep source names as written in the text.

News text:
"""
%s
"""

For each source answer with exactly these three lines, and leave a blank line between sources:
Source name: <name of the source>
Source type: <official site | news agency | official person | official document | official organization>
Citation: <the words the text uses to cite this source>

If the text cites no sources, answer: None`

// SourceExtractor finds the sources a text claims for itself
type SourceExtractor struct {
	oracle    llm.Completer
	timeout   time.Duration // Per oracle call
	maxTokens int
	log       logger.Logger
}

// NewSourceExtractor creates an extractor. timeout bounds each oracle call.
func NewSourceExtractor(oracle llm.Completer, timeout time.Duration, log logger.Logger) *SourceExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SourceExtractor{oracle: oracle, timeout: timeout, maxTokens: 1000, log: logger.OrNop(log)}
}

// Extract returns the claimed sources in the order the oracle listed them.
// Entries that cannot be parsed are dropped; an empty result is not an error.
func (e *SourceExtractor) Extract(ctx context.Context, text string) ([]model.ClaimedSource, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.oracle.Complete(callCtx, llm.CompletionRequest{
		System:    sourceSystemPrompt,
		Prompt:    fmt.Sprintf(sourcePromptTemplate, text),
		MaxTokens: e.maxTokens,
		Purpose:   "extract",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: source extraction: %w", ErrAnalysisUnavailable, err)
	}

	sources, dropped := ParseSources(resp.Text)
	if dropped > 0 {
		e.log.Debug("dropped unparseable source entries", logger.Int("dropped", dropped))
	}
	return sources, nil
}

type sourceField int

const (
	fieldNone sourceField = iota
	fieldName
	fieldCategory
	fieldCitation
)

var fieldLabels = map[string]sourceField{
	"source name":     fieldName,
	"name":            fieldName,
	"source":          fieldName,
	"mənbə adı":       fieldName,
	"mənbə":           fieldName,
	"source type":     fieldCategory,
	"source category": fieldCategory,
	"type":            fieldCategory,
	"category":        fieldCategory,
	"mənbə növü":      fieldCategory,
	"növ":             fieldCategory,
	"citation":        fieldCitation,
	"citation text":   fieldCitation,
	"quote":           fieldCitation,
	"reference":       fieldCitation,
	"istinad mətni":   fieldCitation,
	"istinad":         fieldCitation,
}

// categoryPhrases is checked in order, so longer phrases come first.
var categoryPhrases = []struct {
	phrase   string
	category model.SourceCategory
}{
	{"official organization", model.CategoryOfficialOrganization},
	{"official organisation", model.CategoryOfficialOrganization},
	{"official document", model.CategoryOfficialDocument},
	{"official person", model.CategoryOfficialPerson},
	{"official site", model.CategoryOfficialSite},
	{"official website", model.CategoryOfficialSite},
	{"news agency", model.CategoryNewsAgency},
	{"rəsmi təşkilat", model.CategoryOfficialOrganization},
	{"rəsmi sənəd", model.CategoryOfficialDocument},
	{"rəsmi şəxs", model.CategoryOfficialPerson},
	{"rəsmi sayt", model.CategoryOfficialSite},
	{"xəbər agentliyi", model.CategoryNewsAgency},
	{"organization", model.CategoryOfficialOrganization},
	{"organisation", model.CategoryOfficialOrganization},
	{"ministry", model.CategoryOfficialOrganization},
	{"government", model.CategoryOfficialOrganization},
	{"təşkilat", model.CategoryOfficialOrganization},
	{"nazirlik", model.CategoryOfficialOrganization},
	{"document", model.CategoryOfficialDocument},
	{"decree", model.CategoryOfficialDocument},
	{"sənəd", model.CategoryOfficialDocument},
	{"sərəncam", model.CategoryOfficialDocument},
	{"fərman", model.CategoryOfficialDocument},
	{"spokesperson", model.CategoryOfficialPerson},
	{"person", model.CategoryOfficialPerson},
	{"şəxs", model.CategoryOfficialPerson},
	{"website", model.CategoryOfficialSite},
	{"site", model.CategoryOfficialSite},
	{"sayt", model.CategoryOfficialSite},
	{"agency", model.CategoryNewsAgency},
	{"outlet", model.CategoryNewsAgency},
	{"newspaper", model.CategoryNewsAgency},
	{"agentlik", model.CategoryNewsAgency},
	{"media", model.CategoryNewsAgency},
}

var noneAnswers = map[string]bool{
	"none": true, "no sources": true, "n/a": true, "-": true,
	"yoxdur": true, "heç biri": true, "mənbə yoxdur": true,
}

// MapCategory maps a free-text source type onto the closed category set.
func MapCategory(raw string) (model.SourceCategory, bool) {
	v := strings.ToLower(cleanValue(raw))
	v = strings.NewReplacer("-", " ", "_", " ").Replace(v)
	if c := model.SourceCategory(strings.ReplaceAll(v, " ", "-")); c.Valid() {
		return c, true
	}
	for _, p := range categoryPhrases {
		if strings.Contains(v, p.phrase) {
			return p.category, true
		}
	}
	return "", false
}

// ParseSources reads "name / type / citation" blocks from an oracle answer.
// It tolerates bullets, numbering, bold markers, field order and the
// Azerbaijani field labels. It returns the kept sources and how many
// entries were dropped.
func ParseSources(answer string) ([]model.ClaimedSource, int) {
	type entry struct {
		name, category, citation string
	}
	var (
		entries []entry
		cur     entry
		started bool
	)
	flush := func() {
		if started {
			entries = append(entries, cur)
		}
		cur, started = entry{}, false
	}

	for _, line := range strings.Split(answer, "\n") {
		label, value, ok := splitField(line)
		if !ok {
			continue
		}
		switch fieldLabels[label] {
		case fieldName:
			if started && cur.name != "" {
				flush()
			}
			cur.name, started = value, true
		case fieldCategory:
			if started && cur.category != "" {
				flush()
			}
			cur.category, started = value, true
		case fieldCitation:
			if started && cur.citation != "" {
				flush()
			}
			cur.citation, started = value, true
		}
	}
	flush()

	var sources []model.ClaimedSource
	seen := make(map[string]bool)
	dropped := 0
	for _, en := range entries {
		if en.name == "" || noneAnswers[strings.ToLower(en.name)] {
			dropped++
			continue
		}
		category, ok := MapCategory(en.category)
		if !ok {
			dropped++
			continue
		}
		// Per-source evidence and verdicts are keyed by name, so a name
		// listed under two categories keeps its first.
		key := strings.ToLower(en.name)
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, model.ClaimedSource{
			Name:     en.name,
			Category: category,
			Citation: en.citation,
		})
	}
	return sources, dropped
}

// splitField turns "- **Source name:** Trend" into ("source name", "Trend").
func splitField(line string) (label, value string, ok bool) {
	line = strings.NewReplacer("**", "", "__", "").Replace(line)
	line = trimListMarker(strings.TrimSpace(line))
	idx := strings.IndexAny(line, ":：")
	if idx <= 0 {
		return "", "", false
	}
	label = strings.ToLower(strings.Trim(strings.TrimSpace(line[:idx]), "*_ "))
	if _, known := fieldLabels[label]; !known {
		return "", "", false
	}
	_, size := utf8.DecodeRuneInString(line[idx:])
	return label, cleanValue(line[idx+size:]), true
}

// trimListMarker drops leading bullets and "1." / "2)" numbering.
func trimListMarker(s string) string {
	s = strings.TrimLeft(s, "-*•·–> \t")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "[]")
	v = strings.Trim(v, `"'“”«»`)
	return strings.TrimSpace(v)
}
