// Package synth asks the reasoning oracle for the final credibility analysis
// and turns its answer into a structured report.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/model"
)

// ErrAnalysisUnavailable is returned when the oracle cannot produce a
// synthesis after retries. There is no fallback report.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// Synthesizer produces credibility reports
type Synthesizer struct {
	oracle    llm.Completer
	info      model.OracleInfo
	timeout   time.Duration // Per oracle call
	maxTokens int
	now       func() time.Time
	log       logger.Logger
}

// NewSynthesizer creates a synthesizer. info names the provider and model
// recorded in each report.
func NewSynthesizer(oracle llm.Completer, info model.OracleInfo, timeout time.Duration, log logger.Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Synthesizer{
		oracle:    oracle,
		info:      info,
		timeout:   timeout,
		maxTokens: 2000,
		now:       time.Now,
		log:       logger.OrNop(log),
	}
}

// Synthesize builds the report for req from the gathered inputs.
func (s *Synthesizer) Synthesize(ctx context.Context, req *model.AnalysisRequest, sources []model.ClaimedSource, evidence model.EvidenceSet, assessment model.Score) (*model.CredibilityReport, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.oracle.Complete(callCtx, llm.CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildPrompt(req.Text, sources, evidence, assessment),
		MaxTokens: s.maxTokens,
		Purpose:   "synthesize",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: synthesis: %w", ErrAnalysisUnavailable, err)
	}

	info := s.info
	if resp.Model != "" {
		info.Model = resp.Model
	}

	report := &model.CredibilityReport{
		Fingerprint:    req.Fingerprint,
		Kind:           req.Kind,
		Origin:         req.Origin,
		GeneratedAt:    s.now().UTC(),
		ClaimedSources: nonNil(sources),
		Evidence:       evidence,
		Assessment:     assessment,
		Oracle:         info,
	}

	sections := Parse(resp.Text)
	if len(sections) == 0 {
		s.log.Warn("synthesis had no recognizable sections",
			logger.String("request_id", req.ID),
			logger.Int("length", len(resp.Text)))
		sections = map[Section]string{SectionTruthfulness: strings.TrimSpace(resp.Text)}
	}

	report.Truthfulness = section(sections, SectionTruthfulness)
	report.SourceReliability = section(sections, SectionSourceReliability)
	report.Neutrality = section(sections, SectionNeutrality)
	report.OfficialCorroboration = section(sections, SectionOfficialCorroboration)
	report.NewsCorroboration = section(sections, SectionNewsCorroboration)
	report.SourceVerification = ParseVerdicts(sections[SectionSourceVerification], sources)
	report.Warnings = ParseWarnings(sections[SectionWarnings])

	if missing := missingSections(sections, len(sources) > 0); len(missing) > 0 {
		report.Caveats = append(report.Caveats, model.Caveat{
			Code:    model.CaveatSynthesisPartial,
			Message: "the analysis did not cover: " + strings.Join(missing, ", "),
		})
	}

	ApplyEvidenceGaps(report, evidence)
	return report, nil
}

// ApplyEvidenceGaps marks corroboration that could not be gathered. A failed
// group's section is absent whatever the oracle wrote, so a report never
// shows corroboration that was not searched.
func ApplyEvidenceGaps(report *model.CredibilityReport, evidence model.EvidenceSet) {
	if evidence.Degraded {
		report.OfficialCorroboration = absent("official search unavailable")
		report.NewsCorroboration = absent("news search unavailable")
		for i := range report.SourceVerification {
			report.SourceVerification[i].Outcome = model.OutcomeNotDetermined
			report.SourceVerification[i].Note = "search unavailable"
		}
		report.Caveats = append(report.Caveats, model.Caveat{
			Code:    model.CaveatSearchDegraded,
			Message: "web search was unavailable; the analysis rests on the text alone",
		})
		return
	}

	if evidence.Failed(model.OutcomeKey(model.GroupOfficial, "")) {
		report.OfficialCorroboration = absent("official search unavailable")
		report.Caveats = append(report.Caveats, model.Caveat{
			Code:    model.CaveatOfficialUnavailable,
			Message: "official sources could not be searched",
		})
	}
	if evidence.Failed(model.OutcomeKey(model.GroupNews, "")) {
		report.NewsCorroboration = absent("news search unavailable")
		report.Caveats = append(report.Caveats, model.Caveat{
			Code:    model.CaveatNewsUnavailable,
			Message: "news outlets could not be searched",
		})
	}

	var failed []string
	for i, v := range report.SourceVerification {
		if !evidence.Failed(model.OutcomeKey(model.GroupSource, v.Source.Name)) {
			continue
		}
		failed = append(failed, v.Source.Name)
		report.SourceVerification[i].Outcome = model.OutcomeNotDetermined
		report.SourceVerification[i].Note = "search for this source was unavailable"
	}
	if len(failed) > 0 {
		report.Caveats = append(report.Caveats, model.Caveat{
			Code:    model.CaveatSourceUnavailable,
			Message: "could not search for: " + strings.Join(failed, ", "),
		})
	}
}

func section(sections map[Section]string, name Section) model.Section {
	text := strings.TrimSpace(sections[name])
	if text == "" {
		return model.NotDetermined()
	}
	return model.Section{Status: model.SectionDetermined, Text: text}
}

func absent(reason string) model.Section {
	return model.Section{Status: model.SectionAbsent, Text: reason}
}

func missingSections(sections map[Section]string, wantVerification bool) []string {
	var missing []string
	for _, h := range templateHeadings {
		if h.section == SectionWarnings {
			continue
		}
		if h.section == SectionSourceVerification && !wantVerification {
			continue
		}
		if strings.TrimSpace(sections[h.section]) == "" {
			missing = append(missing, h.heading)
		}
	}
	return missing
}

func nonNil(sources []model.ClaimedSource) []model.ClaimedSource {
	if sources == nil {
		return []model.ClaimedSource{}
	}
	return sources
}
