package score

import (
	"testing"

	"github.com/ppiankov/credence/internal/model"
)

const satelliteText = "According to the Ministry of Digital Development, Azerbaijan will launch a new " +
	"satellite in 2026. The ministry said the satellite launch is planned for October."

func corroboratedEvidence() model.EvidenceSet {
	snippet := "Azerbaijan satellite launch planned for October, ministry confirms"
	return model.EvidenceSet{
		Official: []model.SearchEvidence{
			{Group: model.GroupOfficial, Title: "Satellite programme", Snippet: snippet, URL: "https://mincom.gov.az/en/news/1", Host: "mincom.gov.az"},
			{Group: model.GroupOfficial, Title: "Decree", Snippet: snippet, URL: "https://president.az/articles/2", Host: "president.az"},
		},
		News: []model.SearchEvidence{
			{Group: model.GroupNews, Title: "New satellite", Snippet: snippet, URL: "https://apa.az/a", Host: "apa.az"},
			{Group: model.GroupNews, Title: "New satellite", Snippet: snippet, URL: "https://trend.az/b", Host: "trend.az"},
			{Group: model.GroupNews, Title: "New satellite", Snippet: snippet, URL: "https://report.az/c", Host: "report.az"},
		},
		BySource: []model.SourceEvidence{
			{
				Source:  model.ClaimedSource{Name: "Ministry of Digital Development", Category: model.CategoryOfficialOrganization},
				Results: []model.SearchEvidence{{Group: model.GroupSource, Title: "Ministry", Snippet: snippet, URL: "https://mincom.gov.az/en/x", Host: "mincom.gov.az"}},
			},
		},
		Outcomes: map[string]model.GroupOutcome{
			"official": {Status: model.GroupOK, Results: 2},
			"news":     {Status: model.GroupOK, Results: 3},
		},
	}
}

func signalByType(score model.Score, t model.SignalType) (model.Signal, bool) {
	for _, s := range score.Signals {
		if s.Type == t {
			return s, true
		}
	}
	return model.Signal{}, false
}

func hasFlag(score model.Score, flag string) bool {
	for _, f := range score.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func TestScorer_Assess_CorroboratedText(t *testing.T) {
	scorer := NewScorer()

	sources := []model.ClaimedSource{{Name: "Ministry of Digital Development", Category: model.CategoryOfficialOrganization}}
	claims := []model.Claim{{Text: "According to the Ministry of Digital Development, Azerbaijan will launch a new satellite in 2026.", Heuristic: "cue:according to"}}

	result := scorer.Assess(satelliteText, sources, corroboratedEvidence(), claims)

	if result.Index < 60 || result.Index > 100 {
		t.Errorf("Expected index between 60 and 100 for corroborated text, got %d", result.Index)
	}
	if result.Level != Level(result.Index) {
		t.Errorf("Level %q does not match index %d", result.Level, result.Index)
	}
	if result.Confidence != "high" {
		t.Errorf("Expected high confidence with six results and no failed groups, got %q", result.Confidence)
	}
	if len(result.Flags) != 0 {
		t.Errorf("Expected no language flags, got %v", result.Flags)
	}
	if len(result.Signals) != 5 {
		t.Fatalf("Expected 5 signals, got %d", len(result.Signals))
	}

	for _, s := range result.Signals {
		if _, ok := s.Data["weight"]; !ok {
			t.Errorf("Signal %s missing weight", s.Type)
		}
		if _, ok := s.Data["formula"]; !ok {
			t.Errorf("Signal %s missing formula", s.Type)
		}
	}

	consistency, _ := signalByType(result, model.SignalConsistency)
	if consistency.Data["consistent"] != 6 {
		t.Errorf("Expected all 6 snippets to be consistent, got %v", consistency.Data["consistent"])
	}
}

func TestScorer_Assess_SensationalText(t *testing.T) {
	scorer := NewScorer()

	text := "SHOCKING!!! You won't believe the hidden truth they don't want you to know!!!! WAKE UP PEOPLE"
	result := scorer.Assess(text, nil, model.EvidenceSet{}, nil)

	for _, flag := range []string{FlagSensational, FlagEmotional, FlagConspiracy, FlagExclamation, FlagShouting} {
		if !hasFlag(result, flag) {
			t.Errorf("Expected flag %s, got %v", flag, result.Flags)
		}
	}
	if hasFlag(result, FlagUnverified) {
		t.Errorf("Did not expect %s", FlagUnverified)
	}

	language, ok := signalByType(result, model.SignalLanguage)
	if !ok {
		t.Fatal("Expected language signal")
	}
	if language.Severity != model.SeverityCritical {
		t.Errorf("Expected critical language severity, got %s", language.Severity)
	}

	if result.Level != LevelLow {
		t.Errorf("Expected level %s, got %s (index %d)", LevelLow, result.Level, result.Index)
	}
	if result.Confidence != "low" {
		t.Errorf("Expected low confidence without evidence, got %q", result.Confidence)
	}

	clean := scorer.Assess(satelliteText, nil, model.EvidenceSet{}, nil)
	if result.Index >= clean.Index {
		t.Errorf("Sensational text (%d) should score below neutral text (%d)", result.Index, clean.Index)
	}
}

func TestScorer_Assess_AzerbaijaniPatterns(t *testing.T) {
	scorer := NewScorer()

	result := scorer.Assess("Şok edici xəbər: gizli həqiqət ört-basdır edilir, anonim mənbəyə görə", nil, model.EvidenceSet{}, nil)

	for _, flag := range []string{FlagSensational, FlagConspiracy, FlagUnverified} {
		if !hasFlag(result, flag) {
			t.Errorf("Expected flag %s, got %v", flag, result.Flags)
		}
	}
}

func TestScorer_Assess_FailedGroupIsNeutral(t *testing.T) {
	scorer := NewScorer()

	evidence := corroboratedEvidence()
	evidence.News = nil
	evidence.Outcomes["news"] = model.GroupOutcome{Status: model.GroupFailed, Error: "search provider unavailable", Attempts: 3}

	result := scorer.Assess(satelliteText, nil, evidence, nil)

	news, ok := signalByType(result, model.SignalNewsCorroboration)
	if !ok {
		t.Fatal("Expected news signal")
	}
	if news.Data["status"] != string(model.GroupFailed) {
		t.Errorf("Expected failed status in news signal, got %v", news.Data["status"])
	}
	if news.Data["score"] != 5.0 {
		t.Errorf("Expected neutral score for failed group, got %v", news.Data["score"])
	}
	if result.Confidence != "medium" {
		t.Errorf("Expected medium confidence with a failed group, got %q", result.Confidence)
	}

	degraded := scorer.Assess(satelliteText, nil, model.EvidenceSet{Degraded: true}, nil)
	if degraded.Confidence != "low" {
		t.Errorf("Expected low confidence for degraded evidence, got %q", degraded.Confidence)
	}
}

func TestScorer_Assess_Unattributed(t *testing.T) {
	scorer := NewScorer()

	result := scorer.Assess("Azerbaijan will launch a new satellite soon.", nil, model.EvidenceSet{}, nil)

	attribution, ok := signalByType(result, model.SignalSourceAttribution)
	if !ok {
		t.Fatal("Expected source attribution signal")
	}
	if attribution.Severity != model.SeverityWarning {
		t.Errorf("Expected warning for unattributed text, got %s", attribution.Severity)
	}
	if result.Index < 0 || result.Index > 100 {
		t.Errorf("Expected index between 0 and 100, got %d", result.Index)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{100, LevelHigh},
		{75, LevelHigh},
		{74, LevelMedium},
		{50, LevelMedium},
		{49, LevelLow},
		{25, LevelLow},
		{24, LevelVeryLow},
		{0, LevelVeryLow},
	}

	for _, tt := range tests {
		if got := Level(tt.index); got != tt.want {
			t.Errorf("Level(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestCountPhrase(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   int
	}{
		{"breaking: breaking news", "breaking", 2},
		{"the alerted crowd", "alert", 0},
		{"red alert.", "alert", 1},
		{"bu təcili xəbərdir", "təcili", 1},
		{"təciliyyət", "təcili", 0},
		{"ört-basdır", "ört-basdır", 1},
	}

	for _, tt := range tests {
		if got := countPhrase(tt.text, tt.phrase); got != tt.want {
			t.Errorf("countPhrase(%q, %q) = %d, want %d", tt.text, tt.phrase, got, tt.want)
		}
	}
}

func TestCountShouting(t *testing.T) {
	if got := countShouting("BREAKING news from the UN and NATO today"); got != 2 {
		t.Errorf("Expected 2 shouted words, got %d", got)
	}
}
