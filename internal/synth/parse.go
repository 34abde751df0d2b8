package synth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/credence/internal/model"
)

// Section names one part of the synthesized answer
type Section string

const (
	SectionTruthfulness          Section = "truthfulness"
	SectionSourceReliability     Section = "source_reliability"
	SectionNeutrality            Section = "neutrality"
	SectionSourceVerification    Section = "source_verification"
	SectionOfficialCorroboration Section = "official_corroboration"
	SectionNewsCorroboration     Section = "news_corroboration"
	SectionWarnings              Section = "warnings"
)

// headingAliases maps normalized heading text to its section. Keys are
// lower-case with single spaces.
var headingAliases = map[string]Section{
	"truthfulness":          SectionTruthfulness,
	"truthfulness analysis": SectionTruthfulness,
	"accuracy":              SectionTruthfulness,
	"factual accuracy":      SectionTruthfulness,
	"veracity":              SectionTruthfulness,
	"credibility":           SectionTruthfulness,
	"conclusion":            SectionTruthfulness,
	"verdict":               SectionTruthfulness,
	"overall assessment":    SectionTruthfulness,
	"news analysis":         SectionTruthfulness,
	"xəbər analizi":         SectionTruthfulness,
	"nəticə":                SectionTruthfulness,
	"doğruluq":              SectionTruthfulness,

	"source reliability":      SectionSourceReliability,
	"reliability of sources":  SectionSourceReliability,
	"source credibility":      SectionSourceReliability,
	"source analysis":         SectionSourceReliability,
	"mənbə analizi":           SectionSourceReliability,
	"mənbə etibarlılığı":      SectionSourceReliability,
	"mənbələrin etibarlılığı": SectionSourceReliability,

	"neutrality":          SectionNeutrality,
	"neutrality analysis": SectionNeutrality,
	"bias":                SectionNeutrality,
	"bias analysis":       SectionNeutrality,
	"objectivity":         SectionNeutrality,
	"bitərəflik":          SectionNeutrality,
	"bitərəflik analizi":  SectionNeutrality,

	"source verification":     SectionSourceVerification,
	"verification of sources": SectionSourceVerification,
	"cited sources":           SectionSourceVerification,
	"claimed sources":         SectionSourceVerification,
	"mənbələrin doğrulanması": SectionSourceVerification,
	"mənbə doğrulaması":       SectionSourceVerification,

	"official corroboration": SectionOfficialCorroboration,
	"official confirmation":  SectionOfficialCorroboration,
	"official sources":       SectionOfficialCorroboration,
	"rəsmi mənbələr":         SectionOfficialCorroboration,
	"rəsmi təsdiq":           SectionOfficialCorroboration,

	"news corroboration":    SectionNewsCorroboration,
	"news coverage":         SectionNewsCorroboration,
	"media coverage":        SectionNewsCorroboration,
	"news sources":          SectionNewsCorroboration,
	"other news outlets":    SectionNewsCorroboration,
	"xəbər mənbələri":       SectionNewsCorroboration,
	"digər xəbər mənbələri": SectionNewsCorroboration,

	"warnings":       SectionWarnings,
	"warning":        SectionWarnings,
	"red flags":      SectionWarnings,
	"notes":          SectionWarnings,
	"caveats":        SectionWarnings,
	"qeydlər":        SectionWarnings,
	"xəbərdarlıqlar": SectionWarnings,
}

// inlineHeadings may carry content after a colon on an unstyled line.
// Other aliases are too common in prose to be trusted there.
var inlineHeadings = map[string]bool{
	"truthfulness":           true,
	"source reliability":     true,
	"neutrality":             true,
	"source verification":    true,
	"official corroboration": true,
	"news corroboration":     true,
	"warnings":               true,
	"xəbər analizi":          true,
	"mənbə analizi":          true,
	"bitərəflik analizi":     true,
	"nəticə":                 true,
	"qeydlər":                true,
}

// Parse splits an answer into sections. Text before the first recognized
// heading is ignored. A heading may carry content on the same line after a
// colon. Repeated headings are joined.
func Parse(answer string) map[Section]string {
	sections := make(map[Section]string)

	var current Section
	var body []string
	flush := func() {
		if current == "" {
			return
		}
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if prev := sections[current]; prev != "" && text != "" {
			text = prev + "\n\n" + text
		} else if text == "" {
			text = prev
		}
		sections[current] = text
	}

	for _, line := range strings.Split(answer, "\n") {
		if section, rest, ok := matchHeading(line); ok {
			flush()
			current = section
			body = body[:0]
			if rest != "" {
				body = append(body, rest)
			}
			continue
		}
		if current != "" {
			body = append(body, strings.TrimRight(line, " \t\r"))
		}
	}
	flush()

	return sections
}

// matchHeading reports whether line is a section heading, tolerating markdown
// markers, numbering, emoji and a trailing colon.
func matchHeading(line string) (Section, string, bool) {
	line = strings.TrimSpace(line)
	trimmed := strings.TrimLeftFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if trimmed == "" {
		return "", "", false
	}
	styled := strings.HasPrefix(line, "#") || strings.HasPrefix(line, "**") || strings.HasPrefix(line, "__")

	if i := strings.IndexAny(trimmed, ":："); i > 0 {
		head := normalizeHeading(trimmed[:i])
		if section, ok := headingAliases[head]; ok {
			_, size := utf8.DecodeRuneInString(trimmed[i:])
			rest := strings.TrimSpace(strings.Trim(strings.TrimSpace(trimmed[i+size:]), "*_"))
			if rest == "" || styled || inlineHeadings[head] {
				return section, rest, true
			}
			return "", "", false
		}
	}

	if section, ok := headingAliases[normalizeHeading(trimmed)]; ok {
		return section, "", true
	}
	return "", "", false
}

func normalizeHeading(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '*', '_', '#', '`':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// outcomePhrases is checked in order; negated forms precede the positive
// ones they contain.
var outcomePhrases = []struct {
	phrase  string
	outcome model.VerificationOutcome
}{
	{"contradicted", model.OutcomeContradicted},
	{"contradicts", model.OutcomeContradicted},
	{"refuted", model.OutcomeContradicted},
	{"disputed", model.OutcomeContradicted},
	{"təkzib", model.OutcomeContradicted},
	{"partially verified", model.OutcomePartiallyVerified},
	{"partially", model.OutcomePartiallyVerified},
	{"partly", model.OutcomePartiallyVerified},
	{"qismən", model.OutcomePartiallyVerified},
	{"unverified", model.OutcomeUnverified},
	{"not verified", model.OutcomeUnverified},
	{"could not be verified", model.OutcomeUnverified},
	{"cannot be verified", model.OutcomeUnverified},
	{"not confirmed", model.OutcomeUnverified},
	{"unconfirmed", model.OutcomeUnverified},
	{"no confirmation", model.OutcomeUnverified},
	{"təsdiqlənməyib", model.OutcomeUnverified},
	{"təsdiq edilməyib", model.OutcomeUnverified},
	{"doğrulanmayıb", model.OutcomeUnverified},
	{"verified", model.OutcomeVerified},
	{"confirmed", model.OutcomeVerified},
	{"corroborated", model.OutcomeVerified},
	{"təsdiqlənib", model.OutcomeVerified},
	{"təsdiq edilib", model.OutcomeVerified},
	{"doğrulanıb", model.OutcomeVerified},
}

// ParseVerdicts matches each claimed source to a line of the verification
// section by name. Sources without a matching line, or whose line names no
// outcome, are not determined. The result has one entry per source.
func ParseVerdicts(text string, sources []model.ClaimedSource) []model.SourceVerdict {
	verdicts := make([]model.SourceVerdict, 0, len(sources))

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = cleanLine(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	for _, src := range sources {
		verdict := model.SourceVerdict{Source: src, Outcome: model.OutcomeNotDetermined}
		for _, line := range lines {
			start, end, ok := indexFold(line, strings.TrimSpace(src.Name))
			if !ok {
				continue
			}
			verdict.Outcome = MapOutcome(line[:start] + " " + line[end:])
			verdict.Note = noteFrom(line[end:])
			break
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts
}

// dottedI folds the Azerbaijani dotted and dotless I, which simple case
// folding keeps apart.
var dottedI = strings.NewReplacer("İ", "I", "ı", "i")

// indexFold finds substr in s under Unicode case folding and returns its
// byte bounds in s.
func indexFold(s, substr string) (int, int, bool) {
	substr = dottedI.Replace(substr)
	n := utf8.RuneCountInString(substr)
	if n == 0 {
		return 0, 0, false
	}
	for start := range s {
		end := start
		for i := 0; i < n && end < len(s); i++ {
			_, size := utf8.DecodeRuneInString(s[end:])
			end += size
		}
		if utf8.RuneCountInString(s[start:end]) < n {
			break
		}
		if strings.EqualFold(dottedI.Replace(s[start:end]), substr) {
			return start, end, true
		}
	}
	return 0, 0, false
}

// MapOutcome finds the first outcome phrase in s.
func MapOutcome(s string) model.VerificationOutcome {
	lower := strings.ToLower(s)
	for _, p := range outcomePhrases {
		if strings.Contains(lower, p.phrase) {
			return p.outcome
		}
	}
	return model.OutcomeNotDetermined
}

var noneAnswers = map[string]bool{
	"none": true, "no warnings": true, "n/a": true, "-": true,
	"yoxdur": true, "heç biri": true, "xəbərdarlıq yoxdur": true,
}

// ParseWarnings returns one entry per non-empty line, without list markers.
// A "none" answer yields no warnings.
func ParseWarnings(text string) []string {
	var warnings []string
	for _, line := range strings.Split(text, "\n") {
		line = cleanLine(line)
		if line == "" || noneAnswers[strings.TrimRight(strings.ToLower(line), ".")] {
			continue
		}
		warnings = append(warnings, line)
	}
	return warnings
}

// cleanLine strips bullets, numbering and emphasis markers.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•–·> \t")
	if i := strings.IndexAny(line, ".)"); i > 0 && i <= 3 && isDigits(line[:i]) {
		line = line[i+1:]
	}
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	return strings.TrimSpace(line)
}

func noteFrom(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":：-–—) ")
	return strings.TrimSpace(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
