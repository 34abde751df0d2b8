package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/credence/internal/model"
)

// AttributionScanner finds sentences that attribute information to someone
type AttributionScanner struct {
	cues []string
}

// NewAttributionScanner creates a scanner with English and Azerbaijani cues
func NewAttributionScanner() *AttributionScanner {
	return &AttributionScanner{
		cues: []string{
			"according to", "confirmed by", "said", "stated", "announced",
			"reported", "told", "citing", "quoted", "statement",
			"məlumatına görə", "açıqlamasına görə", "istinadən", "açıqlayıb",
			"bildirib", "məlumat verib", "xəbər verir", "deyib", "qeyd edib",
			"təsdiqləyib", "bəyan edib",
		},
	}
}

// Scan returns one claim per sentence carrying an attribution cue
func (s *AttributionScanner) Scan(text string) []model.Claim {
	var claims []model.Claim
	for i, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, cue := range s.cues {
			if strings.Contains(lower, cue) {
				claims = append(claims, model.Claim{
					Text:      sentence,
					Heuristic: "cue:" + cue,
					Sentence:  i,
				})
				break // Only match once per sentence
			}
		}
	}
	return dedupeClaims(claims)
}

// splitSentences splits text into sentences (simple heuristic)
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder
	keep := func() {
		sentence := strings.TrimSpace(current.String())
		if n := utf8.RuneCountInString(sentence); n >= 20 && n <= 500 {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Look ahead to avoid splitting on abbreviations and decimals
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				keep()
			}
		}
	}
	if current.Len() > 0 {
		keep()
	}

	return sentences
}

// dedupeClaims removes duplicate claims
func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
