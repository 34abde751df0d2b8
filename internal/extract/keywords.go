package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/logger"
)

const maxKeywords = 4

const keywordPromptTemplate = `Extract the key facts from the following news text and give the 3 or 4 most important search keywords for finding coverage of it.
Return only the keywords, separated by commas, in the language of the text. Write nothing else.

News text:
"""
%s
"""`

// Keywords are the search terms derived for a text
type Keywords struct {
	Terms     []string `json:"terms"`
	Heuristic bool     `json:"heuristic"` // Oracle failed; terms came from word frequency
}

// Query joins the terms for use in a search query.
func (k Keywords) Query() string {
	return strings.Join(k.Terms, " ")
}

// KeywordDeriver picks search keywords for a text
type KeywordDeriver struct {
	oracle  llm.Completer // nil means always use the heuristic
	timeout time.Duration
	log     logger.Logger
}

// NewKeywordDeriver creates a deriver. oracle may be nil.
func NewKeywordDeriver(oracle llm.Completer, timeout time.Duration, log logger.Logger) *KeywordDeriver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KeywordDeriver{oracle: oracle, timeout: timeout, log: logger.OrNop(log)}
}

// Derive asks the oracle for keywords and falls back to a local frequency
// heuristic when the oracle fails or answers with nothing usable. It never
// fails.
func (d *KeywordDeriver) Derive(ctx context.Context, text string) Keywords {
	if d.oracle != nil {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		resp, err := d.oracle.Complete(callCtx, llm.CompletionRequest{
			Prompt:    fmt.Sprintf(keywordPromptTemplate, text),
			MaxTokens: 100,
			Purpose:   "keywords",
		})
		cancel()
		if err == nil {
			if terms := ParseKeywords(resp.Text); len(terms) > 0 {
				return Keywords{Terms: terms}
			}
			d.log.Warn("oracle returned no usable keywords")
		} else {
			d.log.Warn("keyword derivation failed, using heuristic", logger.Error(err))
		}
	}
	return Keywords{Terms: HeuristicKeywords(text), Heuristic: true}
}

// ParseKeywords splits an oracle answer into at most four keywords,
// stripping bullets, numbering and quotes.
func ParseKeywords(answer string) []string {
	fields := strings.FieldsFunc(answer, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';' || r == '،'
	})

	var terms []string
	seen := make(map[string]bool)
	for _, f := range fields {
		term := strings.NewReplacer("**", "", "`", "").Replace(f)
		if i := strings.LastIndex(term, ":"); i >= 0 {
			term = term[i+1:] // "Keywords: peyk"
		}
		term = strings.TrimRight(cleanValue(trimListMarker(term)), ".")
		if term == "" || len([]rune(term)) > 60 {
			continue
		}
		key := strings.ToLower(term)
		if seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, term)
		if len(terms) == maxKeywords {
			break
		}
	}
	return terms
}

var stopwords = toSet(
	// English
	"the", "and", "for", "with", "that", "this", "from", "has", "have", "had",
	"was", "were", "are", "been", "will", "would", "its", "their", "they",
	"said", "says", "new", "not", "but", "also", "after", "before", "over",
	"more", "than", "which", "who", "what", "when", "where", "into", "about",
	"by", "of", "to", "in", "on", "at", "an", "is", "it", "as", "be", "or",
	// Azerbaijani
	"və", "ilə", "bu", "bir", "da", "də", "ki", "üçün", "olan", "olub",
	"olaraq", "isə", "ancaq", "amma", "lakin", "həm", "belə", "daha", "çox",
	"hər", "artıq", "sonra", "əvvəl", "görə", "kimi", "qədər", "onun",
	"onlar", "bildirib", "deyib", "edib", "edilib", "edir", "olunub", "yeni",
	"ildə", "il", "ən", "bütün", "həmçinin", "barədə", "haqqında",
)

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// HeuristicKeywords picks up to four frequent content words, ties broken by
// first occurrence.
func HeuristicKeywords(text string) []string {
	type candidate struct {
		word  string
		count int
		first int
	}
	byKey := make(map[string]*candidate)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for i, tok := range tokens {
		tok = strings.Trim(tok, "-")
		key := strings.ToLower(tok)
		if len([]rune(key)) < 3 || stopwords[key] || isNumber(key) {
			continue
		}
		if c, ok := byKey[key]; ok {
			c.count++
			continue
		}
		byKey[key] = &candidate{word: tok, count: 1, first: i}
	}

	candidates := make([]*candidate, 0, len(byKey))
	for _, c := range byKey {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].first < candidates[j].first
	})

	var terms []string
	for _, c := range candidates {
		terms = append(terms, c.word)
		if len(terms) == maxKeywords {
			break
		}
	}
	return terms
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
