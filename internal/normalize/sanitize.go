package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// injectionPatterns are markup and script fragments stripped from
// submitted text before it reaches any prompt.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)<(iframe|embed|object)[^>]*>`),
	regexp.MustCompile(`(?i)\b(javascript|vbscript):`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)document\.cookie`),
	regexp.MustCompile(`(?i)window\.location`),
}

var (
	// markupTag matches an opening tag, closed or not.
	markupTag = regexp.MustCompile(`(?i)<[a-z][^<>]*>?`)
	// eventHandler is only meaningful inside a tag; prose like "online = 5"
	// is left alone.
	eventHandler = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// Sanitize canonicalizes text: Unicode NFC, control characters removed,
// injection fragments stripped, whitespace collapsed to single spaces.
// Sanitize is deterministic, so equal inputs always fingerprint equally.
func Sanitize(s string) string {
	s = norm.NFC.String(s)

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case r == unicode.ReplacementChar:
			return -1
		case unicode.IsControl(r):
			return -1
		case unicode.Is(unicode.Cf, r):
			// Zero-width and bidi formatting characters.
			return -1
		}
		return r
	}, s)

	for _, re := range injectionPatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = markupTag.ReplaceAllStringFunc(s, func(tag string) string {
		return eventHandler.ReplaceAllString(tag, "")
	})

	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint is the hex SHA-256 of normalized text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Truncate cuts s to at most limit runes, backing up to the last word
// boundary in the final tenth of the text when there is one.
func Truncate(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	cut := limit
	for i := limit; i > limit-limit/10 && i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])), true
}
