package synth

import (
	"fmt"
	"strings"

	"github.com/ppiankov/credence/internal/model"
)

const systemPrompt = `You are a news analysis specialist. You analyze news neutrally and objectively, ` +
	`using only the text and the search evidence you are given. ` +
	`You never invent sources, links or confirmations that are not in the evidence. ` +
	`You answer in the language of the news text.`

// Headings the oracle is asked to produce, in order.
var templateHeadings = []struct {
	section Section
	heading string
	hint    string
}{
	{SectionTruthfulness, "Truthfulness", "How likely the main claims are to be true, and why"},
	{SectionSourceReliability, "Source Reliability", "How reliable the cited and found sources are, including agreements or contradictions between them"},
	{SectionNeutrality, "Neutrality", "Whether the wording is neutral, and any biased or manipulative expressions"},
	{SectionSourceVerification, "Source Verification", "One line per cited source: \"<source name>: verified | partially verified | unverified | contradicted - <reason>\""},
	{SectionOfficialCorroboration, "Official Corroboration", "What official sources say about the claims"},
	{SectionNewsCorroboration, "News Corroboration", "What other news outlets report about the claims"},
	{SectionWarnings, "Warnings", "One bullet per warning for the reader, or \"None\""},
}

// BuildPrompt renders the synthesis instruction for one request.
func BuildPrompt(text string, sources []model.ClaimedSource, evidence model.EvidenceSet, assessment model.Score) string {
	var b strings.Builder

	b.WriteString("Analyze the following news text using the information below.\n\n")

	b.WriteString("News text:\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n\n")

	b.WriteString("Sources cited in the text:\n")
	if len(sources) == 0 {
		b.WriteString("The text cites no sources.\n")
	}
	for i, src := range sources {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, src.Name, categoryLabel(src.Category))
		if src.Citation != "" {
			fmt.Fprintf(&b, " - cited as: %q", src.Citation)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("Search results for each cited source:\n")
	if len(evidence.BySource) == 0 {
		b.WriteString("No cited sources were searched.\n")
	}
	for _, src := range evidence.BySource {
		fmt.Fprintf(&b, "- %s:\n", src.Source.Name)
		writeGroup(&b, evidence, model.OutcomeKey(model.GroupSource, src.Source.Name), src.Results,
			"    No results found for this source.\n", "    ")
	}
	b.WriteString("\n")

	b.WriteString("Results from official sources:\n")
	writeGroup(&b, evidence, model.OutcomeKey(model.GroupOfficial, ""), evidence.Official,
		"No related information was found on official sources.\n", "")
	b.WriteString("\n")

	b.WriteString("Results from other news outlets:\n")
	writeGroup(&b, evidence, model.OutcomeKey(model.GroupNews, ""), evidence.News,
		"No related information was found on other news outlets.\n", "")
	b.WriteString("\n")

	b.WriteString("Automatic pre-assessment (heuristic, not a verdict):\n")
	fmt.Fprintf(&b, "Index: %d/100 (%s), confidence: %s\n", assessment.Index, assessment.Level, assessment.Confidence)
	for _, s := range assessment.Signals {
		fmt.Fprintf(&b, "- %s [%s]: %s\n", s.Type, s.Severity, s.Description)
	}
	if len(assessment.Flags) > 0 {
		fmt.Fprintf(&b, "Language flags: %s\n", strings.Join(assessment.Flags, ", "))
	}
	b.WriteString("\n")

	b.WriteString("Answer with exactly these sections, each starting with its heading line:\n\n")
	for _, h := range templateHeadings {
		fmt.Fprintf(&b, "## %s\n[%s]\n\n", h.heading, h.hint)
	}
	b.WriteString("If a search group is marked unavailable, say so in its section instead of guessing.")

	return b.String()
}

func writeGroup(b *strings.Builder, evidence model.EvidenceSet, key string, results []model.SearchEvidence, empty, indent string) {
	if evidence.Failed(key) {
		fmt.Fprintf(b, "%sSearch unavailable (%s).\n", indent, evidence.Outcomes[key].Error)
		return
	}
	if len(results) == 0 {
		b.WriteString(empty)
		return
	}
	for i, r := range results {
		fmt.Fprintf(b, "%s%d. %s\n%s   %s\n", indent, i+1, r.Title, indent, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(b, "%s   %s\n", indent, r.Snippet)
		}
	}
}

func categoryLabel(c model.SourceCategory) string {
	return strings.ReplaceAll(string(c), "-", " ")
}
