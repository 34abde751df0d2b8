package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/credence/internal/model"
)

// Renderer writes reports for people (Markdown) and machines (JSON)
type Renderer struct {
	labels map[string]string
}

var rendererLabels = map[string]map[string]string{
	"en": {
		"title":        "Credibility check",
		"cached":       "Served from cache",
		"truthfulness": "Truthfulness",
		"reliability":  "Source reliability",
		"neutrality":   "Neutrality",
		"verification": "Source verification",
		"official":     "Official corroboration",
		"news":         "News corroboration",
		"warnings":     "Warnings",
		"caveats":      "Limitations of this check",
		"assessment":   "Automatic pre-assessment",
		"index":        "Index",
		"confidence":   "confidence",
		"flags":        "Language flags",
		"no_sources":   "The text cites no sources.",
		"absent":       "Not available",
		"disclaimer":   "This is an automated first-pass check, not a final verdict.",
	},
	"az": {
		"title":        "Etibarlılıq yoxlaması",
		"cached":       "Keşdən götürülüb",
		"truthfulness": "Xəbər analizi",
		"reliability":  "Mənbə analizi",
		"neutrality":   "Bitərəflik analizi",
		"verification": "Mənbələrin doğrulanması",
		"official":     "Rəsmi mənbələr",
		"news":         "Digər xəbər mənbələri",
		"warnings":     "Qeydlər",
		"caveats":      "Yoxlamanın məhdudiyyətləri",
		"assessment":   "Avtomatik etibarlılıq qiymətləndirməsi",
		"index":        "İndeks",
		"confidence":   "etibar",
		"flags":        "Dil xəbərdarlıqları",
		"no_sources":   "Xəbərdə istinad edilən mənbə tapılmadı.",
		"absent":       "Əlçatan deyil",
		"disclaimer":   "Bu avtomatik ilkin yoxlamadır, yekun hökm deyil.",
	},
}

// NewRenderer creates a renderer for locale ("en" or "az"). Unknown locales
// use English.
func NewRenderer(locale string) *Renderer {
	labels, ok := rendererLabels[locale]
	if !ok {
		labels = rendererLabels["en"]
	}
	return &Renderer{labels: labels}
}

// RenderJSON writes the report as indented JSON.
func (r *Renderer) RenderJSON(w io.Writer, report *model.CredibilityReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the report as Markdown.
func (r *Renderer) RenderMarkdown(w io.Writer, report *model.CredibilityReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.labels["title"])
	if report.Origin != "" {
		fmt.Fprintf(&b, "<%s>\n\n", report.Origin)
	}
	if report.Cached {
		fmt.Fprintf(&b, "_%s_\n\n", r.labels["cached"])
	}

	r.section(&b, "truthfulness", report.Truthfulness)
	r.section(&b, "reliability", report.SourceReliability)
	r.section(&b, "neutrality", report.Neutrality)

	fmt.Fprintf(&b, "## %s\n\n", r.labels["verification"])
	if len(report.SourceVerification) == 0 {
		fmt.Fprintf(&b, "%s\n\n", r.labels["no_sources"])
	} else {
		for _, v := range report.SourceVerification {
			fmt.Fprintf(&b, "- **%s** (%s): %s", v.Source.Name, categoryName(v.Source.Category), v.Outcome)
			if v.Note != "" {
				fmt.Fprintf(&b, " - %s", v.Note)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	r.section(&b, "official", report.OfficialCorroboration)
	r.section(&b, "news", report.NewsCorroboration)

	if len(report.Warnings) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", r.labels["warnings"])
		for _, warning := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
		b.WriteString("\n")
	}

	a := report.Assessment
	fmt.Fprintf(&b, "## %s\n\n", r.labels["assessment"])
	fmt.Fprintf(&b, "%s: **%d/100** (%s, %s: %s)\n\n", r.labels["index"], a.Index, a.Level, r.labels["confidence"], a.Confidence)
	if len(a.Flags) > 0 {
		fmt.Fprintf(&b, "%s: %s\n\n", r.labels["flags"], strings.Join(a.Flags, ", "))
	}

	if len(report.Caveats) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", r.labels["caveats"])
		for _, c := range report.Caveats {
			fmt.Fprintf(&b, "- %s\n", c.Message)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n_%s_\n", r.labels["disclaimer"])

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) section(b *strings.Builder, label string, s model.Section) {
	fmt.Fprintf(b, "## %s\n\n", r.labels[label])
	switch s.Status {
	case model.SectionAbsent:
		fmt.Fprintf(b, "_%s: %s_\n\n", r.labels["absent"], s.Text)
	default:
		fmt.Fprintf(b, "%s\n\n", s.Text)
	}
}

func categoryName(c model.SourceCategory) string {
	return strings.ReplaceAll(string(c), "-", " ")
}
