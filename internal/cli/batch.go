package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/pipeline"
	"github.com/ppiankov/credence/internal/worker"
)

var (
	concurrency  int
	maxWaits     int
	batchActor   string
	batchJSON    bool
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Check many news items from a file",
	Long: `Batch checks one submission per line:
- Lines starting with http:// or https:// are checked as links
- Any other line is checked as news text
- Blank lines and lines starting with # are skipped

All submissions share one rate-limit identity; when the limit is reached the
batch waits for the window to reopen.

Example:
  credence batch news.txt
  credence batch news.txt --concurrency 2 --output-dir ./reports
  credence batch news.txt --json > results.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of concurrent checks")
	batchCmd.Flags().IntVar(&maxWaits, "max-waits", 10, "times one submission may wait out the rate limit")
	batchCmd.Flags().StringVar(&batchActor, "actor", "batch", "actor identity shared by the batch")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print results and summary as JSON")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write one Markdown and JSON report per submission here")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	subs, err := worker.ReadSubmissions(file)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Credence Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Submissions:  %d\n", len(subs))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	p, closePipeline, err := pipeline.Build(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer closePipeline()

	processor := worker.NewBatchProcessor(p, batchActor, concurrency, maxWaits)
	results := processor.Process(ctx, subs)

	renderer := pipeline.NewRenderer(cfg.Pipeline.Locale)
	for _, result := range results {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d] %s: %s\n", result.Index+1, result.Submission.Label(), failureText(result.Error, cfg.Pipeline.Locale))
			continue
		}
		if outputDir != "" {
			if err := writeReports(renderer, outputDir, result); err != nil {
				fmt.Fprintf(os.Stderr, "✗ [%d] %s: %v\n", result.Index+1, result.Submission.Label(), err)
				continue
			}
		}
		fmt.Fprintf(os.Stderr, "✓ [%d] %s (index: %d/100, %s)\n",
			result.Index+1, result.Submission.Label(), result.Report.Assessment.Index, result.Report.Assessment.Level)
	}

	summary := worker.Summarize(results)
	if batchJSON {
		if err := writeBatchJSON(cmd.OutOrStdout(), results, summary, cfg.Pipeline.Locale); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:       %d\n", summary.Total)
	fmt.Fprintf(os.Stderr, "  Success:     %d (%d incomplete, %d cached)\n", summary.Succeeded, summary.Incomplete, summary.Cached)
	fmt.Fprintf(os.Stderr, "  Failures:    %d\n", summary.Failed)
	for kind, n := range summary.ByFailure {
		fmt.Fprintf(os.Stderr, "    %-22s %d\n", kind, n)
	}
	if outputDir != "" {
		fmt.Fprintf(os.Stderr, "  Output:      %s\n", outputDir)
	}
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

func failureText(err error, locale string) string {
	if f, ok := pipeline.AsFailure(err); ok {
		return f.UserMessage(locale)
	}
	return err.Error()
}

// writeReports writes NNN.md and NNN.json for one successful result.
func writeReports(renderer *pipeline.Renderer, dir string, result *worker.CheckResult) error {
	base := filepath.Join(dir, fmt.Sprintf("%03d", result.Index+1))

	write := func(path string, render func(io.Writer) error) (err error) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", path, closeErr)
			}
		}()
		return render(f)
	}

	if err := write(base+".md", func(w io.Writer) error { return renderer.RenderMarkdown(w, result.Report) }); err != nil {
		return err
	}
	return write(base+".json", func(w io.Writer) error { return renderer.RenderJSON(w, result.Report) })
}

type batchEntry struct {
	Index  int                      `json:"index"`
	Line   int                      `json:"line"`
	Input  string                   `json:"input"`
	Report *model.CredibilityReport `json:"report,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Reason string                   `json:"reason,omitempty"`
}

func writeBatchJSON(w io.Writer, results []*worker.CheckResult, summary worker.Summary, locale string) error {
	entries := make([]batchEntry, 0, len(results))
	for _, r := range results {
		e := batchEntry{Index: r.Index, Line: r.Submission.Line, Input: r.Submission.Label()}
		if r.Error != nil {
			e.Error = failureText(r.Error, locale)
			if f, ok := pipeline.AsFailure(r.Error); ok {
				e.Reason = f.Reason
			}
		} else {
			e.Report = r.Report
		}
		entries = append(entries, e)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Summary worker.Summary `json:"summary"`
		Results []batchEntry   `json:"results"`
	}{summary, entries}); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
