package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/pipeline"
)

var (
	checkURL     string
	checkImage   string
	checkJSON    bool
	checkOut     string
	checkActor   string
	checkLocale  string
	checkTimeout time.Duration
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Check the credibility of one news item",
	Long: `Check analyzes one news item:
- Extract the sources the text cites and classify them
- Search official and news outlets for corroboration
- Synthesize a structured report with a heuristic credibility index

Pass the news text as an argument ("-" reads it from stdin), or use --url
or --image.

Example:
  credence check "Azerbaijan launched a new satellite, the government said"
  credence check --url https://apa.az/news/123
  credence check --image screenshot.png --json --out report.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkURL, "url", "", "check the article at this URL")
	checkCmd.Flags().StringVar(&checkImage, "image", "", "check the text in this image file")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the report as JSON instead of Markdown")
	checkCmd.Flags().StringVar(&checkOut, "out", "", "write the report to this file instead of stdout")
	checkCmd.Flags().StringVar(&checkActor, "actor", "cli", "actor identity for rate limiting")
	checkCmd.Flags().StringVar(&checkLocale, "lang", "", "report language: en or az (overrides config)")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 0, "overall check timeout (default from config)")
	checkCmd.MarkFlagsMutuallyExclusive("url", "image")
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
	in, err := checkInput(args, checkURL, checkImage, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if checkLocale != "" {
		cfg.Pipeline.Locale = checkLocale
	}
	if checkTimeout > 0 {
		cfg.Pipeline.RequestTimeoutSeconds = int(checkTimeout.Seconds())
	}

	ctx := cmd.Context()
	p, closePipeline, err := pipeline.Build(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer closePipeline()

	if verbose {
		fmt.Fprintf(os.Stderr, "Checking %s input as %q\n", in.Kind, checkActor)
	}

	report, err := p.Handle(ctx, checkActor, in)
	if err != nil {
		if f, ok := pipeline.AsFailure(err); ok {
			log.Debug("check failed", logger.Error(f))
			return errors.New(f.UserMessage(cfg.Pipeline.Locale))
		}
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if checkOut != "" {
		f, createErr := os.Create(checkOut)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output: %w", closeErr)
			}
		}()
		w = f
	}

	renderer := pipeline.NewRenderer(cfg.Pipeline.Locale)
	if checkJSON {
		err = renderer.RenderJSON(w, report)
	} else {
		err = renderer.RenderMarkdown(w, report)
	}
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Index %d/100 (%s), %d sources, cached: %v\n",
			report.Assessment.Index, report.Assessment.Level, len(report.SourceVerification), report.Cached)
	}
	return nil
}

// checkInput turns the positional text, --url and --image into exactly one
// raw input.
func checkInput(args []string, url, image string, stdin io.Reader) (model.RawInput, error) {
	given := 0
	if len(args) > 0 {
		given++
	}
	if url != "" {
		given++
	}
	if image != "" {
		given++
	}
	if given != 1 {
		return model.RawInput{}, errors.New("provide exactly one of: news text, --url, or --image")
	}

	switch {
	case url != "":
		return model.RawInput{Kind: model.KindURL, URL: url}, nil
	case image != "":
		data, err := os.ReadFile(image)
		if err != nil {
			return model.RawInput{}, fmt.Errorf("read image: %w", err)
		}
		return model.RawInput{Kind: model.KindImage, Image: data}, nil
	}

	text := args[0]
	if text == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return model.RawInput{}, fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return model.RawInput{}, errors.New("news text is empty")
	}
	return model.RawInput{Kind: model.KindText, Text: text}, nil
}
