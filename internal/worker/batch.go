package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/pipeline"
	"github.com/ppiankov/credence/internal/retry"
)

// Checker defines the interface for checking one submission
type Checker interface {
	Handle(ctx context.Context, actorID string, in model.RawInput) (*model.CredibilityReport, error)
}

// Submission is one entry of a batch
type Submission struct {
	Line  int // 1-based line in the batch file, 0 when not read from a file
	Input model.RawInput
}

// Label is a short human-readable name for the submission.
func (s Submission) Label() string {
	if s.Input.Kind == model.KindURL {
		return s.Input.URL
	}
	runes := []rune(s.Input.Text)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return s.Input.Text
}

// CheckJob runs one submission, waiting out rate limits up to maxWaits times
type CheckJob struct {
	Index      int
	Submission Submission
	ActorID    string
	Checker    Checker
	MaxWaits   int
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Execute executes the check job
func (j *CheckJob) Execute(ctx context.Context) Result {
	res := &CheckResult{Index: j.Index, Submission: j.Submission}
	for {
		report, err := j.Checker.Handle(ctx, j.ActorID, j.Submission.Input)
		if err == nil {
			res.Report = report
			return res
		}

		f, ok := pipeline.AsFailure(err)
		if !ok || f.Kind != pipeline.RateLimited || res.Waits >= j.MaxWaits {
			res.Error = err
			return res
		}
		res.Waits++
		if err := j.Sleep(ctx, f.RetryAfter); err != nil {
			res.Error = err
			return res
		}
	}
}

// CheckResult represents the result of a check job
type CheckResult struct {
	Index      int
	Submission Submission
	Report     *model.CredibilityReport
	Error      error
	Waits      int // Times the job waited for the rate limiter
}

// GetError returns the error from the check result
func (r *CheckResult) GetError() error {
	return r.Error
}

// BatchProcessor processes multiple submissions concurrently
type BatchProcessor struct {
	checker     Checker
	actorID     string
	concurrency int
	maxWaits    int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewBatchProcessor creates a batch processor. Every submission is checked
// as actorID, so the batch shares one rate-limit window; rate-limited
// submissions wait and retry up to maxWaits times.
func NewBatchProcessor(checker Checker, actorID string, concurrency, maxWaits int) *BatchProcessor {
	if maxWaits < 0 {
		maxWaits = 0
	}
	return &BatchProcessor{
		checker:     checker,
		actorID:     actorID,
		concurrency: concurrency,
		maxWaits:    maxWaits,
		sleep:       retry.SleepContext,
	}
}

// WithSleep replaces the rate-limit wait; tests use it to skip delays.
func (b *BatchProcessor) WithSleep(sleep func(context.Context, time.Duration) error) *BatchProcessor {
	b.sleep = sleep
	return b
}

// Process checks every submission and returns results in submission order.
func (b *BatchProcessor) Process(ctx context.Context, subs []Submission) []*CheckResult {
	if len(subs) == 0 {
		return []*CheckResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	// Submit from a separate goroutine so a batch larger than the queues
	// cannot block on undrained results.
	go func() {
		defer pool.Close()
		for i, s := range subs {
			job := &CheckJob{
				Index:      i,
				Submission: s,
				ActorID:    b.actorID,
				Checker:    b.checker,
				MaxWaits:   b.maxWaits,
				Sleep:      b.sleep,
			}
			if !pool.Submit(job) {
				return
			}
		}
	}()

	results := make([]*CheckResult, 0, len(subs))
	done := make(map[int]bool, len(subs))
	for r := range pool.Results() {
		cr := r.(*CheckResult)
		done[cr.Index] = true
		results = append(results, cr)
	}

	// Submissions dropped by a cancelled context still get a result.
	for i, s := range subs {
		if !done[i] {
			results = append(results, &CheckResult{Index: i, Submission: s, Error: fmt.Errorf("not checked: %w", context.Cause(ctx))})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// ProcessFile reads submissions from a file and checks them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*CheckResult, error) {
	subs, err := ReadSubmissions(filePath)
	if err != nil {
		return nil, fmt.Errorf("read submissions: %w", err)
	}

	return b.Process(ctx, subs), nil
}

// ReadSubmissions reads one submission per line. Lines starting with http://
// or https:// are URLs; any other line is news text. Blank lines and #
// comments are skipped and repeated lines are checked once.
func ReadSubmissions(filePath string) ([]Submission, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var subs []Submission
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if seen[text] {
			continue
		}
		seen[text] = true

		in := model.RawInput{Kind: model.KindText, Text: text}
		if lower := strings.ToLower(text); strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			in = model.RawInput{Kind: model.KindURL, URL: text}
		}
		subs = append(subs, Submission{Line: line, Input: in})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return subs, nil
}

// Summary counts batch outcomes
type Summary struct {
	Total      int                          `json:"total"`
	Succeeded  int                          `json:"succeeded"`
	Incomplete int                          `json:"incomplete"` // Succeeded with caveats
	Cached     int                          `json:"cached"`
	Failed     int                          `json:"failed"`
	ByFailure  map[pipeline.FailureKind]int `json:"by_failure,omitempty"`
}

// Summarize counts the outcomes of a batch.
func Summarize(results []*CheckResult) Summary {
	s := Summary{Total: len(results), ByFailure: make(map[pipeline.FailureKind]int)}
	for _, r := range results {
		if r.Error != nil {
			s.Failed++
			if f, ok := pipeline.AsFailure(r.Error); ok {
				s.ByFailure[f.Kind]++
			}
			continue
		}
		s.Succeeded++
		if r.Report.Incomplete() {
			s.Incomplete++
		}
		if r.Report.Cached {
			s.Cached++
		}
	}
	return s
}
