package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/ratelimit"
	"github.com/ppiankov/credence/internal/retry"
	"github.com/ppiankov/credence/internal/validate"
)

// Options tunes the aggregator
type Options struct {
	MaxResults    int           // Cap per scoped query (official, news)
	SourceResults int           // Cap per claimed-source query
	Recency       time.Duration // Trailing search window
	GroupTimeout  time.Duration // Bound on each group including retries
	MaxAttempts   int           // Per group, including the first
	Country       string
	Language      string
}

// DefaultOptions mirrors the default configuration.
func DefaultOptions() Options {
	return Options{
		MaxResults:    5,
		SourceResults: 3,
		Recency:       7 * 24 * time.Hour,
		GroupTimeout:  10 * time.Second,
		MaxAttempts:   3,
	}
}

// Observer receives the outcome of every search group
type Observer interface {
	ObserveSearchGroup(group model.EvidenceGroup, status model.GroupStatus, elapsed time.Duration)
}

// Aggregator runs the search groups in parallel and merges their results
type Aggregator struct {
	provider   Provider
	domains    model.DomainSets
	classifier *validate.DomainClassifier
	quota      *ratelimit.QuotaLimiter
	opts       Options
	retry      retry.Config
	observer   Observer
	now        func() time.Time
	log        logger.Logger
}

// NewAggregator creates an aggregator. quota may be nil.
func NewAggregator(provider Provider, domains model.DomainSets, quota *ratelimit.QuotaLimiter, opts Options, log logger.Logger) *Aggregator {
	def := DefaultOptions()
	if opts.MaxResults <= 0 {
		opts.MaxResults = def.MaxResults
	}
	if opts.SourceResults <= 0 {
		opts.SourceResults = def.SourceResults
	}
	if opts.Recency <= 0 {
		opts.Recency = def.Recency
	}
	if opts.GroupTimeout <= 0 {
		opts.GroupTimeout = def.GroupTimeout
	}

	rc := retry.DefaultConfig()
	if opts.MaxAttempts > 0 {
		rc.MaxAttempts = opts.MaxAttempts
	}
	rc.IsRetryable = IsRetryable

	return &Aggregator{
		provider:   provider,
		domains:    domains,
		classifier: validate.NewDomainClassifier(domains),
		quota:      quota,
		opts:       opts,
		retry:      rc,
		now:        time.Now,
		log:        logger.OrNop(log),
	}
}

// WithSleep replaces the backoff sleep; tests use it to skip delays.
func (a *Aggregator) WithSleep(sleep func(context.Context, time.Duration) error) *Aggregator {
	a.retry.Sleep = sleep
	return a
}

// WithObserver reports group outcomes to o.
func (a *Aggregator) WithObserver(o Observer) *Aggregator {
	a.observer = o
	return a
}

type groupJob struct {
	key    string
	group  model.EvidenceGroup
	source *model.ClaimedSource
	query  Query
}

type groupResult struct {
	evidence []model.SearchEvidence
	outcome  model.GroupOutcome
}

// Gather searches the official allow-list, the news allow-list and each
// claimed source concurrently. A failing group never blocks the others;
// when every group fails the set is marked Degraded. text is only used to
// build a query when no keywords are available.
func (a *Aggregator) Gather(ctx context.Context, text string, keywords []string, sources []model.ClaimedSource) model.EvidenceSet {
	terms := strings.Join(keywords, " ")
	if strings.TrimSpace(terms) == "" {
		terms = leadingWords(text, 8)
	}

	jobs := a.plan(terms, sources)
	results := make([]groupResult, len(jobs))

	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.runGroup(ctx, jobs[i])
		}(i)
	}
	wg.Wait()

	return a.merge(keywords, jobs, results)
}

func (a *Aggregator) plan(terms string, sources []model.ClaimedSource) []groupJob {
	base := Query{
		Terms:      terms,
		Recency:    a.opts.Recency,
		MaxResults: a.opts.MaxResults,
		Country:    a.opts.Country,
		Language:   a.opts.Language,
	}

	official := base
	official.Domains = a.domains.Official()
	news := base
	news.Domains = a.domains.News()

	jobs := []groupJob{
		{key: model.OutcomeKey(model.GroupOfficial, ""), group: model.GroupOfficial, query: official},
		{key: model.OutcomeKey(model.GroupNews, ""), group: model.GroupNews, query: news},
	}
	for i := range sources {
		src := sources[i]
		q := base
		q.Terms = strings.TrimSpace(`"` + strings.ReplaceAll(src.Name, `"`, "") + `" ` + terms)
		q.MaxResults = a.opts.SourceResults
		jobs = append(jobs, groupJob{
			key:    model.OutcomeKey(model.GroupSource, src.Name),
			group:  model.GroupSource,
			source: &src,
			query:  q,
		})
	}
	return jobs
}

func (a *Aggregator) runGroup(ctx context.Context, job groupJob) groupResult {
	start := a.now()
	groupCtx, cancel := context.WithTimeout(ctx, a.opts.GroupTimeout)
	defer cancel()

	var hits []Result
	attempts, err := retry.Do(groupCtx, a.retry, func(ctx context.Context) error {
		if err := a.quota.Wait(ctx, "search:"+a.provider.Name()); err != nil {
			return err
		}
		var err error
		hits, err = a.provider.Search(ctx, job.query)
		return err
	})

	var res groupResult
	res.outcome.Attempts = attempts
	if err != nil {
		res.outcome.Status = model.GroupFailed
		res.outcome.Error = describeError(err)
		a.log.Warn("search group failed",
			logger.String("group", job.key),
			logger.Int("attempts", attempts),
			logger.Error(err))
	} else {
		res.evidence = a.toEvidence(job, hits)
		res.outcome.Status = model.GroupOK
		if len(res.evidence) == 0 {
			res.outcome.Status = model.GroupEmpty
		}
	}

	if a.observer != nil {
		a.observer.ObserveSearchGroup(job.group, res.outcome.Status, a.now().Sub(start))
	}
	return res
}

func (a *Aggregator) toEvidence(job groupJob, hits []Result) []model.SearchEvidence {
	recency := fmt.Sprintf("%dd", recencyDays(a.opts.Recency))
	now := a.now()

	var out []model.SearchEvidence
	for _, h := range hits {
		if len(out) == job.query.MaxResults {
			break
		}
		// Providers do not always honour site: filters
		if !a.classifier.InGroup(h.Link, job.group) {
			continue
		}
		ev := model.SearchEvidence{
			Group:       job.group,
			Title:       strings.TrimSpace(h.Title),
			Snippet:     strings.TrimSpace(h.Snippet),
			URL:         h.Link,
			Host:        validate.Host(h.Link),
			Recency:     recency,
			PublishedAt: ParsePublished(h.Snippet, now),
		}
		if job.source != nil {
			ev.Source = job.source.Name
		}
		out = append(out, ev)
	}
	return out
}

// merge deduplicates by canonical URL in priority order: official, news,
// then per-source groups in extraction order. The first occurrence wins.
func (a *Aggregator) merge(keywords []string, jobs []groupJob, results []groupResult) model.EvidenceSet {
	set := model.EvidenceSet{
		Keywords: keywords,
		Official: []model.SearchEvidence{},
		News:     []model.SearchEvidence{},
		BySource: []model.SourceEvidence{},
		Outcomes: make(map[string]model.GroupOutcome, len(jobs)),
	}

	seen := make(map[string]bool)
	keep := func(in []model.SearchEvidence) []model.SearchEvidence {
		out := []model.SearchEvidence{}
		for _, ev := range in {
			key := CanonicalURL(ev.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ev)
		}
		return out
	}

	failed := 0
	for i, job := range jobs {
		res := results[i]
		kept := keep(res.evidence)
		outcome := res.outcome
		outcome.Results = len(kept)
		if outcome.Status == model.GroupOK && len(kept) == 0 {
			outcome.Status = model.GroupEmpty
		}
		if outcome.Status == model.GroupFailed {
			failed++
		}
		set.Outcomes[job.key] = outcome

		switch job.group {
		case model.GroupOfficial:
			set.Official = kept
		case model.GroupNews:
			set.News = kept
		case model.GroupSource:
			set.BySource = append(set.BySource, model.SourceEvidence{Source: *job.source, Results: kept})
		}
	}

	set.Degraded = len(jobs) > 0 && failed == len(jobs)
	return set
}

// describeError gives a short reason without upstream payloads.
func describeError(err error) string {
	var searchErr *Error
	switch {
	case errors.As(err, &searchErr) && searchErr.StatusCode == 429:
		return "rate limited by search provider"
	case errors.As(err, &searchErr) && searchErr.StatusCode >= 500:
		return "search provider unavailable"
	case errors.As(err, &searchErr) && searchErr.StatusCode != 0:
		return fmt.Sprintf("search rejected (status %d)", searchErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "search timed out"
	case errors.Is(err, context.Canceled):
		return "search cancelled"
	default:
		return "search failed"
	}
}

func leadingWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
