package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/credence/internal/extract"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/ratelimit"
	"github.com/ppiankov/credence/internal/synth"
)

// FailureKind is the class of a failed check
type FailureKind string

const (
	InputError          FailureKind = "input_error"          // The submission itself is unusable
	RateLimited         FailureKind = "rate_limited"         // The actor exceeded the admission window
	UpstreamUnavailable FailureKind = "upstream_unavailable" // The oracle, a fetch or a backend failed
)

// Stage is a step of the pipeline state machine
type Stage string

const (
	StageAdmitted     Stage = "admitted"
	StageNormalizing  Stage = "normalizing"
	StageCacheCheck   Stage = "cache-check"
	StageExtracting   Stage = "extracting"
	StageSearching    Stage = "searching"
	StageSynthesizing Stage = "synthesizing"
	StageCaching      Stage = "caching"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Failure reasons. They are stable and safe to show in API responses.
const (
	ReasonContentTooLarge     = "content_too_large"
	ReasonUnsupportedInput    = "unsupported_input"
	ReasonSourceUnavailable   = "source_unavailable"
	ReasonMissingActor        = "missing_actor"
	ReasonRateLimited         = "rate_limited"
	ReasonAnalysisUnavailable = "analysis_unavailable"
	ReasonLimiterUnavailable  = "limiter_unavailable"
	ReasonTimeout             = "timeout"
	ReasonCanceled            = "canceled"
)

// Failure is the only error Handle returns. Err keeps the underlying cause
// for logs; it is never shown to users.
type Failure struct {
	Kind       FailureKind
	Reason     string
	RetryAfter time.Duration // Set for RateLimited
	Stage      Stage         // Stage the pipeline was in when it failed
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at %s (%s): %v", f.Kind, f.Stage, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s at %s (%s)", f.Kind, f.Stage, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (f *Failure) RetryAfterSeconds() int {
	if f.RetryAfter <= 0 {
		return 0
	}
	return int((f.RetryAfter + time.Second - 1) / time.Second)
}

var userMessages = map[string]map[string]string{
	"en": {
		ReasonContentTooLarge:     "The text is too long to check. Please shorten it and try again.",
		ReasonUnsupportedInput:    "This submission cannot be checked. Please send news text, a link or a clear image.",
		ReasonSourceUnavailable:   "The content of this link could not be retrieved. Please try another link or send the text.",
		ReasonMissingActor:        "The request could not be identified.",
		ReasonRateLimited:         "You are sending checks too often. Please wait %d seconds.",
		ReasonAnalysisUnavailable: "The analysis service is unavailable right now. Please try again later.",
		ReasonLimiterUnavailable:  "The service is busy right now. Please try again later.",
		ReasonTimeout:             "The check took too long. Please try again later.",
		ReasonCanceled:            "The check was cancelled.",
	},
	"az": {
		ReasonContentTooLarge:     "Mətn yoxlamaq üçün çox uzundur. Zəhmət olmasa qısaldıb yenidən göndərin.",
		ReasonUnsupportedInput:    "Bu məzmun yoxlana bilmir. Zəhmət olmasa xəbər mətni, link və ya aydın şəkil göndərin.",
		ReasonSourceUnavailable:   "Üzr istəyirəm, bu linkdən məzmun çəkə bilmədim. Zəhmət olmasa başqa bir link sınayın.",
		ReasonMissingActor:        "Sorğunun göndəricisi müəyyən edilə bilmədi.",
		ReasonRateLimited:         "Çox tez-tez sorğu göndərirsiniz. Zəhmət olmasa %d saniyə gözləyin.",
		ReasonAnalysisUnavailable: "Üzr istəyirəm, analiz xidməti hazırda əlçatan deyil. Zəhmət olmasa daha sonra yenidən cəhd edin.",
		ReasonLimiterUnavailable:  "Xidmət hazırda məşğuldur. Zəhmət olmasa daha sonra yenidən cəhd edin.",
		ReasonTimeout:             "Yoxlama çox uzun çəkdi. Zəhmət olmasa daha sonra yenidən cəhd edin.",
		ReasonCanceled:            "Yoxlama ləğv edildi.",
	},
}

// UserMessage returns a short, non-technical message for the failure in the
// given locale ("en" or "az"). Unknown locales fall back to English.
func (f *Failure) UserMessage(locale string) string {
	messages, ok := userMessages[locale]
	if !ok {
		messages = userMessages["en"]
	}
	msg, ok := messages[f.Reason]
	if !ok {
		msg = messages[ReasonAnalysisUnavailable]
	}
	if f.Reason == ReasonRateLimited {
		return fmt.Sprintf(msg, max(f.RetryAfterSeconds(), 1))
	}
	return msg
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// classify maps a stage error onto the failure taxonomy.
func classify(stage Stage, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	f := &Failure{Kind: UpstreamUnavailable, Reason: ReasonAnalysisUnavailable, Stage: stage, Err: err}
	switch {
	case errors.Is(err, normalize.ErrContentTooLarge):
		f.Kind, f.Reason = InputError, ReasonContentTooLarge
	case errors.Is(err, normalize.ErrUnsupportedInput):
		f.Kind, f.Reason = InputError, ReasonUnsupportedInput
	case errors.Is(err, normalize.ErrSourceUnavailable):
		f.Reason = ReasonSourceUnavailable
	case errors.Is(err, ratelimit.ErrMissingActor):
		f.Kind, f.Reason = InputError, ReasonMissingActor
	case errors.Is(err, context.Canceled):
		f.Reason = ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		f.Reason = ReasonTimeout
	case errors.Is(err, extract.ErrAnalysisUnavailable), errors.Is(err, synth.ErrAnalysisUnavailable):
		f.Reason = ReasonAnalysisUnavailable
	}
	return f
}
