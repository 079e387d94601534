// Package report merges per-language pipeline results and renders them as
// text for terminals or as structured data for programmatic callers.
package report

import (
	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
)

// LastCheckLog is the side log the text report points readers to.
const LastCheckLog = "Enforcer_last_check.log"

// RunResult is the merged outcome of one check. Infos are kept per
// language and excluded from the totals.
type RunResult struct {
	Errors             []issue.Issue             `json:"errors"`
	Warnings           []issue.Issue             `json:"warnings"`
	Messages           []string                  `json:"messages"`
	FormattedFileCount int                       `json:"formatted_file_count"`
	Languages          []pipeline.LanguageResult `json:"languages"`
	TimedOut           bool                      `json:"timed_out"`

	// Notices are the messages not tied to a language, such as scan
	// diagnostics. They are also part of Messages.
	Notices []string `json:"-"`
}

// Aggregator accumulates language results in the order they are added.
// It is not safe for concurrent use.
type Aggregator struct {
	result RunResult
}

// NewAggregator starts a result carrying run-level notices.
func NewAggregator(notices ...string) *Aggregator {
	a := &Aggregator{}
	a.AddNotices(notices...)
	return a
}

// AddNotices records messages that belong to no language.
func (a *Aggregator) AddNotices(msgs ...string) {
	a.result.Notices = append(a.result.Notices, msgs...)
	a.result.Messages = append(a.result.Messages, msgs...)
}

// Add merges one language. Nothing is truncated.
func (a *Aggregator) Add(lr pipeline.LanguageResult) {
	a.result.Errors = append(a.result.Errors, lr.Errors...)
	a.result.Warnings = append(a.result.Warnings, lr.Warnings...)
	a.result.Messages = append(a.result.Messages, lr.Messages...)
	a.result.FormattedFileCount += lr.Formatted
	a.result.Languages = append(a.result.Languages, lr)
}

// MarkTimedOut flags the run as cut short by the overall deadline.
func (a *Aggregator) MarkTimedOut(notice string) {
	a.result.TimedOut = true
	if notice != "" {
		a.AddNotices(notice)
	}
}

// Result returns a copy of the accumulated result.
func (a *Aggregator) Result() RunResult {
	r := a.result
	r.Errors = append([]issue.Issue{}, r.Errors...)
	r.Warnings = append([]issue.Issue{}, r.Warnings...)
	r.Messages = append([]string{}, r.Messages...)
	r.Notices = append([]string{}, r.Notices...)
	r.Languages = append([]pipeline.LanguageResult{}, r.Languages...)
	return r
}

// FromPipeline aggregates a pipeline result in its language order.
func FromPipeline(res *pipeline.Result) RunResult {
	a := NewAggregator()
	if res == nil {
		return a.Result()
	}
	a.AddNotices(res.Messages...)
	for _, lr := range res.Languages {
		a.Add(lr)
	}
	return a.Result()
}
