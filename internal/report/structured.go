package report

import (
	"encoding/json"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
)

// Structured is the machine-readable form of a RunResult.
type Structured struct {
	Errors             []issue.Issue     `json:"errors"`
	Warnings           []issue.Issue     `json:"warnings"`
	Messages           []string          `json:"messages"`
	FormattedFileCount int               `json:"formatted_file_count"`
	Languages          []LanguageSummary `json:"languages"`
	TimedOut           bool              `json:"timed_out"`
}

// LanguageSummary condenses one language outcome to counts.
type LanguageSummary struct {
	Language  string         `json:"language"`
	State     pipeline.State `json:"state"`
	Files     int            `json:"files"`
	Formatted int            `json:"formatted"`
	Errors    int            `json:"errors"`
	Warnings  int            `json:"warnings"`
	Infos     int            `json:"infos"`
	Messages  []string       `json:"messages"`
}

// ToStructured converts res. Slices are never nil so they encode as [].
func ToStructured(res RunResult) Structured {
	s := Structured{
		Errors:             nonNil(res.Errors),
		Warnings:           nonNil(res.Warnings),
		Messages:           append([]string{}, res.Messages...),
		FormattedFileCount: res.FormattedFileCount,
		Languages:          make([]LanguageSummary, 0, len(res.Languages)),
		TimedOut:           res.TimedOut,
	}
	for _, lr := range res.Languages {
		s.Languages = append(s.Languages, LanguageSummary{
			Language:  lr.Language,
			State:     lr.State,
			Files:     lr.Files,
			Formatted: lr.Formatted,
			Errors:    len(lr.Errors),
			Warnings:  len(lr.Warnings),
			Infos:     len(lr.Infos),
			Messages:  append([]string{}, lr.Messages...),
		})
	}
	return s
}

// JSON encodes the structured form of res with indentation.
func JSON(res RunResult) ([]byte, error) {
	return json.MarshalIndent(ToStructured(res), "", "  ")
}

func nonNil(issues []issue.Issue) []issue.Issue {
	if issues == nil {
		return []issue.Issue{}
	}
	return issues
}
