package pipeline

import (
	"strconv"
	"time"

	"github.com/JakeFAU/paperscout/internal/crawler"
)

// EventRunCompleted is the type of the event published after every run.
const EventRunCompleted = "run.completed"

// RunEvent summarizes a finished run for downstream consumers.
type RunEvent struct {
	Type             string   `json:"type"`
	RunID            string   `json:"run_id"`
	OK               bool     `json:"ok"`
	Query            string   `json:"query"`
	Theme            string   `json:"theme"`
	CountCollected   int      `json:"count_collected"`
	CountAfterFilter int      `json:"count_after_theme_filter"`
	Items            int      `json:"items"`
	Errors           []string `json:"errors"`
	SavedTo          string   `json:"saved_to"`
	BundleFile       string   `json:"bundle_html_file"`
	FinishedAt       string   `json:"finished_at"`
}

// NewRunEvent builds the completion event for result.
func NewRunEvent(result crawler.RunResult) RunEvent {
	return RunEvent{
		Type:             EventRunCompleted,
		RunID:            result.RunID,
		OK:               result.OK,
		Query:            result.Request.Query,
		Theme:            result.Request.Theme,
		CountCollected:   result.CountCollected,
		CountAfterFilter: result.CountAfterFilter,
		Items:            len(result.Items),
		Errors:           append([]string{}, result.Errors...),
		SavedTo:          result.SavedTo,
		BundleFile:       result.BundleFile,
		FinishedAt:       result.FinishedAt.UTC().Format(time.RFC3339),
	}
}

// Attributes are attached to the published message for subscription filters.
func (e RunEvent) Attributes() map[string]string {
	return map[string]string{
		"type":   e.Type,
		"run_id": e.RunID,
		"ok":     strconv.FormatBool(e.OK),
	}
}
