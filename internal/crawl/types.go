// Package crawl defines core types shared across the crawl subsystems.
package crawl

import "time"

// SearchTask describes one unit of crawl work: a single results page of a
// single search term. Tasks are immutable once generated.
type SearchTask struct {
	SearchTerm string
	Location   string
	SalaryHint string
	PageIndex  int
}

// IsFirstPage reports whether the task targets the first results page, which
// requires a search-form submission rather than a pagination step.
func (t SearchTask) IsFirstPage() bool {
	return t.PageIndex == 0
}

// TaskStatus is the terminal state of one task in the pipeline.
type TaskStatus string

// Task terminal states recorded by the orchestrator.
const (
	TaskDone    TaskStatus = "done"
	TaskSkipped TaskStatus = "skipped"
	TaskFailed  TaskStatus = "failed"
)

// ChallengeState classifies a navigation attempt with respect to anti-bot
// interstitials. It is transient and never persisted across tasks.
type ChallengeState string

// Challenge states. CaptchaRequired is internal to the resolver; Resolve only
// ever returns NoChallenge, Resolved, or TimedOut.
const (
	NoChallenge       ChallengeState = "no_challenge"
	ChallengeDetected ChallengeState = "challenge_detected"
	Resolved          ChallengeState = "resolved"
	CaptchaRequired   ChallengeState = "captcha_required"
	TimedOut          ChallengeState = "timed_out"
)

// RawJobRecord is the unnormalized record produced by the extraction engine.
// Title and Company are the only required fields; everything else degrades to
// an empty string when no selector matches.
type RawJobRecord struct {
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Salary      string    `json:"salary"`
	Description string    `json:"description"`
	ExternalID  string    `json:"external_id"`
	DetailURL   string    `json:"detail_url"`
	PostedDate  string    `json:"posted_date"`
	JobTypeText string    `json:"job_type_text"`
	Source      string    `json:"source"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Counters tracks per-run task statistics.
type Counters struct {
	TasksProcessed int `json:"tasks_processed"`
	TasksFailed    int `json:"tasks_failed"`
	TasksSkipped   int `json:"tasks_skipped"`
	RecordsDropped int `json:"records_dropped"`
}

// Result accumulates extracted records and counters for one crawl run. It is
// owned by the orchestrator and returned when the task queue is exhausted;
// records keep no cross-task ordering guarantee beyond completeness.
type Result struct {
	Records  []RawJobRecord `json:"records"`
	Counters Counters       `json:"counters"`
}
