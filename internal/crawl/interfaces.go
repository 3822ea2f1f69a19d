package crawl

import (
	"context"
	"time"
)

// Element is a handle to one DOM element, typically a job card. Selector
// queries are scoped to the element's subtree. Implementations return an
// empty string, not an error, when a selector has no match.
type Element interface {
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector, name string) (string, error)
}

// Page is the capability surface the crawl engine needs from an automated
// browser view. Any automation technology offering these operations is
// sufficient; the repo ships a chromedp implementation.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// InstallOnNewDocument registers a script that runs in every document the
	// page commits from now on, before the document's own scripts. Plain
	// Evaluate only reaches the current document; navigation discards it.
	InstallOnNewDocument(ctx context.Context, script string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	Exists(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	TypeText(ctx context.Context, selector, text string, perKey time.Duration) error
	Evaluate(ctx context.Context, expression string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Elements(ctx context.Context, selector string) ([]Element, error)
}

// Clock abstracts time for the resolver and orchestrator so tests can run
// without real timers. Sleep must honor context cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RecordFilter is a pass/fail gate applied by the orchestrator before a
// record is accepted into the run result. Filter logic (company exclusion
// lists, salary-shaped company names) lives outside the crawl core.
type RecordFilter interface {
	Keep(record RawJobRecord) bool
}

// RecordFilterFunc adapts a plain function to RecordFilter.
type RecordFilterFunc func(record RawJobRecord) bool

// Keep implements RecordFilter.
func (f RecordFilterFunc) Keep(record RawJobRecord) bool {
	return f(record)
}
