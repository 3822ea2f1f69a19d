package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/challenge"
	"github.com/hireloop/jobharvester/internal/crawl"
	"github.com/hireloop/jobharvester/internal/extract"
	"github.com/hireloop/jobharvester/internal/interact"
	"github.com/hireloop/jobharvester/internal/proxy"
	"github.com/hireloop/jobharvester/internal/session"
)

type nopClock struct{}

func (nopClock) Now() time.Time                             { return time.Unix(1700000000, 0) }
func (nopClock) Sleep(context.Context, time.Duration) error { return nil }

type fakeCard struct {
	texts map[string]string
}

func (c *fakeCard) Text(_ context.Context, selector string) (string, error) {
	return c.texts[selector], nil
}

func (c *fakeCard) Attr(context.Context, string, string) (string, error) { return "", nil }

func card(title, company string) *fakeCard {
	return &fakeCard{texts: map[string]string{
		"h2.jobTitle a":                  title,
		"[data-testid=\"company-name\"]": company,
	}}
}

func cards(n int) []crawl.Element {
	out := make([]crawl.Element, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, card("Go Engineer", "Acme Corp"))
	}
	return out
}

// scriptedPage is a results surface whose search form always works and whose
// behavior is controlled by a handful of knobs.
type scriptedPage struct {
	mu         sync.Mutex
	challenged bool
	totalText  string
	cards      []crawl.Element
	title      string
	ops        []string
}

func newScriptedPage() *scriptedPage {
	return &scriptedPage{
		totalText: "1 to 15 of 15 jobs",
		title:     "Go Jobs, Employment",
	}
}

func (p *scriptedPage) Navigate(context.Context, string) error {
	p.recordOp("navigate")
	return nil
}

func (p *scriptedPage) InstallOnNewDocument(context.Context, string) error {
	p.recordOp("install")
	return nil
}

func (p *scriptedPage) recordOp(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}

func (p *scriptedPage) opLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *scriptedPage) URL(context.Context) (string, error) {
	return "https://jobs.example.com/q", nil
}

func (p *scriptedPage) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.challenged {
		return "Just a moment...", nil
	}
	return p.title, nil
}

func (p *scriptedPage) BodyText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.challenged {
		return "Checking your browser before accessing", nil
	}
	return "job listings", nil
}

func (p *scriptedPage) Exists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case "#text-input-what", "#text-input-where", "button[type=\"submit\"]":
		return true, nil
	case ".jobsearch-ResultsList":
		return !p.challenged, nil
	}
	return false, nil
}

func (p *scriptedPage) Text(_ context.Context, selector string) (string, error) {
	if selector == "#searchCountPages" {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.totalText, nil
	}
	return "", nil
}

func (p *scriptedPage) Click(context.Context, string) error { return nil }
func (p *scriptedPage) Clear(context.Context, string) error { return nil }

func (p *scriptedPage) TypeText(context.Context, string, string, time.Duration) error { return nil }
func (p *scriptedPage) Evaluate(context.Context, string) error                        { return nil }

func (p *scriptedPage) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (p *scriptedPage) Elements(_ context.Context, selector string) ([]crawl.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == ".job_seen_beacon" {
		return p.cards, nil
	}
	return nil, nil
}

// controlsMissingPage has no search form at all.
type controlsMissingPage struct{ scriptedPage }

func (p *controlsMissingPage) Exists(_ context.Context, selector string) (bool, error) {
	if selector == ".jobsearch-ResultsList" {
		return true, nil
	}
	return false, nil
}

type fakeBrowser struct {
	mu    sync.Mutex
	pages []crawl.Page
	opens int
}

func (b *fakeBrowser) NewPage(context.Context, *session.Session) (crawl.Page, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var page crawl.Page
	if b.opens < len(b.pages) {
		page = b.pages[b.opens]
	} else {
		page = b.pages[len(b.pages)-1]
	}
	b.opens++
	return page, func() {}, nil
}

func (b *fakeBrowser) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

type harness struct {
	orchestrator *Orchestrator
	browser      *fakeBrowser
	pool         *session.Pool
}

func newHarness(t *testing.T, cfg Config, filters []crawl.RecordFilter, pages ...crawl.Page) *harness {
	t.Helper()
	clock := nopClock{}
	pool := session.NewPool(
		session.Config{Capacity: 10},
		proxy.NewRoundRobin(nil),
		zap.NewNop(),
	)
	browser := &fakeBrowser{pages: pages}
	driver := interact.NewDriver(interact.Config{LandingURL: "https://jobs.example.com/"}, clock, zap.NewNop())
	resolver := challenge.New(challenge.Config{Rounds: 2, Interval: time.Millisecond}, clock, zap.NewNop())
	engine := extract.NewEngine(extract.Config{Source: "jobsearch"}, clock, zap.NewNop())
	return &harness{
		orchestrator: New(cfg, pool, browser, driver, resolver, engine, filters, clock, zap.NewNop()),
		browser:      browser,
		pool:         pool,
	}
}

func TestRun_TwoTermsThreePagesEach(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.cards = cards(10)
	h := newHarness(t, Config{Concurrency: 1}, nil, page)

	tasks := crawl.GenerateTasks([]string{"golang developer", "backend engineer"}, "Austin, TX", "", 3)
	result := h.orchestrator.Run(context.Background(), tasks)

	require.Len(t, result.Records, 20, "page 0 of each term yields 10 records")
	require.Equal(t, 6, result.Counters.TasksProcessed)
	require.Zero(t, result.Counters.TasksFailed)
}

func TestRun_ChallengeTimeoutTwiceThenSuccess(t *testing.T) {
	t.Parallel()

	burnt1 := newScriptedPage()
	burnt1.challenged = true
	burnt2 := newScriptedPage()
	burnt2.challenged = true
	good := newScriptedPage()
	good.cards = cards(5)

	h := newHarness(t, Config{Concurrency: 1, MaxRetries: 2}, nil, burnt1, burnt2, good)

	tasks := []crawl.SearchTask{{SearchTerm: "golang developer", Location: "Austin, TX"}}
	result := h.orchestrator.Run(context.Background(), tasks)

	require.Equal(t, 1, result.Counters.TasksProcessed)
	require.Zero(t, result.Counters.TasksFailed, "third attempt succeeds, task is done")
	require.Len(t, result.Records, 5)

	created, retired := h.pool.Stats()
	require.Equal(t, 3, created)
	require.Equal(t, 2, retired, "each challenge timeout replaces the session")
}

func TestRun_ChallengeTimeoutExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.challenged = true
	h := newHarness(t, Config{Concurrency: 1, MaxRetries: 2}, nil, page)

	result := h.orchestrator.Run(context.Background(), []crawl.SearchTask{{SearchTerm: "golang"}})

	require.Equal(t, 1, result.Counters.TasksProcessed)
	require.Equal(t, 1, result.Counters.TasksFailed)
	require.Equal(t, 3, h.browser.openCount(), "three attempts total")
}

func TestRun_FingerprintInstalledBeforeFirstNavigation(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.cards = cards(1)
	h := newHarness(t, Config{Concurrency: 1}, nil, page)

	result := h.orchestrator.Run(context.Background(), []crawl.SearchTask{{SearchTerm: "golang"}})
	require.Zero(t, result.Counters.TasksFailed)

	ops := page.opLog()
	require.NotEmpty(t, ops)
	require.Equal(t, "install", ops[0], "new-document script must be registered before any navigation")
	require.Contains(t, ops, "navigate")
}

func TestRun_ZeroMaxRetriesFailsAfterSingleAttempt(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.challenged = true
	h := newHarness(t, Config{Concurrency: 1, MaxRetries: 0}, nil, page)

	result := h.orchestrator.Run(context.Background(), []crawl.SearchTask{{SearchTerm: "golang"}})

	require.Equal(t, 1, result.Counters.TasksProcessed)
	require.Equal(t, 1, result.Counters.TasksFailed)
	require.Equal(t, 1, h.browser.openCount(), "no retry budget means a single attempt")
}

func TestRun_MissingControlsSkipsWithoutRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Concurrency: 1, MaxRetries: 2}, nil, &controlsMissingPage{})

	result := h.orchestrator.Run(context.Background(), []crawl.SearchTask{{SearchTerm: "golang"}})

	require.Equal(t, 1, result.Counters.TasksProcessed)
	require.Zero(t, result.Counters.TasksFailed)
	require.Equal(t, 1, result.Counters.TasksSkipped)
	require.Equal(t, 1, h.browser.openCount(), "skip must not consume the retry budget")
}

func TestRun_RecordFiltersApplied(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.cards = []crawl.Element{
		card("Go Engineer", "Acme Corp"),
		card("Go Engineer", "$85,000 a year"),
	}
	salaryLikeCompany := crawl.RecordFilterFunc(func(r crawl.RawJobRecord) bool {
		return r.Company != "$85,000 a year"
	})
	h := newHarness(t, Config{Concurrency: 1}, []crawl.RecordFilter{salaryLikeCompany}, page)

	result := h.orchestrator.Run(context.Background(), []crawl.SearchTask{{SearchTerm: "golang"}})

	require.Len(t, result.Records, 1)
	require.Equal(t, "Acme Corp", result.Records[0].Company)
}

func TestRun_ConcurrentWorkersAggregateAllRecords(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.cards = cards(2)
	h := newHarness(t, Config{Concurrency: 3}, nil, page)

	tasks := crawl.GenerateTasks([]string{"a", "b", "c"}, "Remote", "", 1)
	result := h.orchestrator.Run(context.Background(), tasks)

	require.Equal(t, 3, result.Counters.TasksProcessed)
	require.Zero(t, result.Counters.TasksFailed)
	require.Len(t, result.Records, 6)
	require.LessOrEqual(t, h.pool.ActiveCount(), 10)
}

func TestRun_SubsequentPageShortCircuitsOnDeclaredTotal(t *testing.T) {
	t.Parallel()

	page := newScriptedPage()
	page.cards = cards(10)
	page.totalText = "15 jobs"
	h := newHarness(t, Config{Concurrency: 1}, nil, page)

	result := h.orchestrator.Run(context.Background(), []crawl.SearchTask{
		{SearchTerm: "golang", PageIndex: 2},
	})

	require.Equal(t, 1, result.Counters.TasksProcessed)
	require.Zero(t, result.Counters.TasksFailed)
	require.Empty(t, result.Records, "no-more-pages completes with zero records")
}
