// Package interact performs the human-like browser sequences that take a
// task from a blank view to a results view: search-form submission for first
// pages, pagination steps for the rest, plus the per-session warm-up and
// fingerprint hardening that precede both.
package interact

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/crawl"
)

// PageStep is the outcome of a pagination attempt.
type PageStep string

// Pagination outcomes.
const (
	StepAdvanced    PageStep = "advanced"
	StepNoMorePages PageStep = "no_more_pages"
	StepError       PageStep = "error"
)

// Config tunes the driver. Selector lists are ordered fallbacks; zero values
// take target-sized defaults.
type Config struct {
	LandingURL        string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	ResultsPerPage    int

	QuerySelectors        []string
	LocationSelectors     []string
	SubmitSelectors       []string
	NextPageSelectors     []string
	PopupCloseSelectors   []string
	ResultsCountSelectors []string

	// KeyDelay paces individual keystrokes; FieldDelay paces the gap between
	// form fields. Human-pacing only, zeroed in tests.
	KeyDelay   crawl.DelayPolicy
	FieldDelay crawl.DelayPolicy
}

func (c Config) withDefaults() Config {
	if c.LandingURL == "" {
		c.LandingURL = "https://www.indeed.com/"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.ResultsPerPage <= 0 {
		c.ResultsPerPage = 15
	}
	if len(c.QuerySelectors) == 0 {
		c.QuerySelectors = []string{"#text-input-what", "input[name=\"q\"]", "#what"}
	}
	if len(c.LocationSelectors) == 0 {
		c.LocationSelectors = []string{"#text-input-where", "input[name=\"l\"]", "#where"}
	}
	if len(c.SubmitSelectors) == 0 {
		c.SubmitSelectors = []string{
			"button[type=\"submit\"]",
			".yosegi-InlineWhatWhere-primaryButton",
			"#fj",
		}
	}
	if len(c.NextPageSelectors) == 0 {
		c.NextPageSelectors = []string{
			"a[data-testid=\"pagination-page-next\"]",
			"a[aria-label=\"Next Page\"]",
			"a[aria-label=\"Next\"]",
			".pagination-list li:last-child a",
			"a.np",
		}
	}
	if len(c.PopupCloseSelectors) == 0 {
		c.PopupCloseSelectors = []string{
			"#mosaic-desktopserpjapopup button[aria-label=\"close\"]",
			".popover-x-button-close",
			"button[aria-label=\"Close\"]",
			"#onetrust-accept-btn-handler",
		}
	}
	if len(c.ResultsCountSelectors) == 0 {
		c.ResultsCountSelectors = []string{
			".jobsearch-JobCountAndSortPane-jobCount",
			"#searchCountPages",
			"div[data-testid=\"searchCount\"]",
		}
	}
	return c
}

// Driver executes interaction sequences against a Page.
type Driver struct {
	cfg    Config
	clock  crawl.Clock
	logger *zap.Logger
}

// NewDriver builds a driver. A nil clock uses real time.
func NewDriver(cfg Config, clock crawl.Clock, logger *zap.Logger) *Driver {
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg.withDefaults(), clock: clock, logger: logger}
}

// Harden installs the fingerprint-softening bundle. Registered as a
// new-document script so every navigation re-applies it; evaluated once so
// the already-open document is covered too.
func (d *Driver) Harden(ctx context.Context, page crawl.Page) error {
	if err := page.InstallOnNewDocument(ctx, fingerprintScript); err != nil {
		return fmt.Errorf("install fingerprint bundle: %w", err)
	}
	if err := page.Evaluate(ctx, fingerprintScript); err != nil {
		return fmt.Errorf("apply fingerprint bundle: %w", err)
	}
	return nil
}

// navigate bounds one navigation with the driver's timeout, independent of
// however much of the task deadline remains.
func (d *Driver) navigate(ctx context.Context, page crawl.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	return page.Navigate(navCtx, url)
}

// WarmUp visits the landing surface and scrolls around without extracting
// anything, building benign history before the session issues a search.
func (d *Driver) WarmUp(ctx context.Context, page crawl.Page) error {
	if err := d.navigate(ctx, page, d.cfg.LandingURL); err != nil {
		return fmt.Errorf("warm-up navigation: %w", err)
	}
	if err := d.clock.Sleep(ctx, d.cfg.SettleDelay); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := page.Evaluate(ctx, warmUpScrollScript); err != nil {
			break
		}
		if err := d.cfg.FieldDelay.Wait(ctx, d.clock); err != nil {
			return err
		}
	}
	_ = page.Evaluate(ctx, scrollBackScript)
	return nil
}

// SubmitSearch navigates to the landing surface and submits the search form
// for a first-page task. It returns (false, nil) when the form controls
// cannot be located: a recoverable skip, because the target's structure has
// likely changed and an immediate retry will not help.
func (d *Driver) SubmitSearch(ctx context.Context, page crawl.Page, task crawl.SearchTask) (bool, error) {
	if err := d.navigate(ctx, page, d.cfg.LandingURL); err != nil {
		return false, fmt.Errorf("navigate landing: %w", err)
	}
	if err := d.clock.Sleep(ctx, d.cfg.SettleDelay); err != nil {
		return false, err
	}
	d.dismissPopups(ctx, page)

	query := task.SearchTerm
	if task.SalaryHint != "" {
		query = query + " " + task.SalaryHint
	}

	queryInput, found := d.firstExisting(ctx, page, d.cfg.QuerySelectors)
	if !found {
		d.logger.Warn("search query input not found", zap.Strings("selectors", d.cfg.QuerySelectors))
		return false, nil
	}
	if err := d.fillField(ctx, page, queryInput, query); err != nil {
		return false, err
	}

	locationInput, found := d.firstExisting(ctx, page, d.cfg.LocationSelectors)
	if !found {
		d.logger.Warn("location input not found", zap.Strings("selectors", d.cfg.LocationSelectors))
		return false, nil
	}
	if err := d.fillField(ctx, page, locationInput, task.Location); err != nil {
		return false, err
	}

	submit, found := d.firstExisting(ctx, page, d.cfg.SubmitSelectors)
	if !found {
		d.logger.Warn("submit control not found", zap.Strings("selectors", d.cfg.SubmitSelectors))
		return false, nil
	}
	if err := page.Click(ctx, submit); err != nil {
		return false, fmt.Errorf("submit search: %w", err)
	}
	if err := d.clock.Sleep(ctx, d.cfg.SettleDelay); err != nil {
		return false, err
	}
	return true, nil
}

// AdvancePage moves a results view to the next page. It short-circuits to
// StepNoMorePages when the declared result total cannot support the page the
// task wants, avoiding a wasted request and a false failure.
func (d *Driver) AdvancePage(ctx context.Context, page crawl.Page, task crawl.SearchTask) (PageStep, error) {
	d.dismissPopups(ctx, page)

	if total, ok := d.declaredTotal(ctx, page); ok {
		if total <= task.PageIndex*d.cfg.ResultsPerPage {
			d.logger.Debug("declared total exhausted",
				zap.Int("total", total),
				zap.Int("page_index", task.PageIndex),
			)
			return StepNoMorePages, nil
		}
	}

	next, found := d.firstExisting(ctx, page, d.cfg.NextPageSelectors)
	if !found {
		return StepNoMorePages, nil
	}
	if err := page.Click(ctx, next); err != nil {
		d.logger.Warn("next-page click failed", zap.String("selector", next), zap.Error(err))
		return StepError, nil
	}
	if err := d.clock.Sleep(ctx, d.cfg.SettleDelay); err != nil {
		return StepError, err
	}
	return StepAdvanced, nil
}

// fillField clears and types with randomized inter-keystroke pacing, then
// waits the inter-field delay.
func (d *Driver) fillField(ctx context.Context, page crawl.Page, selector, value string) error {
	if err := page.Clear(ctx, selector); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}
	if err := page.TypeText(ctx, selector, value, d.cfg.KeyDelay.Duration()); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return d.cfg.FieldDelay.Wait(ctx, d.clock)
}

// dismissPopups closes any known modal that would swallow clicks.
// Best-effort: a popup that refuses to close is not a task failure.
func (d *Driver) dismissPopups(ctx context.Context, page crawl.Page) {
	for _, selector := range d.cfg.PopupCloseSelectors {
		ok, err := page.Exists(ctx, selector)
		if err != nil || !ok {
			continue
		}
		if err := page.Click(ctx, selector); err != nil {
			d.logger.Debug("popup dismissal failed", zap.String("selector", selector), zap.Error(err))
		}
	}
}

func (d *Driver) firstExisting(ctx context.Context, page crawl.Page, selectors []string) (string, bool) {
	for _, selector := range selectors {
		ok, err := page.Exists(ctx, selector)
		if err != nil {
			continue
		}
		if ok {
			return selector, true
		}
	}
	return "", false
}

// declaredTotal reads the results-count indicator when present and extracts
// the advertised result total.
func (d *Driver) declaredTotal(ctx context.Context, page crawl.Page) (int, bool) {
	for _, selector := range d.cfg.ResultsCountSelectors {
		text, err := page.Text(ctx, selector)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if total, ok := parseResultTotal(text); ok {
			return total, true
		}
	}
	return 0, false
}

var countPattern = regexp.MustCompile(`\d[\d,]*`)

// parseResultTotal pulls the largest integer out of indicator text such as
// "Page 2 of 152 jobs" or "1 to 15 of 152 jobs".
func parseResultTotal(text string) (int, bool) {
	matches := countPattern.FindAllString(text, -1)
	best := -1
	for _, match := range matches {
		value, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
		if err != nil {
			continue
		}
		if value > best {
			best = value
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
