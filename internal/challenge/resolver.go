// Package challenge detects anti-bot interstitials and waits for them to
// clear. The resolver is a bounded state machine: detect, then poll a fixed
// number of rounds, then give up. It never fails a navigation on its own;
// only fatal transport errors propagate.
package challenge

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/crawl"
)

// Config tunes the resolver. Zero values fall back to defaults sized for a
// one-minute ceiling (12 rounds x 5s).
type Config struct {
	Rounds             int
	Interval           time.Duration
	TransientRetryWait time.Duration

	// IndicatorPhrases mark a challenged view when found in the title or
	// visible text (case-insensitive substring match).
	IndicatorPhrases []string
	// ResultsMarkers are selectors whose presence confirms real content.
	ResultsMarkers []string
	// CaptchaMarkers are selectors identifying a CAPTCHA iframe or widget.
	CaptchaMarkers []string
	// ChallengeURLFragments flag a URL as still part of the challenge flow.
	ChallengeURLFragments []string
	// SiteTitleHints confirm a title belongs to the target site.
	SiteTitleHints []string
}

func (c Config) withDefaults() Config {
	if c.Rounds <= 0 {
		c.Rounds = 12
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.TransientRetryWait <= 0 {
		c.TransientRetryWait = time.Second
	}
	if len(c.IndicatorPhrases) == 0 {
		c.IndicatorPhrases = []string{
			"just a moment",
			"checking your browser",
			"verify you are human",
			"attention required",
			"additional verification required",
			"cloudflare",
		}
	}
	if len(c.ResultsMarkers) == 0 {
		c.ResultsMarkers = []string{
			".jobsearch-ResultsList",
			"#mosaic-provider-jobcards",
			".job_seen_beacon",
			"#searchCountPages",
		}
	}
	if len(c.CaptchaMarkers) == 0 {
		c.CaptchaMarkers = []string{
			`iframe[src*="captcha"]`,
			`iframe[title*="challenge"]`,
			"#challenge-stage iframe",
		}
	}
	if len(c.ChallengeURLFragments) == 0 {
		c.ChallengeURLFragments = []string{"challenge", "cdn-cgi", "captcha"}
	}
	if len(c.SiteTitleHints) == 0 {
		c.SiteTitleHints = []string{"jobs", "employment", "job search", "careers"}
	}
	return c
}

// Resolver drives the challenge state machine for one navigation attempt.
type Resolver struct {
	cfg    Config
	clock  crawl.Clock
	logger *zap.Logger
}

// New builds a resolver. A nil clock uses real time.
func New(cfg Config, clock crawl.Clock, logger *zap.Logger) *Resolver {
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg.withDefaults(), clock: clock, logger: logger}
}

// Resolve classifies the current view and, when challenged, polls until the
// challenge clears, the round ceiling is hit, or the context dies. The
// returned state is one of NoChallenge, Resolved, or TimedOut; CaptchaRequired
// is tracked internally as a slow-resolving sub-case.
func (r *Resolver) Resolve(ctx context.Context, page crawl.Page) (crawl.ChallengeState, error) {
	state, err := r.detect(ctx, page)
	if err != nil {
		return crawl.TimedOut, err
	}
	if state == crawl.NoChallenge {
		return crawl.NoChallenge, nil
	}

	prevURL, err := page.URL(ctx)
	if err != nil && isFatal(err) {
		return crawl.TimedOut, err
	}

	for round := 0; round < r.cfg.Rounds; round++ {
		if err := r.clock.Sleep(ctx, r.cfg.Interval); err != nil {
			return crawl.TimedOut, err
		}

		next, resolved, err := r.pollRound(ctx, page, &prevURL, state)
		if err != nil {
			if isFatal(err) {
				return crawl.TimedOut, err
			}
			// Document likely detached mid-navigation. Wait out the
			// transition, take one cheap re-check, and fold the result
			// into the next round.
			if err := r.clock.Sleep(ctx, r.cfg.TransientRetryWait); err != nil {
				return crawl.TimedOut, err
			}
			if ok, markerErr := r.hasResultsMarker(ctx, page); markerErr == nil && ok {
				return crawl.Resolved, nil
			}
			continue
		}
		if resolved {
			return crawl.Resolved, nil
		}
		if next == crawl.CaptchaRequired && state != crawl.CaptchaRequired {
			r.logger.Warn("captcha interposed, continuing to poll", zap.Int("round", round))
		}
		state = next
	}

	r.logger.Warn("challenge never cleared", zap.Int("rounds", r.cfg.Rounds))
	return crawl.TimedOut, nil
}

// detect classifies the initial view. A visible results marker wins over any
// stale banner text in the title or body.
func (r *Resolver) detect(ctx context.Context, page crawl.Page) (crawl.ChallengeState, error) {
	if ok, err := r.hasResultsMarker(ctx, page); err != nil {
		if isFatal(err) {
			return crawl.NoChallenge, err
		}
	} else if ok {
		return crawl.NoChallenge, nil
	}

	title, err := page.Title(ctx)
	if err != nil && isFatal(err) {
		return crawl.NoChallenge, err
	}
	body, err := page.BodyText(ctx)
	if err != nil && isFatal(err) {
		return crawl.NoChallenge, err
	}

	if r.containsIndicator(title) || r.containsIndicator(body) {
		r.logger.Info("challenge detected", zap.String("title", title))
		return crawl.ChallengeDetected, nil
	}
	return crawl.NoChallenge, nil
}

func (r *Resolver) pollRound(
	ctx context.Context,
	page crawl.Page,
	prevURL *string,
	state crawl.ChallengeState,
) (crawl.ChallengeState, bool, error) {
	currentURL, err := page.URL(ctx)
	if err != nil {
		return state, false, err
	}
	if currentURL != *prevURL && !r.looksLikeChallengeURL(currentURL) {
		return state, true, nil
	}
	*prevURL = currentURL

	if ok, err := r.hasResultsMarker(ctx, page); err != nil {
		return state, false, err
	} else if ok {
		return state, true, nil
	}

	title, err := page.Title(ctx)
	if err != nil {
		return state, false, err
	}
	if !r.containsIndicator(title) && r.looksLikeSiteTitle(title) {
		return state, true, nil
	}

	for _, marker := range r.cfg.CaptchaMarkers {
		ok, err := page.Exists(ctx, marker)
		if err != nil {
			return state, false, err
		}
		if ok {
			return crawl.CaptchaRequired, false, nil
		}
	}
	return state, false, nil
}

func (r *Resolver) hasResultsMarker(ctx context.Context, page crawl.Page) (bool, error) {
	for _, marker := range r.cfg.ResultsMarkers {
		ok, err := page.Exists(ctx, marker)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) containsIndicator(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range r.cfg.IndicatorPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

func (r *Resolver) looksLikeChallengeURL(url string) bool {
	lowered := strings.ToLower(url)
	for _, fragment := range r.cfg.ChallengeURLFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

func (r *Resolver) looksLikeSiteTitle(title string) bool {
	lowered := strings.ToLower(title)
	for _, hint := range r.cfg.SiteTitleHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}

// isFatal separates transport failures worth propagating from transient
// document-access errors that resolve once an in-flight navigation settles.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
