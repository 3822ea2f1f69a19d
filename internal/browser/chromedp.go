// Package browser implements the crawl.Page capability surface with headless
// Chrome via chromedp. Each session gets its own browser process so that its
// proxy, cookies, and browsing history stay isolated from other identities.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/crawl"
	"github.com/hireloop/jobharvester/internal/session"
)

// Config controls the chromedp browser factory.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	AcceptLanguage    string
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = "en-US,en;q=0.9"
	}
	return c
}

// Chromedp opens pages bound to session identities. Browser contexts are
// cached per session so cookies and history survive across that session's
// tasks; Close tears everything down.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	browsers map[string]*sessionBrowser
}

type sessionBrowser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromedp creates the browser factory.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		browsers: make(map[string]*sessionBrowser),
	}
}

// NewPage opens a fresh tab in the session's browser, starting the browser
// on first use. The release func closes only the tab; the browser lives until
// the session's entry is dropped or Close runs.
func (b *Chromedp) NewPage(ctx context.Context, sess *session.Session) (crawl.Page, func(), error) {
	sb, err := b.sessionBrowser(sess)
	if err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(sb.browserCtx)
	if err := chromedp.Run(tabCtx, b.networkSetup()); err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("tab setup: %w", err)
	}

	page := &cdpPage{ctx: tabCtx, navTimeout: b.cfg.NavigationTimeout}
	return page, tabCancel, nil
}

// DropSession closes and forgets a session's browser. Safe to call for
// sessions that never opened one.
func (b *Chromedp) DropSession(sessionID string) {
	b.mu.Lock()
	sb, ok := b.browsers[sessionID]
	if ok {
		delete(b.browsers, sessionID)
	}
	b.mu.Unlock()
	if ok {
		sb.browserCancel()
		sb.allocCancel()
	}
}

// Close tears down every cached browser.
func (b *Chromedp) Close() {
	b.mu.Lock()
	browsers := b.browsers
	b.browsers = make(map[string]*sessionBrowser)
	b.mu.Unlock()
	for _, sb := range browsers {
		sb.browserCancel()
		sb.allocCancel()
	}
}

func (b *Chromedp) sessionBrowser(sess *session.Session) (*sessionBrowser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sb, ok := b.browsers[sess.ID]; ok {
		return sb, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.cfg.UserAgent),
	)
	if sess.Proxy.Server != "" {
		opts = append(opts, chromedp.ProxyServer(sess.Proxy.Server))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser start: %w", err)
	}

	sb := &sessionBrowser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}
	b.browsers[sess.ID] = sb
	b.logger.Debug("browser started",
		zap.String("session_id", sess.ID),
		zap.String("proxy", sess.Proxy.Server),
	)
	return sb, nil
}

func (b *Chromedp) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).
			WithAcceptLanguage(b.cfg.AcceptLanguage).
			WithPlatform("Win32").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		headers := network.Headers{
			"Accept-Language": b.cfg.AcceptLanguage,
			"Sec-CH-UA-Platform": `"Windows"`,
		}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// cdpPage adapts one chromedp tab to crawl.Page.
type cdpPage struct {
	ctx        context.Context
	navTimeout time.Duration
}

func (p *cdpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	stop := forwardCancel(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// forwardCancel propagates the caller's cancellation into the tab context
// used for this operation.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (p *cdpPage) InstallOnNewDocument(ctx context.Context, script string) error {
	err := p.run(ctx, 0, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("install new-document script: %w", err)
	}
	return nil
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, p.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, 5*time.Second, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (p *cdpPage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, 5*time.Second, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

func (p *cdpPage) BodyText(ctx context.Context) (string, error) {
	var text string
	expr := `document.body ? document.body.innerText : ""`
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

func (p *cdpPage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, strconv.Quote(selector))
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return found, nil
}

func (p *cdpPage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? el.innerText.trim() : ""; })()`,
		strconv.Quote(selector),
	)
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("read text %s: %w", selector, err)
	}
	return text, nil
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	err := p.run(ctx, 10*time.Second,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *cdpPage) Clear(ctx context.Context, selector string) error {
	if err := p.run(ctx, 5*time.Second, chromedp.SetValue(selector, "", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}
	return nil
}

// TypeText sends one key at a time with the supplied delay between
// keystrokes, which is what keeps typing cadence off the bot radar.
func (p *cdpPage) TypeText(ctx context.Context, selector, text string, perKey time.Duration) error {
	for _, ch := range text {
		if err := p.run(ctx, 5*time.Second, chromedp.SendKeys(selector, string(ch), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("type into %s: %w", selector, err)
		}
		if perKey > 0 {
			select {
			case <-time.After(perKey):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (p *cdpPage) Evaluate(ctx context.Context, expression string) error {
	wrapped := fmt.Sprintf(`(() => { %s })()`, expression)
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(wrapped, nil)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *cdpPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.navTimeout
	}
	if err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

// Elements returns index-scoped handles to every match. Handles query by
// re-evaluating against the live DOM, so a re-render between Elements and a
// field read degrades to an empty value rather than a stale node error.
func (p *cdpPage) Elements(ctx context.Context, selector string) ([]crawl.Element, error) {
	var count int
	expr := fmt.Sprintf(`document.querySelectorAll(%s).length`, strconv.Quote(selector))
	if err := p.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &count)); err != nil {
		return nil, fmt.Errorf("count %s: %w", selector, err)
	}
	elements := make([]crawl.Element, 0, count)
	for i := 0; i < count; i++ {
		elements = append(elements, &cdpElement{page: p, selector: selector, index: i})
	}
	return elements, nil
}

// cdpElement scopes queries to the i-th match of the card selector.
type cdpElement struct {
	page     *cdpPage
	selector string
	index    int
}

func (e *cdpElement) Text(ctx context.Context, selector string) (string, error) {
	expr := fmt.Sprintf(
		`(() => {
			const card = document.querySelectorAll(%s)[%d];
			if (!card) return "";
			const el = card.querySelector(%s);
			return el ? el.innerText.trim() : "";
		})()`,
		strconv.Quote(e.selector), e.index, strconv.Quote(selector),
	)
	var text string
	if err := e.page.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("card text %s: %w", selector, err)
	}
	return text, nil
}

func (e *cdpElement) Attr(ctx context.Context, selector, name string) (string, error) {
	expr := fmt.Sprintf(
		`(() => {
			const card = document.querySelectorAll(%s)[%d];
			if (!card) return "";
			const el = card.querySelector(%s);
			return el ? (el.getAttribute(%s) || "") : "";
		})()`,
		strconv.Quote(e.selector), e.index, strconv.Quote(selector), strconv.Quote(name),
	)
	var value string
	if err := e.page.run(ctx, 5*time.Second, chromedp.Evaluate(expr, &value)); err != nil {
		return "", fmt.Errorf("card attr %s: %w", selector, err)
	}
	return value, nil
}
