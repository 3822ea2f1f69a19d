package interact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/crawl"
)

type nopClock struct{}

func (nopClock) Now() time.Time                             { return time.Unix(1700000000, 0) }
func (nopClock) Sleep(context.Context, time.Duration) error { return nil }

type fakeForm struct {
	present map[string]bool
	texts   map[string]string

	navigations []string
	typed       map[string]string
	cleared     []string
	clicked     []string
	evaluated   []string
	installed   []string

	navErr         error
	navHadDeadline bool
	clickErr       map[string]error
}

func newFakeForm() *fakeForm {
	return &fakeForm{
		present:  map[string]bool{},
		texts:    map[string]string{},
		typed:    map[string]string{},
		clickErr: map[string]error{},
	}
}

func (f *fakeForm) Navigate(ctx context.Context, url string) error {
	f.navigations = append(f.navigations, url)
	_, f.navHadDeadline = ctx.Deadline()
	return f.navErr
}

func (f *fakeForm) InstallOnNewDocument(_ context.Context, script string) error {
	f.installed = append(f.installed, script)
	return nil
}

func (f *fakeForm) URL(context.Context) (string, error)      { return "", nil }
func (f *fakeForm) Title(context.Context) (string, error)    { return "", nil }
func (f *fakeForm) BodyText(context.Context) (string, error) { return "", nil }

func (f *fakeForm) Exists(_ context.Context, selector string) (bool, error) {
	return f.present[selector], nil
}

func (f *fakeForm) Text(_ context.Context, selector string) (string, error) {
	return f.texts[selector], nil
}

func (f *fakeForm) Click(_ context.Context, selector string) error {
	if err := f.clickErr[selector]; err != nil {
		return err
	}
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeForm) Clear(_ context.Context, selector string) error {
	f.cleared = append(f.cleared, selector)
	return nil
}

func (f *fakeForm) TypeText(_ context.Context, selector, text string, _ time.Duration) error {
	f.typed[selector] = text
	return nil
}

func (f *fakeForm) Evaluate(_ context.Context, expression string) error {
	f.evaluated = append(f.evaluated, expression)
	return nil
}

func (f *fakeForm) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (f *fakeForm) Elements(context.Context, string) ([]crawl.Element, error) { return nil, nil }

func testDriver() *Driver {
	return NewDriver(Config{LandingURL: "https://jobs.example.com/"}, nopClock{}, zap.NewNop())
}

func searchTask(page int) crawl.SearchTask {
	return crawl.SearchTask{
		SearchTerm: "golang developer",
		Location:   "Austin, TX",
		SalaryHint: "$120,000",
		PageIndex:  page,
	}
}

func TestSubmitSearch_TypesAndSubmits(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	form.present["#text-input-what"] = true
	form.present["#text-input-where"] = true
	form.present["button[type=\"submit\"]"] = true

	ok, err := testDriver().SubmitSearch(context.Background(), form, searchTask(0))
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, []string{"https://jobs.example.com/"}, form.navigations)
	require.Equal(t, "golang developer $120,000", form.typed["#text-input-what"])
	require.Equal(t, "Austin, TX", form.typed["#text-input-where"])
	require.Contains(t, form.cleared, "#text-input-what")
	require.Contains(t, form.clicked, "button[type=\"submit\"]")
}

func TestSubmitSearch_MissingControlsIsRecoverableSkip(t *testing.T) {
	t.Parallel()

	form := newFakeForm() // no inputs present at all

	ok, err := testDriver().SubmitSearch(context.Background(), form, searchTask(0))
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, form.clicked)
}

func TestSubmitSearch_NavigationErrorPropagates(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	form.navErr = errors.New("net::ERR_TUNNEL_CONNECTION_FAILED")

	_, err := testDriver().SubmitSearch(context.Background(), form, searchTask(0))
	require.Error(t, err)
}

func TestSubmitSearch_FallbackQuerySelector(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	form.present["input[name=\"q\"]"] = true
	form.present["input[name=\"l\"]"] = true
	form.present["#fj"] = true

	ok, err := testDriver().SubmitSearch(context.Background(), form, searchTask(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "golang developer $120,000", form.typed["input[name=\"q\"]"])
}

func TestAdvancePage_DeclaredTotalGuard(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	form.present["#searchCountPages"] = true
	form.texts["#searchCountPages"] = "Page 1 of 15 jobs"
	form.present["a[data-testid=\"pagination-page-next\"]"] = true

	step, err := testDriver().AdvancePage(context.Background(), form, searchTask(2))
	require.NoError(t, err)
	require.Equal(t, StepNoMorePages, step)
	require.Empty(t, form.clicked, "guard must short-circuit before any navigation")
}

func TestAdvancePage_ClicksNextControl(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	form.texts["#searchCountPages"] = "1 to 15 of 152 jobs"
	form.present["a[data-testid=\"pagination-page-next\"]"] = true

	step, err := testDriver().AdvancePage(context.Background(), form, searchTask(2))
	require.NoError(t, err)
	require.Equal(t, StepAdvanced, step)
	require.Equal(t, []string{"a[data-testid=\"pagination-page-next\"]"}, form.clicked)
}

func TestAdvancePage_NoNextControlMeansNoMorePages(t *testing.T) {
	t.Parallel()

	form := newFakeForm()

	step, err := testDriver().AdvancePage(context.Background(), form, searchTask(1))
	require.NoError(t, err)
	require.Equal(t, StepNoMorePages, step)
}

func TestAdvancePage_ClickFailureIsStepError(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	form.present["a[aria-label=\"Next Page\"]"] = true
	form.clickErr["a[aria-label=\"Next Page\"]"] = errors.New("node detached")

	step, err := testDriver().AdvancePage(context.Background(), form, searchTask(1))
	require.NoError(t, err)
	require.Equal(t, StepError, step)
}

func TestHarden_RegistersFingerprintForFutureDocuments(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	require.NoError(t, testDriver().Harden(context.Background(), form))

	// Navigation replaces the document, so the bundle must be registered as
	// a new-document script, not only evaluated into the current one.
	require.Equal(t, []string{fingerprintScript}, form.installed)
	require.Contains(t, form.evaluated, fingerprintScript)
}

func TestNavigationsCarryDriverTimeout(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	require.NoError(t, testDriver().WarmUp(context.Background(), form))
	require.True(t, form.navHadDeadline, "navigation must be bounded by the driver's timeout")
}

func TestWarmUp_ScrollsLanding(t *testing.T) {
	t.Parallel()

	form := newFakeForm()
	require.NoError(t, testDriver().WarmUp(context.Background(), form))
	require.Equal(t, []string{"https://jobs.example.com/"}, form.navigations)
	require.NotEmpty(t, form.evaluated)
}

func TestParseResultTotal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text  string
		total int
		ok    bool
	}{
		{"Page 2 of 152 jobs", 152, true},
		{"1 to 15 of 1,204 jobs", 1204, true},
		{"15 jobs", 15, true},
		{"no results here", 0, false},
	}
	for _, tc := range cases {
		total, ok := parseResultTotal(tc.text)
		require.Equal(t, tc.ok, ok, tc.text)
		require.Equal(t, tc.total, total, tc.text)
	}
}
