package scraper

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akamgm/arlog/internal/browser"
)

// fakePage scripts the browser interactions a scrape performs. Responses
// are delivered to active subscribers whenever the feed view is navigated,
// mirroring how the real driver observes traffic during navigation.
type fakePage struct {
	url       string
	responses []browser.Response
	domNodes  []browser.DOMNode

	waitURLErr       error
	loginLandsOnFeed bool

	navigations []string
	fills       map[string]string
	clicks      []string
	scrolls     int
	subs        []func(browser.Response)
	closed      bool
}

func newFakePage(startURL string) *fakePage {
	return &fakePage{url: startURL, fills: make(map[string]string)}
}

func (f *fakePage) Navigate(_ context.Context, url string, _ time.Duration) error {
	f.navigations = append(f.navigations, url)
	if !strings.Contains(f.url, "login") || url == loginURL {
		f.url = url
	}
	if url == feedURL || strings.Contains(f.url, "feed") {
		for _, fn := range f.subs {
			for _, r := range f.responses {
				fn(r)
			}
		}
	}
	return nil
}

func (f *fakePage) CurrentURL(context.Context) (string, error) { return f.url, nil }

func (f *fakePage) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	return nil
}

func (f *fakePage) Fill(_ context.Context, selector, value string) error {
	f.fills[selector] = value
	return nil
}

func (f *fakePage) Click(_ context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	if len(f.clicks) == 2 && f.loginLandsOnFeed {
		f.url = feedURL
	}
	return nil
}

func (f *fakePage) WaitForURL(_ context.Context, substr string, _ time.Duration) error {
	if f.waitURLErr != nil {
		return f.waitURLErr
	}
	if strings.Contains(f.url, substr) {
		return nil
	}
	return browser.ErrWaitTimeout
}

func (f *fakePage) OnResponse(fn func(browser.Response)) func() {
	f.subs = append(f.subs, fn)
	idx := len(f.subs) - 1
	return func() { f.subs[idx] = func(browser.Response) {} }
}

func (f *fakePage) Evaluate(_ context.Context, script string, _ any) error {
	if strings.Contains(script, "scrollTo") {
		f.scrolls++
	}
	return nil
}

func (f *fakePage) QueryItems(_ context.Context, _ string) ([]browser.DOMNode, error) {
	return f.domNodes, nil
}

func (f *fakePage) Close() error {
	f.closed = true
	return nil
}

type fakeLauncher struct{ page *fakePage }

func (l *fakeLauncher) Launch(context.Context) (browser.Page, error) { return l.page, nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScraper(page *fakePage, headless bool) *Scraper {
	return New(&fakeLauncher{page: page},
		Credentials{Email: "user@example.com", Password: "hunter2"},
		headless, testLogger())
}

func feedResponse(url string, body string) browser.Response {
	return browser.Response{URL: url, Status: 200, ContentType: "application/json", Body: []byte(body)}
}

func TestScrapeViaInterception(t *testing.T) {
	page := newFakePage(feedURL)
	page.responses = []browser.Response{
		feedResponse(arloBase+"/hmsweb/users/library",
			`{"data": [{"id": "E1", "deviceName": "Front Door", "type": "motion"},
			           {"id": "E2", "deviceName": "Garage", "type": "sound"}]}`),
		// Malformed body: skipped, must not abort the capture.
		feedResponse(arloBase+"/hmsweb/timeline", `{"data": [`),
		// Unrelated endpoint: ignored.
		feedResponse(arloBase+"/hmsweb/users/profile", `{"data": [{"id": "NOPE"}]}`),
		// Non-2xx: ignored.
		{URL: arloBase + "/feed", Status: 500, ContentType: "application/json", Body: []byte(`{"data":[{"id":"ERR"}]}`)},
	}

	events, err := testScraper(page, true).Scrape(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "E1", events[0].ID)
	assert.Equal(t, "Front Door", events[0].DeviceName)
	assert.Equal(t, "E2", events[1].ID)
	assert.Equal(t, scrollPasses, page.scrolls, "scrolling drives lazy pagination")
	assert.True(t, page.closed)
}

func TestScrapeFallsBackToDOMWhenInterceptionEmpty(t *testing.T) {
	page := newFakePage(feedURL)
	page.domNodes = []browser.DOMNode{
		{ID: "evt-77", Text: "Front Door\nMotion\n10:15 AM\nPerson detected\nClip saved"},
		{ID: "", Text: "Backyard"},
	}

	events, err := testScraper(page, true).Scrape(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "evt-77", events[0].ID)
	assert.Equal(t, "Front Door", events[0].DeviceName)
	assert.Equal(t, "Motion", events[0].EventType)
	assert.Equal(t, "10:15 AM", events[0].Timestamp)
	assert.Equal(t, "Person detected | Clip saved", events[0].Description)

	assert.True(t, strings.HasPrefix(events[1].ID, "dom-1-"), "missing attribute gets a generated identity")
	assert.Equal(t, "Backyard", events[1].DeviceName)
	assert.Equal(t, "unknown", events[1].EventType)
	assert.Equal(t, "", events[1].Timestamp)
}

func TestScrapeLogsInWhenRedirectedToLogin(t *testing.T) {
	page := newFakePage(loginURL)
	page.loginLandsOnFeed = true
	page.responses = []browser.Response{
		feedResponse(arloBase+"/hmsweb/users/library", `{"data": [{"id": "E1"}]}`),
	}

	events, err := testScraper(page, true).Scrape(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", page.fills[emailSelector])
	assert.Equal(t, "hunter2", page.fills[passwordSelector])
	require.Len(t, page.clicks, 2)
	require.Len(t, events, 1)
	assert.Equal(t, "E1", events[0].ID)
}

func TestScrapeHeadlessTwoFactorFailsCycle(t *testing.T) {
	page := newFakePage(loginURL)
	// Submit clicks never land on the feed: the app is sitting on a 2FA prompt.

	_, err := testScraper(page, true).Scrape(context.Background())
	require.ErrorIs(t, err, ErrTwoFactorRequired)
}

func TestScrapeVisibleTwoFactorTimesOut(t *testing.T) {
	page := newFakePage(loginURL)
	page.waitURLErr = browser.ErrWaitTimeout

	_, err := testScraper(page, false).Scrape(context.Background())
	require.ErrorIs(t, err, ErrLoginTimeout)
}

func TestScrapeMissingCredentials(t *testing.T) {
	page := newFakePage(loginURL)
	s := New(&fakeLauncher{page: page}, Credentials{}, true, testLogger())

	_, err := s.Scrape(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestExtractRecordsEnvelopeShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"data list", `{"data": [{"id": "a"}, {"id": "b"}]}`, 2},
		{"data object", `{"data": {"id": "a"}}`, 1},
		{"items list", `{"items": [{"id": "a"}]}`, 1},
		{"bare list", `[{"id": "a"}, {"id": "b"}, {"id": "c"}]`, 3},
		{"non-object entries skipped", `{"data": [1, "x", {"id": "a"}]}`, 1},
		{"malformed", `{"data": [`, 0},
		{"unrelated shape", `{"success": true}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, extractRecords([]byte(tc.body)), tc.want)
		})
	}
}

func TestIsFeedResponse(t *testing.T) {
	assert.True(t, isFeedResponse(arloBase+"/hmsweb/users/library?page=1"))
	assert.True(t, isFeedResponse(arloBase+"/hmsweb/timeline"))
	assert.True(t, isFeedResponse("https://cdn.arlo.com/notifications/poll"))
	assert.False(t, isFeedResponse(arloBase+"/hmsweb/users/profile"))
}
