// Package scraper implements the feed acquisition engine: it drives an
// authenticated browser session against the Arlo web app and captures feed
// records by network-response interception, falling back to DOM extraction
// when interception yields nothing.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akamgm/arlog/internal/browser"
	"github.com/akamgm/arlog/internal/event"
)

const (
	arloBase = "https://my.arlo.com"
	feedURL  = arloBase + "/#/feed"
	loginURL = arloBase + "/#/login"

	directNavTimeout = 30 * time.Second
	navTimeout       = 60 * time.Second
	selectorTimeout  = 30 * time.Second
	loginWait        = 2 * time.Minute
	twoFactorWait    = 5 * time.Minute

	scrollPasses = 3
	scrollSettle = 2 * time.Second
	domSettle    = 5 * time.Second
)

const (
	emailSelector    = `input[type="email"]`
	passwordSelector = `input[type="password"]`
	submitSelector   = `button[type="submit"], a[data-qa="login-submit"]`

	// Class and attribute heuristics for rendered feed items. Best-effort:
	// the app's markup is not a stable contract.
	domItemSelector = `[class*="feed-item"], [class*="event-item"], ` +
		`[class*="timeline-item"], [class*="activity-item"], ` +
		`[data-test*="feed"], [data-qa*="feed"]`
)

// feedURLFragments classify a response as feed-relevant by substring match.
var feedURLFragments = []string{
	"/hmsweb/users/library",
	"/hmsweb/users/devices/automation/active",
	"/hmsweb/timeline",
	"/feed",
	"/events",
	"/history",
	"/notifications",
}

var (
	// ErrNoCredentials means the session needs a login but no credentials
	// are configured. Not retriable without operator action.
	ErrNoCredentials = errors.New("scraper: login required but credentials are not configured")

	// ErrTwoFactorRequired means the login flow hit a second-factor prompt
	// while running headless, where nobody can complete it.
	ErrTwoFactorRequired = errors.New("scraper: login requires 2FA; run with ARLOG_HEADLESS=false to complete it manually, then restart headless")

	// ErrLoginTimeout means the feed redirect never arrived.
	ErrLoginTimeout = errors.New("scraper: login timed out")
)

// Credentials hold the Arlo account login.
type Credentials struct {
	Email    string
	Password string
}

// Scraper runs one acquisition pass per call to Scrape. It holds no state
// across cycles; session continuity lives in the browser profile on disk.
type Scraper struct {
	launcher browser.Launcher
	creds    Credentials
	headless bool
	logger   *slog.Logger
}

func New(launcher browser.Launcher, creds Credentials, headless bool, logger *slog.Logger) *Scraper {
	return &Scraper{
		launcher: launcher,
		creds:    creds,
		headless: headless,
		logger:   logger.With("component", "scraper"),
	}
}

// Scrape performs one poll cycle's acquisition: authenticate if needed,
// capture via interception, fall back to DOM extraction when interception
// returns nothing. Any stage failure aborts the cycle; the scheduler
// simply retries on the next tick.
func (s *Scraper) Scrape(ctx context.Context) ([]event.Event, error) {
	page, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer page.Close()

	// Direct feed navigation may succeed outright on a saved session; a
	// timeout here is not fatal, the URL check below decides what happens.
	if err := page.Navigate(ctx, feedURL, directNavTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("direct feed navigation did not settle", "error", err)
	}

	url, err := page.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect landing url: %w", err)
	}
	if strings.Contains(url, "#/login") || strings.Contains(strings.ToLower(url), "login") {
		if err := s.login(ctx, page); err != nil {
			return nil, err
		}
	}

	raws, err := s.captureViaNetwork(ctx, page)
	if err != nil {
		return nil, err
	}

	var events []event.Event
	if len(raws) == 0 {
		s.logger.Warn("no events from network interception, trying DOM fallback")
		events, err = s.captureViaDOM(ctx, page)
		if err != nil {
			return nil, err
		}
	} else {
		events = make([]event.Event, 0, len(raws))
		for _, raw := range raws {
			events = append(events, event.Normalize(raw))
		}
	}

	s.logger.Info("scrape complete", "events", len(events))
	return events, nil
}

// login performs the email/password flow and waits for the feed redirect.
func (s *Scraper) login(ctx context.Context, page browser.Page) error {
	s.logger.Info("navigating to login")
	if err := page.Navigate(ctx, loginURL, navTimeout); err != nil {
		return fmt.Errorf("open login view: %w", err)
	}

	// A saved session can redirect straight past the login form.
	if url, err := page.CurrentURL(ctx); err == nil &&
		!strings.Contains(url, "#/login") && strings.Contains(url, "#/feed") {
		s.logger.Info("already logged in via saved session")
		return nil
	}

	if s.creds.Email == "" || s.creds.Password == "" {
		return ErrNoCredentials
	}

	s.logger.Info("filling login form")
	if err := page.WaitForSelector(ctx, emailSelector, selectorTimeout); err != nil {
		return fmt.Errorf("email field: %w", err)
	}
	if err := page.Fill(ctx, emailSelector, s.creds.Email); err != nil {
		return err
	}
	if err := page.Click(ctx, submitSelector); err != nil {
		return err
	}

	if err := page.WaitForSelector(ctx, passwordSelector, selectorTimeout); err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := page.Fill(ctx, passwordSelector, s.creds.Password); err != nil {
		return err
	}
	if err := page.Click(ctx, submitSelector); err != nil {
		return err
	}

	s.logger.Info("waiting for 2FA or feed redirect")
	err := page.WaitForURL(ctx, "/feed", loginWait)
	if err == nil {
		s.logger.Info("login successful")
		return nil
	}
	if !errors.Is(err, browser.ErrWaitTimeout) {
		return err
	}

	// No redirect: almost certainly a second-factor prompt.
	if s.headless {
		return ErrTwoFactorRequired
	}
	s.logger.Info("please complete 2FA in the browser window")
	err = page.WaitForURL(ctx, "/feed", twoFactorWait)
	if err == nil {
		s.logger.Info("login successful after 2FA")
		return nil
	}
	if errors.Is(err, browser.ErrWaitTimeout) {
		return fmt.Errorf("%w: waiting for 2FA completion", ErrLoginTimeout)
	}
	return err
}

// captureViaNetwork navigates the feed while collecting feed-relevant API
// responses, then scrolls to trigger lazy pagination. The subscription is
// released before returning, on every path.
func (s *Scraper) captureViaNetwork(ctx context.Context, page browser.Page) ([]map[string]any, error) {
	var (
		mu       sync.Mutex
		captured []map[string]any
	)
	cancel := page.OnResponse(func(r browser.Response) {
		if r.Status != 200 || !isFeedResponse(r.URL) {
			return
		}
		ct := strings.ToLower(r.ContentType)
		if !strings.Contains(ct, "json") && !strings.Contains(ct, "javascript") {
			return
		}
		// A single malformed body must not abort the capture.
		records := extractRecords(r.Body)
		if len(records) == 0 {
			return
		}
		mu.Lock()
		captured = append(captured, records...)
		mu.Unlock()
	})
	defer cancel()

	s.logger.Info("navigating to feed")
	if err := page.Navigate(ctx, feedURL, navTimeout); err != nil {
		return nil, fmt.Errorf("navigate feed: %w", err)
	}

	for i := 0; i < scrollPasses; i++ {
		if err := page.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)", nil); err != nil {
			s.logger.Warn("scroll failed", "error", err)
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(scrollSettle):
		}
	}

	cancel()
	mu.Lock()
	defer mu.Unlock()
	return captured, nil
}

// captureViaDOM extracts events from the rendered document. Inherently
// lossier than interception; used only when interception saw nothing.
func (s *Scraper) captureViaDOM(ctx context.Context, page browser.Page) ([]event.Event, error) {
	if err := page.Navigate(ctx, feedURL, navTimeout); err != nil {
		return nil, fmt.Errorf("navigate feed for dom capture: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(domSettle):
	}

	nodes, err := page.QueryItems(ctx, domItemSelector)
	if err != nil {
		return nil, fmt.Errorf("query feed items: %w", err)
	}

	events := make([]event.Event, 0, len(nodes))
	for i, node := range nodes {
		id := node.ID
		if id == "" {
			id = fmt.Sprintf("dom-%d-%s", i, uuid.NewString())
		}
		lines := nonEmptyLines(node.Text)
		events = append(events, event.Event{
			ID:          id,
			DeviceName:  lineAt(lines, 0, event.Unknown),
			EventType:   lineAt(lines, 1, event.Unknown),
			Timestamp:   lineAt(lines, 2, ""),
			Description: joinTail(lines, 3),
			Raw: map[string]any{
				"id":   node.ID,
				"text": node.Text,
				"html": node.HTML,
			},
		})
	}
	return events, nil
}

func isFeedResponse(url string) bool {
	for _, fragment := range feedURLFragments {
		if strings.Contains(url, fragment) {
			return true
		}
	}
	return false
}

// extractRecords pulls the event list out of a response body, trying the
// known envelope shapes in order. Unparseable bodies yield nothing.
func extractRecords(body []byte) []map[string]any {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil
	}

	var items []any
	switch v := decoded.(type) {
	case map[string]any:
		switch data := v["data"].(type) {
		case []any:
			items = data
		case map[string]any:
			items = []any{data}
		default:
			if list, ok := v["items"].([]any); ok {
				items = list
			}
		}
	case []any:
		items = v
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	return records
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func lineAt(lines []string, idx int, fallback string) string {
	if idx < len(lines) {
		return lines[idx]
	}
	return fallback
}

func joinTail(lines []string, from int) string {
	if from >= len(lines) {
		return ""
	}
	return strings.Join(lines[from:], " | ")
}
