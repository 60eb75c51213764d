package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// navigationSettle is the pause after navigation that lets the single-page
// app fire its API calls before capture concludes.
const navigationSettle = 2 * time.Second

// ChromeLauncher launches Chromium sessions through chromedp with a
// persistent user-data directory so login cookies survive restarts.
type ChromeLauncher struct {
	StateDir string
	Headless bool
	Logger   *slog.Logger
}

// Launch starts a browser bound to ctx. Cancelling ctx tears the whole
// session down.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	profileDir := filepath.Join(l.StateDir, "chromium_profile")
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create browser state dir: %w", err)
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p := &chromePage{
		browserCtx:    browserCtx,
		cancelBrowser: browserCancel,
		cancelAlloc:   allocCancel,
		logger:        l.Logger,
		subs:          make(map[int]func(Response)),
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		p.Close()
		return nil, fmt.Errorf("enable network domain: %w", err)
	}
	p.listen()
	return p, nil
}

type chromePage struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	logger        *slog.Logger

	mu     sync.Mutex
	subs   map[int]func(Response)
	nextID int
}

// run executes actions on the browser context, bounded by timeout and
// responsive to the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.browserCtx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	err := p.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.Sleep(navigationSettle),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, 10*time.Second, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("current url: %w", err)
	}
	return url, nil
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wait for %q: %w", selector, ErrWaitTimeout)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	err := p.run(ctx, 15*time.Second,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, 15*time.Second, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// WaitForURL polls the page location until it contains substr.
func (p *chromePage) WaitForURL(ctx context.Context, substr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		url, err := p.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(url, substr) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for url %q: %w", substr, ErrWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// OnResponse registers fn for every network response observed from now on.
func (p *chromePage) OnResponse(fn func(Response)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// listen attaches the CDP event handler once per session. Response bodies
// are fetched in their own goroutines since ListenTarget callbacks must not
// block on CDP round-trips.
func (p *chromePage) listen() {
	chromedp.ListenTarget(p.browserCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		p.mu.Lock()
		active := len(p.subs) > 0
		p.mu.Unlock()
		if !active {
			return
		}
		go p.deliver(resp)
	})
}

func (p *chromePage) deliver(ev *network.EventResponseReceived) {
	c := chromedp.FromContext(p.browserCtx)
	body, err := network.GetResponseBody(ev.RequestID).Do(cdp.WithExecutor(p.browserCtx, c.Target))
	if err != nil {
		// Bodies for redirects and streamed resources are not retrievable;
		// they are never feed payloads, so drop them quietly.
		return
	}
	r := Response{
		URL:         ev.Response.URL,
		Status:      int(ev.Response.Status),
		ContentType: ev.Response.MimeType,
		Body:        body,
	}
	p.mu.Lock()
	fns := make([]func(Response), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	if err := p.run(ctx, 30*time.Second, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// QueryItems collects id/text/html for each element matching selector via
// a single in-page evaluation.
func (p *chromePage) QueryItems(ctx context.Context, selector string) ([]DOMNode, error) {
	script := fmt.Sprintf(`
		Array.from(document.querySelectorAll(%q)).map((el, i) => ({
			id: el.getAttribute('data-id') || el.getAttribute('id') || '',
			text: el.innerText,
			html: el.innerHTML.substring(0, 500),
		}))`, selector)
	var nodes []DOMNode
	if err := p.Evaluate(ctx, script, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (p *chromePage) Close() error {
	p.cancelBrowser()
	p.cancelAlloc()
	return nil
}
