// Package browser abstracts the automated web session the scraper drives.
// The scraper depends only on the Page interface; the chromedp driver in
// this package is the production implementation.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout reports that a bounded wait elapsed before its condition
// held. Callers distinguish it from hard navigation failures.
var ErrWaitTimeout = errors.New("browser: wait timed out")

// Response is one captured network response, delivered to OnResponse
// subscribers with its body already read.
type Response struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// DOMNode is one rendered element matched by QueryItems.
type DOMNode struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	HTML string `json:"html"`
}

// Page is the capability set the feed acquisition engine consumes: bounded
// navigation and waiting, form interaction, script evaluation, and scoped
// response observation. Every blocking call honors its context.
type Page interface {
	// Navigate loads url and waits for client-side rendering to settle,
	// bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// CurrentURL reports the page's present location.
	CurrentURL(ctx context.Context) (string, error)

	// WaitForSelector blocks until selector matches a visible element or
	// timeout elapses (ErrWaitTimeout).
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Fill types value into the first element matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// WaitForURL blocks until the current URL contains substr or timeout
	// elapses (ErrWaitTimeout).
	WaitForURL(ctx context.Context, substr string, timeout time.Duration) error

	// OnResponse subscribes fn to network responses observed from now on.
	// The returned cancel detaches the subscription; callers defer it so
	// capture scopes release even on error paths.
	OnResponse(fn func(Response)) (cancel func())

	// Evaluate runs script in the page and decodes its result into out
	// (out may be nil to discard).
	Evaluate(ctx context.Context, script string, out any) error

	// QueryItems returns id/text/html for every rendered element matching
	// selector.
	QueryItems(ctx context.Context, selector string) ([]DOMNode, error)

	Close() error
}

// Launcher produces a fresh Page per poll cycle. Session state (cookies,
// local storage) persists on disk between launches.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}
