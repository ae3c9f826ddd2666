// Package browser wraps a single driven browser session behind a narrow
// interface. Session creation applies the anti-automation evasion layer
// (persona, proxy, cookie jar, stealth properties); everything above this
// package talks to the Session interface only, so the pagination engine is
// testable without a real browser.
package browser

import (
	"context"
	"strings"
	"time"
)

// Cookie is the persisted subset of a browser cookie
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // Unix seconds, 0 = session cookie
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// Session is the narrow browser-driver surface the crawl pipeline depends on.
// Every blocking call takes a context; implementations apply their own
// per-call timeouts on top.
type Session interface {
	// Navigate loads url and waits for the document to settle
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the location after redirects
	CurrentURL(ctx context.Context) (string, error)

	// Title returns the current document title
	Title(ctx context.Context) (string, error)

	// Exists reports whether selector matches at least one element right now
	Exists(ctx context.Context, selector string) (bool, error)

	// WaitVisible blocks until selector is visible or the timeout elapses
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// InnerHTML returns the inner markup of the first selector match,
	// falling back to the document body when nothing matches
	InnerHTML(ctx context.Context, selector string) (string, error)

	// Evaluate runs script in the page and unmarshals its result into out
	// (out may be nil to discard the result)
	Evaluate(ctx context.Context, script string, out interface{}) error

	// Screenshot captures the full page to path
	Screenshot(ctx context.Context, path string) error

	// MoveMouse moves the pointer to viewport coordinates
	MoveMouse(ctx context.Context, x, y float64) error

	// ScrollBy scrolls the window vertically by deltaY pixels
	ScrollBy(ctx context.Context, deltaY float64) error

	// PressKey dispatches a key press ("ArrowDown", "PageDown", ...)
	PressKey(ctx context.Context, key string) error

	// Cookies returns the session's current cookie set
	Cookies(ctx context.Context) ([]Cookie, error)

	// Close tears the session down, persisting cookies best-effort first
	Close() error
}

// ChallengeDetector recognizes anti-bot interstitials. The marker set is
// heuristic and site-specific, so it is configuration, not code.
type ChallengeDetector struct {
	markers []string
}

// NewChallengeDetector builds a detector over lower-cased URL markers
func NewChallengeDetector(markers []string) *ChallengeDetector {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	return &ChallengeDetector{markers: lowered}
}

// IsChallengeURL reports whether url looks like a served challenge page
func (d *ChallengeDetector) IsChallengeURL(url string) bool {
	u := strings.ToLower(url)
	for _, m := range d.markers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}
