package config

import (
	"fmt"
	"net/url"

	"review-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	c.ApplyDefaults()

	// Proxy URL must parse when provided
	if c.Browser.ProxyURL != "" {
		if _, perr := url.Parse(c.Browser.ProxyURL); perr != nil {
			return warnings, fmt.Errorf("%w: invalid browser.proxy_url %q: %v",
				utils.ErrConfigValidation, c.Browser.ProxyURL, perr)
		}
	}
	if c.Browser.ProxyUser != "" && c.Browser.ProxyURL == "" {
		warnings = append(warnings, "browser.proxy_user set without browser.proxy_url, ignoring credentials")
	}

	// Product URL prefix must be an absolute URL so link filtering works
	prefix, perr := url.Parse(c.Crawl.ProductURLPrefix)
	if perr != nil || !prefix.IsAbs() {
		return warnings, fmt.Errorf("%w: crawl.product_url_prefix %q is not an absolute URL",
			utils.ErrConfigValidation, c.Crawl.ProductURLPrefix)
	}

	if c.Crawl.MaxPagesPerProduct < 1 {
		return warnings, fmt.Errorf("%w: crawl.max_pages_per_product must be >= 1, got %d",
			utils.ErrConfigValidation, c.Crawl.MaxPagesPerProduct)
	}
	if c.Crawl.ProbeAttempts < 1 {
		return warnings, fmt.Errorf("%w: crawl.probe_attempts must be >= 1, got %d",
			utils.ErrConfigValidation, c.Crawl.ProbeAttempts)
	}

	// A challenge detector with no markers would treat every page as clean
	if len(c.Browser.BotChallengeMarkers) == 0 {
		warnings = append(warnings, "browser.bot_challenge_markers is empty, challenge detection disabled")
	}

	return warnings, nil
}
