package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"

	"review-scraper/pkg/config"
	"review-scraper/pkg/utils"
)

// Launcher creates evasion-hardened chromedp sessions from configuration
type Launcher struct {
	cfg      config.BrowserConfig
	detector *ChallengeDetector
	jar      *Jar
	log      *logrus.Entry
}

// NewLauncher builds a Launcher; the jar path and challenge markers come
// from the browser configuration
func NewLauncher(cfg config.BrowserConfig, log *logrus.Entry) *Launcher {
	return &Launcher{
		cfg:      cfg,
		detector: NewChallengeDetector(cfg.BotChallengeMarkers),
		jar:      NewJar(cfg.CookieFile),
		log:      log,
	}
}

// Detector exposes the configured challenge detector to the pipeline
func (l *Launcher) Detector() *ChallengeDetector { return l.detector }

// Jar exposes the cookie jar (the cookie refresh routine shares it)
func (l *Launcher) Jar() *Jar { return l.jar }

// chromeSession implements Session over a dedicated chromedp browser context
type chromeSession struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         config.BrowserConfig
	jar         *Jar
	log         *logrus.Entry
}

// NewSession launches a browser and applies the full evasion layer: random
// persona, stealth script, optional authenticated proxy, persisted cookies
// and a probe navigation that clears known-bad cookies when challenged.
func (l *Launcher) NewSession(ctx context.Context) (Session, error) {
	persona := NewPersona(l.cfg.UserAgents, l.cfg.AcceptLanguage)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "ru-RU,ru"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(persona.UserAgent),
	)
	if l.cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(l.cfg.ProxyURL))
		l.log.Info("Upstream proxy enabled")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:         browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		cfg:         l.cfg,
		jar:         l.jar,
		log:         l.log,
	}

	if err := s.bootstrap(persona, l); err != nil {
		s.teardown()
		return nil, err
	}
	return s, nil
}

// bootstrap starts the browser process and applies headers, stealth
// properties, proxy credentials and the persisted cookie set
func (s *chromeSession) bootstrap(persona Persona, l *Launcher) error {
	startCtx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()

	err := chromedp.Run(startCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": persona.AcceptLanguage,
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: starting session: %v", utils.ErrBrowserSession, err)
	}

	if s.cfg.ProxyUser != "" {
		s.enableProxyAuth(s.cfg.ProxyUser, s.cfg.ProxyPass)
	}

	if err := s.loadCookies(); err != nil {
		s.log.Warnf("Cookie load failed, starting without: %v", err)
	}

	if s.cfg.ProbeURL != "" {
		if err := s.probe(l.detector); err != nil {
			s.log.Warnf("Session probe failed: %v", err)
		}
	}

	s.log.WithField("user_agent", persona.UserAgent).Debug("Browser session ready")
	return nil
}

// enableProxyAuth answers proxy authentication challenges with the
// configured credentials via the fetch domain
func (s *chromeSession) enableProxyAuth(user, pass string) {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				err := chromedp.Run(s.ctx, fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: user,
					Password: pass,
				}))
				if err != nil {
					s.log.Warnf("Proxy auth continuation failed: %v", err)
				}
			}()
		case *fetch.EventRequestPaused:
			go func() {
				if err := chromedp.Run(s.ctx, fetch.ContinueRequest(e.RequestID)); err != nil {
					s.log.Debugf("Continue request failed: %v", err)
				}
			}()
		}
	})

	if err := chromedp.Run(s.ctx, fetch.Enable().WithHandleAuthRequests(true)); err != nil {
		s.log.Warnf("Enabling proxy auth handling failed: %v", err)
	}
}

// loadCookies injects the persisted jar into the fresh session
func (s *chromeSession) loadCookies() error {
	cookies, err := s.jar.Load()
	if err != nil {
		return err
	}
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}

	err = chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("setting cookies: %w", err)
	}
	s.log.Debugf("Loaded %d cookies", len(params))
	return nil
}

// probe performs a lightweight navigation to verify the session is not
// already flagged. A challenged probe clears the jar so the next run does
// not retry with known-bad state.
func (s *chromeSession) probe(detector *ChallengeDetector) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()

	var location string
	err := chromedp.Run(ctx,
		chromedp.Navigate(s.cfg.ProbeURL),
		chromedp.Location(&location),
	)
	if err != nil {
		return fmt.Errorf("%w: probe navigation: %v", utils.ErrNavigation, err)
	}

	if detector.IsChallengeURL(location) {
		s.log.Warn("Probe was challenged, clearing persisted cookies")
		if err := s.jar.Clear(); err != nil {
			s.log.Warnf("Clearing cookie jar failed: %v", err)
		}
		return utils.ErrBotChallenge
	}
	return nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.bound(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %v", utils.ErrNavigation, url, err)
	}
	return nil
}

func (s *chromeSession) CurrentURL(ctx context.Context) (string, error) {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()
	var location string
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("%w: reading location: %v", utils.ErrBrowserSession, err)
	}
	return location, nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()
	var title string
	if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("%w: reading title: %v", utils.ErrBrowserSession, err)
	}
	return title, nil
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()
	var found bool
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &found)); err != nil {
		return false, fmt.Errorf("%w: query %s: %v", utils.ErrBrowserSession, selector, err)
	}
	return found, nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.bound(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: waiting for %s: %v", utils.ErrContainerNotYet, selector, err)
	}
	return nil
}

func (s *chromeSession) InnerHTML(ctx context.Context, selector string) (string, error) {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()
	var html string
	script := fmt.Sprintf(`(() => {
		const container = document.querySelector(%q) || document.body;
		return container.innerHTML;
	})()`, selector)
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &html)); err != nil {
		return "", fmt.Errorf("%w: reading markup of %s: %v", utils.ErrBrowserSession, selector, err)
	}
	return html, nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, out interface{}) error {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("%w: evaluate: %v", utils.ErrBrowserSession, err)
	}
	return nil
}

func (s *chromeSession) Screenshot(ctx context.Context, path string) error {
	runCtx, cancel := s.bound(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("%w: screenshot: %v", utils.ErrBrowserSession, err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("%w: writing screenshot %s: %v", utils.ErrFilesystem, path, err)
	}
	return nil
}

func (s *chromeSession) MoveMouse(ctx context.Context, x, y float64) error {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("%w: mouse move: %v", utils.ErrBrowserSession, err)
	}
	return nil
}

func (s *chromeSession) ScrollBy(ctx context.Context, deltaY float64) error {
	return s.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %f)", deltaY), nil)
}

func (s *chromeSession) PressKey(ctx context.Context, key string) error {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()

	code := key
	switch key {
	case "ArrowDown":
		code = kb.ArrowDown
	case "PageDown":
		code = kb.PageDown
	}
	if err := chromedp.Run(runCtx, chromedp.KeyEvent(code)); err != nil {
		return fmt.Errorf("%w: key press %s: %v", utils.ErrBrowserSession, key, err)
	}
	return nil
}

func (s *chromeSession) Cookies(ctx context.Context) ([]Cookie, error) {
	runCtx, cancel := s.bound(ctx, s.cfg.EvaluateTimeout)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: reading cookies: %v", utils.ErrBrowserSession, err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

// Close persists the current cookie set best-effort, then tears the
// browser down. Cookie persistence failures are logged, never returned.
func (s *chromeSession) Close() error {
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cookies, err := s.Cookies(saveCtx); err != nil {
		s.log.Warnf("Could not read cookies on teardown: %v", err)
	} else if err := s.jar.Save(cookies); err != nil {
		s.log.Warnf("Could not persist cookies on teardown: %v", err)
	} else {
		s.log.Debugf("Cookies persisted (%d)", len(cookies))
	}

	s.teardown()
	return nil
}

func (s *chromeSession) teardown() {
	s.cancelCtx()
	s.cancelAlloc()
}

// bound derives the per-call context honouring both the caller's context
// and the configured timeout
func (s *chromeSession) bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	// Browser operations must run on the session's chromedp context, but
	// respect the caller's cancellation
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }
}
