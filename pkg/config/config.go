package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BrowserConfig holds settings for browser session creation and the
// anti-automation evasion layer applied at session start
type BrowserConfig struct {
	Headless            bool          `yaml:"headless"`
	UserAgents          []string      `yaml:"user_agents,omitempty"`    // Pool to rotate; defaults applied when empty
	AcceptLanguage      string        `yaml:"accept_language,omitempty"`
	ProxyURL            string        `yaml:"proxy_url,omitempty"`      // Optional upstream proxy
	ProxyUser           string        `yaml:"proxy_user,omitempty"`
	ProxyPass           string        `yaml:"proxy_pass,omitempty"`
	CookieFile          string        `yaml:"cookie_file,omitempty"`    // Persisted cookie jar (JSON)
	NavigationTimeout   time.Duration `yaml:"navigation_timeout,omitempty"`
	SelectorTimeout     time.Duration `yaml:"selector_timeout,omitempty"`
	EvaluateTimeout     time.Duration `yaml:"evaluate_timeout,omitempty"`
	ProbeURL            string        `yaml:"probe_url,omitempty"`      // Lightweight navigation to verify the session
	BotChallengeMarkers []string      `yaml:"bot_challenge_markers,omitempty"` // URL substrings marking an anti-bot interstitial
}

// CrawlConfig holds pagination and retry behaviour for a single product crawl
type CrawlConfig struct {
	ReviewContainerSelector string        `yaml:"review_container_selector,omitempty"`
	ProductURLPrefix        string        `yaml:"product_url_prefix,omitempty"` // Input rows must start with this to count as product links
	MaxPagesPerProduct      int           `yaml:"max_pages_per_product,omitempty"`
	ProbeAttempts           int           `yaml:"probe_attempts,omitempty"`     // Retries for the fingerprint probe load
	NextPageAttempts        int           `yaml:"next_page_attempts,omitempty"` // Retries for a not-yet-rendered next-page control
	RetryBaseDelay          time.Duration `yaml:"retry_base_delay,omitempty"`
	RetryJitter             time.Duration `yaml:"retry_jitter,omitempty"`
	PageDelay               time.Duration `yaml:"page_delay,omitempty"` // Pause after advancing to the next page
}

// JobsConfig holds orchestrator behaviour
type JobsConfig struct {
	SettleDelay     time.Duration `yaml:"settle_delay,omitempty"`     // Pause before promoting the next queued job
	RetentionTTL    time.Duration `yaml:"retention_ttl,omitempty"`    // How long terminal jobs stay queryable
	JanitorInterval time.Duration `yaml:"janitor_interval,omitempty"` // Sweep cadence for expired terminal jobs
}

// LockConfig holds the shared advisory lock settings
type LockConfig struct {
	Dir       string        `yaml:"dir,omitempty"`
	ParserTTL time.Duration `yaml:"parser_ttl,omitempty"`
	CookieTTL time.Duration `yaml:"cookie_ttl,omitempty"`
}

// StorageConfig holds input/output collaborator settings
type StorageConfig struct {
	OutputDir   string `yaml:"output_dir,omitempty"`   // Where result workbooks are written
	ArtifactDir string `yaml:"artifact_dir,omitempty"` // Where debug screenshots land before upload
	StateDir    string `yaml:"state_dir,omitempty"`    // Badger job-history mirror (optional)
	MirrorJobs  bool   `yaml:"mirror_jobs"`            // Enable the durable job-history mirror
}

// WatchConfig holds the out-of-band cookie refresh schedule
type WatchConfig struct {
	CookieRefreshSchedule string `yaml:"cookie_refresh_schedule,omitempty"` // Cron expression; empty disables
	ProfileURL            string `yaml:"profile_url,omitempty"`             // Page visited to earn fresh cookies
}

// AppConfig holds the global application configuration
type AppConfig struct {
	ListenAddr string        `yaml:"listen_addr,omitempty"`
	LogLevel   string        `yaml:"log_level,omitempty"`
	Browser    BrowserConfig `yaml:"browser"`
	Crawl      CrawlConfig   `yaml:"crawl"`
	Jobs       JobsConfig    `yaml:"jobs"`
	Lock       LockConfig    `yaml:"lock"`
	Storage    StorageConfig `yaml:"storage"`
	Watch      WatchConfig   `yaml:"watch"`
}

// defaultUserAgents are realistic desktop agents rotated per session.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:117.0) Gecko/20100101 Firefox/117.0",
}

// Load reads, parses and defaults the application configuration from path
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in zero-valued fields with working defaults
func (c *AppConfig) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	b := &c.Browser
	if len(b.UserAgents) == 0 {
		b.UserAgents = append([]string(nil), defaultUserAgents...)
	}
	if b.AcceptLanguage == "" {
		b.AcceptLanguage = "ru-RU,ru;q=0.9,en;q=0.8"
	}
	if b.CookieFile == "" {
		b.CookieFile = "cookies.json"
	}
	if b.NavigationTimeout == 0 {
		b.NavigationTimeout = 30 * time.Second
	}
	if b.SelectorTimeout == 0 {
		b.SelectorTimeout = 20 * time.Second
	}
	if b.EvaluateTimeout == 0 {
		b.EvaluateTimeout = 15 * time.Second
	}
	if len(b.BotChallengeMarkers) == 0 {
		b.BotChallengeMarkers = []string{"captcha", "antibot"}
	}

	cr := &c.Crawl
	if cr.ReviewContainerSelector == "" {
		cr.ReviewContainerSelector = `[data-widget="webListReviews"]`
	}
	if cr.ProductURLPrefix == "" {
		cr.ProductURLPrefix = "https://www.ozon.ru/product/"
	}
	if cr.MaxPagesPerProduct == 0 {
		cr.MaxPagesPerProduct = 400
	}
	if cr.ProbeAttempts == 0 {
		cr.ProbeAttempts = 3
	}
	if cr.NextPageAttempts == 0 {
		cr.NextPageAttempts = 3
	}
	if cr.RetryBaseDelay == 0 {
		cr.RetryBaseDelay = 2 * time.Second
	}
	if cr.RetryJitter == 0 {
		cr.RetryJitter = 3 * time.Second
	}
	if cr.PageDelay == 0 {
		cr.PageDelay = 2 * time.Second
	}

	j := &c.Jobs
	if j.SettleDelay == 0 {
		j.SettleDelay = 2 * time.Second
	}
	if j.RetentionTTL == 0 {
		j.RetentionTTL = 24 * time.Hour
	}
	if j.JanitorInterval == 0 {
		j.JanitorInterval = 15 * time.Minute
	}

	l := &c.Lock
	if l.Dir == "" {
		l.Dir = "/tmp/review-scraper"
	}
	if l.ParserTTL == 0 {
		l.ParserTTL = 30 * time.Minute
	}
	if l.CookieTTL == 0 {
		l.CookieTTL = 10 * time.Minute
	}

	s := &c.Storage
	if s.OutputDir == "" {
		s.OutputDir = "output"
	}
	if s.ArtifactDir == "" {
		s.ArtifactDir = os.TempDir()
	}
	if s.StateDir == "" {
		s.StateDir = "state"
	}

	w := &c.Watch
	if w.ProfileURL == "" {
		w.ProfileURL = "https://www.ozon.ru/my/main"
	}
}
