package models

import "time"

// UnknownField is the sentinel used when a heuristic cannot determine a value
// (author name, date, product variant or rating).
const UnknownField = "Неизвестно"

// Review is one extracted review record
type Review struct {
	User            string `json:"user"`
	ProductVariant  string `json:"product_variant"`
	Rating          string `json:"rating"` // "1".."5" or UnknownField
	Comment         string `json:"comment"`
	Date            string `json:"date"`
	FingerprintHash string `json:"fingerprint_hash,omitempty"` // Inherited from the owning ProductResult
	SourceURL       string `json:"source_url,omitempty"`
	Ordinal         string `json:"ordinal,omitempty"` // "i/total", computed over the final count
}

// ProductResult is the outcome of crawling one product URL. It is created
// once per URL per job and never mutated afterwards.
type ProductResult struct {
	URL            string   `json:"url"`
	ProductName    string   `json:"product_name"`
	TotalCount     int      `json:"total_count"` // Site-reported review count, best effort
	Reviews        []Review `json:"reviews"`
	Skipped        bool     `json:"skipped"` // True when deduplicated against an earlier URL
	DuplicateOfURL string   `json:"duplicate_of_url,omitempty"`
	ErrorOccurred  bool     `json:"error_occurred"`
	Error          string   `json:"error,omitempty"`
	Logs           []string `json:"logs,omitempty"` // Captured log lines for the output workbook
}

// ProcessedProduct records a fingerprint already claimed within a job,
// used to short-circuit size/colour variant pages of the same product.
type ProcessedProduct struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
}

// Job is one unit of work processing a single input batch of product URLs
type Job struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	CancelRequested bool      `json:"cancel_requested"`
	InputRef        string    `json:"input_ref"`
	OutputRef       string    `json:"output_ref,omitempty"`
	Mode            Mode      `json:"mode"`

	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	TotalURLs         int    `json:"total_urls"`
	ProcessedURLs     int    `json:"processed_urls"`
	CurrentURL        string `json:"current_url,omitempty"`
	CurrentPage       int    `json:"current_page"`
	CollectedReviews  int    `json:"collected_reviews"`
	TotalReviewsCount int    `json:"total_reviews_count"`
	QueuePosition     int    `json:"queue_position"` // 0 = active or terminal

	ProcessedProducts []ProcessedProduct `json:"processed_products,omitempty"`
	Error             string             `json:"error,omitempty"`
}

// HasFingerprint reports whether hash was already claimed by an earlier URL
// of this job and returns that URL when found.
func (j *Job) HasFingerprint(hash string) (string, bool) {
	for _, p := range j.ProcessedProducts {
		if p.Hash == hash {
			return p.URL, true
		}
	}
	return "", false
}

// Snapshot returns a shallow copy safe for read-only status reporting.
// The ProcessedProducts slice is copied so callers cannot observe appends.
func (j *Job) Snapshot() Job {
	cp := *j
	cp.ProcessedProducts = append([]ProcessedProduct(nil), j.ProcessedProducts...)
	return cp
}
