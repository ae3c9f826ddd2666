package models

// JobStatus represents the lifecycle state of a crawl job
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"      // Accepted, waiting for the active slot
	JobStatusDownloading JobStatus = "downloading" // Fetching and reading the input workbook
	JobStatusParsing     JobStatus = "parsing"     // Crawling product review pages
	JobStatusCancelling  JobStatus = "cancelling"  // Cancel requested, pipeline winding down
	JobStatusCancelled   JobStatus = "cancelled"   // Terminal: stopped by the user
	JobStatusCompleted   JobStatus = "completed"   // Terminal: finished normally
	JobStatusError       JobStatus = "error"       // Terminal: aborted with an error
)

// String implements fmt.Stringer for logging
func (s JobStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsTerminal returns true once a job can no longer change state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCancelled, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// IsActive returns true while a job owns the single worker slot
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusDownloading, JobStatusParsing, JobStatusCancelling:
		return true
	}
	return false
}

// Mode controls how strictly the extractor treats reviews without text
type Mode string

const (
	ModeAll        Mode = "all"         // Keep every review, text or not
	ModeTextOnly   Mode = "text-only"   // Silently skip reviews without a comment
	ModeStrictText Mode = "strict-text" // Stop the whole product at the first empty comment
)

// String implements fmt.Stringer for logging
func (m Mode) String() string { return string(m) }

// IsValid returns true if the mode is a known value
func (m Mode) IsValid() bool {
	switch m {
	case ModeAll, ModeTextOnly, ModeStrictText:
		return true
	}
	return false
}

// DefaultMode is applied when a submission leaves the mode empty
const DefaultMode = ModeStrictText
