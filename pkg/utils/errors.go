package utils

import (
	"context"
	"errors"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	// Transient-Retryable: bounded retries with randomized backoff, then escalate
	ErrBotChallenge    = errors.New("bot challenge page served")
	ErrContainerNotYet = errors.New("review container not rendered")
	ErrNextNotYet      = errors.New("next-page control not rendered")
	ErrNavigation      = errors.New("navigation error") // Wraps the browser driver error

	ErrRetryFailed = errors.New("failed after all retries") // Wraps the last underlying error

	// Pagination-Fatal: aborts the current product only, the job continues
	ErrPaginationLoop     = errors.New("pagination loop: page number did not advance")
	ErrPaginationSkip     = errors.New("pagination skip: unexpected next page number")
	ErrChallengeFatal     = errors.New("unrecoverable bot challenge on main content")
	ErrFingerprintProbe   = errors.New("could not establish fingerprint")
	ErrBrowserSession     = errors.New("browser session error")

	// Job-Fatal: aborts the entire job immediately
	ErrJobInput = errors.New("job input error") // Input unreadable or no product URLs found

	// Output-Stage: logged, never masks an earlier recorded error
	ErrOutputStage = errors.New("output stage error")

	ErrCancelled        = errors.New("cancelled by user")
	ErrJobNotFound      = errors.New("job not found")
	ErrLockHeld         = errors.New("conflicting lock is active")
	ErrDatabase         = errors.New("database error")   // Wraps badger errors
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// IsTransient reports whether err is worth another attempt within the same
// bounded retry loop. Everything else escalates per the pagination rules.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrBotChallenge),
		errors.Is(err, ErrContainerNotYet),
		errors.Is(err, ErrNextNotYet),
		errors.Is(err, ErrNavigation):
		return true
	}
	// Driver timeouts behave like render lag: the page may succeed next attempt
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// IsProductFatal reports whether err should abort the current product while
// letting the job proceed to the next URL.
func IsProductFatal(err error) bool {
	switch {
	case errors.Is(err, ErrPaginationLoop),
		errors.Is(err, ErrPaginationSkip),
		errors.Is(err, ErrChallengeFatal),
		errors.Is(err, ErrFingerprintProbe),
		errors.Is(err, ErrBrowserSession),
		errors.Is(err, ErrRetryFailed):
		return true
	}
	return false
}

// CategorizeError maps an error to a category string for logging.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	case errors.Is(err, ErrBotChallenge):
		return "Challenge_Transient"
	case errors.Is(err, ErrChallengeFatal):
		return "Challenge_Fatal"
	case errors.Is(err, ErrContainerNotYet):
		return "Render_ContainerMissing"
	case errors.Is(err, ErrNextNotYet):
		return "Render_NextControlMissing"
	case errors.Is(err, ErrPaginationLoop):
		return "Pagination_Loop"
	case errors.Is(err, ErrPaginationSkip):
		return "Pagination_Skip"
	case errors.Is(err, ErrFingerprintProbe):
		return "Fingerprint_ProbeFailed"
	case errors.Is(err, ErrRetryFailed):
		return "RetryFailed"
	case errors.Is(err, ErrBrowserSession):
		return "Browser_Session"
	case errors.Is(err, ErrNavigation):
		return "Browser_Navigation"
	case errors.Is(err, ErrJobInput):
		return "Job_Input"
	case errors.Is(err, ErrOutputStage):
		return "Output_Stage"
	case errors.Is(err, ErrJobNotFound):
		return "Job_NotFound"
	case errors.Is(err, ErrLockHeld):
		return "Lock_Held"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrFilesystem):
		return "Filesystem_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return "Network_TimeoutGeneric"
	}

	return "Unknown"
}
