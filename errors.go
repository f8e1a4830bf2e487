package sneakernet

import (
	"github.com/warpfork/go-errcat"
)

// Category for all errors raised by sneakernet.
// Errors are built with `errcat.Errorf(category, ...)`; use `errcat.Category(err)`
// to switch on them.
type ErrorCategory string

const (
	ErrUsage                ErrorCategory = "sneakernet-usage-error"            // Wrong argument count or shape.
	ErrPath                 ErrorCategory = "sneakernet-path-error"             // Repository or medium path does not exist.
	ErrIdentity             ErrorCategory = "sneakernet-identity-error"         // The repository path is not a usable repository.
	ErrArtifactMissing      ErrorCategory = "sneakernet-artifact-missing"       // No bundle for this repository on the medium.
	ErrVerification         ErrorCategory = "sneakernet-verification-error"     // The bundle failed integrity verification.
	ErrRemoteHandleConflict ErrorCategory = "sneakernet-remote-handle-conflict" // A stale transient remote could not be removed.
	ErrMergeConflict        ErrorCategory = "sneakernet-merge-conflict"         // Merging left unmerged paths; resolve by hand.
	ErrStepFailure          ErrorCategory = "sneakernet-step-failure"           // A git step (snapshot, export, fetch, merge...) failed.
	ErrWatermarkCorrupt     ErrorCategory = "sneakernet-watermark-corrupt"      // The watermark file does not hold a commit hash.
	ErrWatermarkUnknown     ErrorCategory = "sneakernet-watermark-unknown"      // The watermark commit is not in this repository.
	ErrAmbiguousArtifact    ErrorCategory = "sneakernet-ambiguous-artifact"     // Cannot decide which ref in the bundle to merge.
	ErrMediumBusy           ErrorCategory = "sneakernet-medium-busy"            // Another process holds the medium lock.
	ErrMediumUnwritable     ErrorCategory = "sneakernet-medium-unwritable"      // Writing to the medium failed.
	ErrCancelled            ErrorCategory = "sneakernet-cancelled"              // The context was cancelled part-way through.
)

// Process exit codes.
// Every failure is reported as ExitFailure; the category is printed instead.
type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1
)

// ExitCodeFor maps a result error onto the process exit code.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}

// CategoryOf returns the sneakernet category of an error,
// or the empty category if the error was not raised by sneakernet.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	cat, _ := errcat.Category(err).(ErrorCategory)
	return cat
}
