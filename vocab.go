package sneakernet

// Types in this file are all serializable.
// They cover the names written onto the transfer medium and the results
// reported by the CLI.

import (
	"encoding/hex"
	"strings"

	"github.com/polydawn/refmt/obj/atlas"
	"github.com/warpfork/go-errcat"
)

// Short name of a repository, used to namespace the files it owns on a medium.
//
// Derived from the upstream remote URL (last path segment minus ".git"),
// or from the repository directory name.  Always a valid filename fragment.
type RepoName string

// ParseRepoName checks that a derived name can be used as part of a filename.
func ParseRepoName(s string) (RepoName, error) {
	switch {
	case s == "", s == ".", s == "..":
		return "", errcat.Errorf(ErrIdentity, "%q is not usable as a repository name", s)
	case strings.ContainsAny(s, "/\\\x00"):
		return "", errcat.Errorf(ErrIdentity, "repository name %q contains a path separator", s)
	}
	return RepoName(s), nil
}

// Filename of the bundle on the medium.  One per repository; each export replaces it.
func (n RepoName) ArtifactFilename() string { return string(n) + "-bundle.git" }

// Filename of the watermark on the medium.
func (n RepoName) WatermarkFilename() string { return "last-bundled-" + string(n) + ".txt" }

// A full, 40 hex character git commit id, normalized to lower case.
//
// The watermark stored on the medium is a CommitID: the producer's HEAD at
// the time of its last incremental export.
type CommitID string

func ParseCommitID(s string) (CommitID, error) {
	if len(s) != 40 {
		return "", errcat.Errorf(ErrUsage, "git commit hashes are 40 characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", errcat.Errorf(ErrUsage, "git commit hashes are hex strings")
	}
	return CommitID(strings.ToLower(s)), nil
}

// What a bundle contains, or what an invocation did with one.
type ArtifactKind string

const (
	Kind_Full        ArtifactKind = "full"        // Whole reachable history; no watermark existed.
	Kind_Incremental ArtifactKind = "incremental" // Commits since the watermark.
	Kind_Squash      ArtifactKind = "squash"      // One orphan commit holding the working tree.
	Kind_UpToDate    ArtifactKind = "up-to-date"  // Nothing new since the watermark; nothing written.
)

// Branches created for squash snapshots live under this prefix.
// Consumers treat a bundle head under it as the marker of a squash bundle.
const SquashBranchPrefix = "sneakernet/squash-"

// Outcome of one create-bundle or apply-bundle invocation.
type Result struct {
	Kind      ArtifactKind `refmt:"kind"`
	Repo      RepoName     `refmt:"repo"`
	Artifact  string       `refmt:"artifact,omitempty"`  // Absolute path of the bundle on the medium.
	Size      int64        `refmt:"size,omitempty"`      // Bundle size in bytes (producer only).
	Watermark CommitID     `refmt:"watermark,omitempty"` // Watermark written (incremental producer only).
	Merged    string       `refmt:"merged,omitempty"`    // Ref merged (consumer only).
}

// Serializable error report.
type EventError struct {
	Category ErrorCategory `refmt:"category"`
	Message  string        `refmt:"message"`
}

// The single message emitted on stdout in json mode.
type Event struct {
	Result *Result     `refmt:"result,omitempty"`
	Error  *EventError `refmt:"error,omitempty"`
}

// SetError fills in the error half of an event.
// Errors without a sneakernet category are reported as step failures.
func (ev *Event) SetError(err error) {
	if err == nil {
		ev.Error = nil
		return
	}
	cat := CategoryOf(err)
	if cat == "" {
		cat = ErrStepFailure
	}
	msg := err.Error()
	if e, ok := err.(errcat.Error); ok {
		msg = e.Message()
	}
	ev.Error = &EventError{Category: cat, Message: msg}
}

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Event{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(EventError{}).StructMap().Autogenerate().Complete(),
)
