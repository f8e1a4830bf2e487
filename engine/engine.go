/*
	The engine package describes what the transfer protocol needs from a
	version control engine.

	Everything here operates on one explicit repository handle.
	Implementations must never depend on the process working directory.
*/
package engine

import (
	"context"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/fs"
)

// A named ref and the commit it points at, as listed by a repository or a bundle.
type Ref struct {
	Name string // Full ref name, e.g. "refs/heads/master", or "HEAD".
	Hash sneakernet.CommitID
}

type MergeOptions struct {
	// Permit joining two histories with no common ancestor.
	AllowUnrelatedHistories bool
	// Message for the merge commit.  Engine default if empty.
	Message string
}

/*
	A Repository is an opened local repository.

	Query methods are cheap and read-only.
	The methods taking a context may run for a while and mutate the
	repository or the filesystem.

	Errors are categorized with `sneakernet.ErrorCategory`.
*/
type Repository interface {
	Path() fs.AbsolutePath

	// URL of the named remote.  The bool is false if no such remote is configured.
	RemoteURL(name string) (string, bool, error)
	HasRemote(name string) (bool, error)
	// Register a remote fetching all heads into refs/remotes/{name}/.
	CreateRemote(name string, url string) error
	// Remove a remote and its remote-tracking refs.
	RemoveRemote(name string) error

	// Commit HEAD points at.  Fails on an unborn HEAD.
	Head() (sneakernet.CommitID, error)
	// Short name of the checked out branch, or "" if HEAD is detached.
	// Reports the branch name even when it is unborn.
	CurrentBranch() (string, error)
	Contains(commit sneakernet.CommitID) bool
	BranchExists(name string) (bool, error)
	CreateBranch(name string, at sneakernet.CommitID) error
	DeleteBranch(name string) error
	Checkout(ctx context.Context, rev string) error

	// Commit every tracked and untracked file in the working tree, as a
	// single commit with no parents.  Neither HEAD nor the index move.
	SnapshotWorktree(ctx context.Context, message string) (sneakernet.CommitID, error)

	// Write a bundle of the given revision arguments to dest.
	CreateBundle(ctx context.Context, dest fs.AbsolutePath, revs ...string) error
	VerifyBundle(ctx context.Context, bundle fs.AbsolutePath) error
	BundleHeads(ctx context.Context, bundle fs.AbsolutePath) ([]Ref, error)

	// Fetch from a remote.  Uses the remote's configured refspecs if none are given.
	Fetch(ctx context.Context, remote string, refspecs ...string) error
	// Merge a rev into the checked out branch.
	// Conflicts yield `sneakernet.ErrMergeConflict` and leave the repository conflicted.
	Merge(ctx context.Context, rev string, opts MergeOptions) error
}
