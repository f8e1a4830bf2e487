package transfer

import (
	"context"

	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/lib/guid"
)

/*
	States of a squash export, in order.

	Each state that leaves something behind pushes a compensation; on failure
	they run newest first.  The snapshot is built through a scratch index,
	so HEAD and the working tree never move and `restore` is normally a no-op
	check.
*/
type squashState string

const (
	squashRemember squashState = "remember"
	squashSnapshot squashState = "snapshot"
	squashBranch   squashState = "branch"
	squashExport   squashState = "export"
	squashRestore  squashState = "restore"
	squashCleanup  squashState = "cleanup"
)

type compensation struct {
	state squashState
	undo  func() error
}

type compensations []compensation

func (cs *compensations) push(state squashState, undo func() error) {
	*cs = append(*cs, compensation{state, undo})
}

func (cs *compensations) unwind(log *zap.Logger) {
	for i := len(*cs) - 1; i >= 0; i-- {
		c := (*cs)[i]
		if err := c.undo(); err != nil {
			log.Warn("squash compensation failed", zap.String("state", string(c.state)), zap.Error(err))
		}
	}
	*cs = nil
}

// Where HEAD was, as a branch name or (when detached) a commit.
type position struct {
	branch string
	commit sneakernet.CommitID
}

func (s *session) position() (position, error) {
	branch, err := s.repo.CurrentBranch()
	if err != nil {
		return position{}, err
	}
	if branch != "" {
		return position{branch: branch}, nil
	}
	commit, err := s.repo.Head()
	if err != nil {
		return position{}, err
	}
	return position{commit: commit}, nil
}

func (p position) rev() string {
	if p.branch != "" {
		return p.branch
	}
	return string(p.commit)
}

// Keeps the category of err, if it has one, and says which state failed.
func squashError(state squashState, err error) error {
	cat := sneakernet.CategoryOf(err)
	if cat == "" {
		cat = sneakernet.ErrStepFailure
	}
	msg := err.Error()
	if e, ok := err.(Error); ok {
		msg = e.Message()
	}
	return Errorf(cat, "squash failed at %s: %s", state, msg)
}

func (s *session) squashBranchName() string {
	now := s.opts.Now().UTC()
	return sneakernet.SquashBranchPrefix + now.Format("20060102T150405Z") + "-" + guid.At(now)
}

func (s *session) produceSquash(ctx context.Context, message string) (_ *sneakernet.Result, err error) {
	var undo compensations
	defer func() {
		if err != nil {
			undo.unwind(s.log)
		}
	}()
	enter := func(state squashState) error {
		s.log.Debug("squash", zap.String("state", string(state)))
		if err := ctx.Err(); err != nil {
			return squashError(state, cancelled(err))
		}
		return nil
	}

	if err := enter(squashRemember); err != nil {
		return nil, err
	}
	original, err := s.position()
	if err != nil {
		return nil, squashError(squashRemember, err)
	}

	if err := enter(squashSnapshot); err != nil {
		return nil, err
	}
	snapshot, err := s.repo.SnapshotWorktree(ctx, message)
	if err != nil {
		return nil, squashError(squashSnapshot, err)
	}

	if err := enter(squashBranch); err != nil {
		return nil, err
	}
	branch := s.squashBranchName()
	taken, err := s.repo.BranchExists(branch)
	if err != nil {
		return nil, squashError(squashBranch, err)
	}
	if taken {
		return nil, squashError(squashBranch, Errorf(sneakernet.ErrStepFailure, "branch %q already exists", branch))
	}
	if err := s.repo.CreateBranch(branch, snapshot); err != nil {
		return nil, squashError(squashBranch, err)
	}
	undo.push(squashBranch, func() error { return s.repo.DeleteBranch(branch) })

	if err := enter(squashExport); err != nil {
		return nil, err
	}
	artifact, size, err := s.export(ctx, "refs/heads/"+branch)
	if err != nil {
		return nil, squashError(squashExport, err)
	}

	if err := enter(squashRestore); err != nil {
		return nil, err
	}
	now, err := s.position()
	if err != nil {
		return nil, squashError(squashRestore, err)
	}
	if now != original {
		s.log.Warn("HEAD moved during squash; checking out the original again",
			zap.String("original", original.rev()),
			zap.String("now", now.rev()),
		)
		if err := s.repo.Checkout(ctx, original.rev()); err != nil {
			return nil, squashError(squashRestore, err)
		}
	}

	if err := enter(squashCleanup); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteBranch(branch); err != nil {
		return nil, squashError(squashCleanup, err)
	}
	undo = nil

	s.log.Info("exported",
		zap.String("kind", string(sneakernet.Kind_Squash)),
		zap.String("artifact", artifact.String()),
		zap.String("snapshot", string(snapshot)),
		zap.Int64("size", size),
	)
	return &sneakernet.Result{
		Kind:     sneakernet.Kind_Squash,
		Repo:     s.name,
		Artifact: artifact.String(),
		Size:     size,
	}, nil
}
