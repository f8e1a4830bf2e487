package transfer

import (
	"context"
	"strings"

	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/engine"
)

type ConsumeRequest struct {
	RepoPath   string
	MediumPath string
}

/*
	Merge the repository's bundle from the medium into the checked out branch.

	The bundle is verified and classified before the repository is touched.
	A transient remote pointing at the bundle is registered for the fetch,
	and removed again however the rest goes.

	May return errors of category:

	  - `sneakernet.ErrUsage`, `sneakernet.ErrPath`, `sneakernet.ErrIdentity` -- before anything is touched
	  - `sneakernet.ErrMediumBusy` -- if a producer has the medium locked
	  - `sneakernet.ErrArtifactMissing` -- if there's no bundle for this repository
	  - `sneakernet.ErrVerification` -- if the bundle is damaged, or needs commits this repository lacks;
	    damage inside the pack is only found when fetching
	  - `sneakernet.ErrAmbiguousArtifact` -- if it can't be decided which ref to merge
	  - `sneakernet.ErrRemoteHandleConflict` -- if the transient remote can't be removed
	  - `sneakernet.ErrMergeConflict` -- if the merge stopped with conflicts; resolve them by hand
	  - `sneakernet.ErrStepFailure` -- if the merge fails otherwise
	  - `sneakernet.ErrCancelled` -- if ctx ends first
*/
func Consume(ctx context.Context, req ConsumeRequest, opts Options) (result *sneakernet.Result, err error) {
	opts = opts.withDefaults()
	s, err := openSession(ctx, opts, req.RepoPath, req.MediumPath, false)
	if err != nil {
		return nil, err
	}
	defer s.close()

	artifact, _, err := s.medium.RequireArtifact(s.name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.VerifyBundle(ctx, artifact); err != nil {
		return nil, err
	}
	heads, err := s.repo.BundleHeads(ctx, artifact)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.CurrentBranch()
	if err != nil {
		return nil, err
	}
	target, err := Classify(heads, current)
	if err != nil {
		return nil, err
	}
	s.log.Debug("classified bundle",
		zap.String("kind", string(target.Kind)),
		zap.String("ref", target.Ref.Name),
	)

	handle := s.opts.Config.HandleRemote
	if err := s.registerHandle(handle, artifact.String()); err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := s.repo.RemoveRemote(handle); rmErr != nil {
			if err == nil {
				result, err = nil, Errorf(sneakernet.ErrRemoteHandleConflict, "failed to remove remote %q: %s", handle, rmErr)
			} else {
				s.log.Warn("failed to remove transient remote", zap.String("remote", handle), zap.Error(rmErr))
			}
		}
	}()

	if err := s.repo.Fetch(ctx, handle, target.Refspec(handle)); err != nil {
		if sneakernet.CategoryOf(err) == sneakernet.ErrCancelled {
			return nil, err
		}
		// The pack is only read in full here; a truncated one passes verify.
		return nil, Errorf(sneakernet.ErrVerification, "bundle %s could not be read: %s", artifact, err)
	}
	if err := s.repo.Merge(ctx, target.TrackingRef(handle), engine.MergeOptions{
		AllowUnrelatedHistories: target.Kind == sneakernet.Kind_Squash,
	}); err != nil {
		return nil, err
	}

	s.log.Info("merged",
		zap.String("kind", string(target.Kind)),
		zap.String("ref", target.Ref.Name),
	)
	return &sneakernet.Result{
		Kind:     target.Kind,
		Repo:     s.name,
		Artifact: artifact.String(),
		Merged:   target.Ref.Name,
	}, nil
}

/*
	Register the transient remote, replacing a stale one left by an earlier run.
*/
func (s *session) registerHandle(handle, url string) error {
	exists, err := s.repo.HasRemote(handle)
	if err != nil {
		return Errorf(sneakernet.ErrRemoteHandleConflict, "cannot check for remote %q: %s", handle, err)
	}
	if exists {
		s.log.Info("removing stale transient remote", zap.String("remote", handle))
		if err := s.repo.RemoveRemote(handle); err != nil {
			return Errorf(sneakernet.ErrRemoteHandleConflict, "stale remote %q could not be removed: %s", handle, err)
		}
	}
	return s.repo.CreateRemote(handle, url)
}

// The ref chosen to merge from a bundle, and what kind of bundle it came from.
type Target struct {
	Kind sneakernet.ArtifactKind
	Ref  engine.Ref
}

const headsPrefix = "refs/heads/"

func (t Target) shortName() string {
	return strings.TrimPrefix(t.Ref.Name, headsPrefix)
}

// Where the target lands when fetched through the remote named handle.
func (t Target) TrackingRef(handle string) string {
	return "refs/remotes/" + handle + "/" + t.shortName()
}

// Refspec fetching only the target.
func (t Target) Refspec(handle string) string {
	return "+" + t.Ref.Name + ":" + t.TrackingRef(handle)
}

/*
	Decide what a bundle is and which of its refs to merge.

	A head under the squash prefix marks a squash bundle; more than one is
	ambiguous.  Otherwise it's incremental, and the branch merged is the
	first of: the branch named like `current`; the bundle's only branch;
	the branch its HEAD points at; HEAD itself, if it carries no branches.

	May return errors of category:

	  - `sneakernet.ErrAmbiguousArtifact` -- if no single ref can be chosen
*/
func Classify(heads []engine.Ref, current string) (Target, error) {
	var squashes, branches []engine.Ref
	var head *engine.Ref
	for i, ref := range heads {
		switch {
		case strings.HasPrefix(ref.Name, headsPrefix+sneakernet.SquashBranchPrefix):
			squashes = append(squashes, ref)
		case strings.HasPrefix(ref.Name, headsPrefix):
			branches = append(branches, ref)
		case ref.Name == "HEAD":
			head = &heads[i]
		}
	}

	switch len(squashes) {
	case 0:
	case 1:
		return Target{sneakernet.Kind_Squash, squashes[0]}, nil
	default:
		names := make([]string, len(squashes))
		for i, ref := range squashes {
			names[i] = ref.Name
		}
		return Target{}, ErrorDetailed(sneakernet.ErrAmbiguousArtifact,
			"bundle carries more than one squash snapshot: "+strings.Join(names, ", "),
			map[string]string{"candidates": strings.Join(names, ",")})
	}

	if current != "" {
		for _, ref := range branches {
			if ref.Name == headsPrefix+current {
				return Target{sneakernet.Kind_Incremental, ref}, nil
			}
		}
	}
	if len(branches) == 1 {
		return Target{sneakernet.Kind_Incremental, branches[0]}, nil
	}
	if head != nil {
		var pointed []engine.Ref
		for _, ref := range branches {
			if ref.Hash == head.Hash {
				pointed = append(pointed, ref)
			}
		}
		switch {
		case len(pointed) == 1:
			return Target{sneakernet.Kind_Incremental, pointed[0]}, nil
		case len(branches) == 0:
			return Target{sneakernet.Kind_Incremental, *head}, nil
		}
	}
	if len(branches) == 0 {
		return Target{}, Errorf(sneakernet.ErrAmbiguousArtifact, "bundle carries no branches")
	}
	return Target{}, Errorf(sneakernet.ErrAmbiguousArtifact, "cannot tell which of the bundle's %d branches to merge", len(branches))
}
