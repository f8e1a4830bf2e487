package transfer

import (
	"context"

	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/fs"
)

type ProduceRequest struct {
	RepoPath   string
	MediumPath string

	// Export a single parentless commit of the working tree instead of history.
	Squash bool
	// Commit message of the squash snapshot.  DefaultSquashMessage if empty.
	Message string
}

/*
	The history an incremental export covers.
	The zero Range is everything; otherwise, everything since a watermark.
*/
type Range struct {
	Since sneakernet.CommitID
}

func (r Range) Full() bool { return r.Since == "" }

// Arguments to `git bundle create` selecting this range up to tip.
func (r Range) Revs(tip string) []string {
	if r.Full() {
		return []string{"--all"}
	}
	return []string{string(r.Since) + ".." + tip}
}

/*
	Write a bundle of the repository onto the medium.

	Without Squash, exports everything since the watermark (or everything,
	if there's no watermark yet) and moves the watermark up to HEAD.
	With Squash, exports one commit holding the working tree and leaves the
	watermark alone.

	The previous bundle stays in place until the new one is complete.

	May return errors of category:

	  - `sneakernet.ErrUsage`, `sneakernet.ErrPath`, `sneakernet.ErrIdentity` -- before anything is touched
	  - `sneakernet.ErrMediumBusy` -- if another process has the medium locked
	  - `sneakernet.ErrWatermarkCorrupt`, `sneakernet.ErrWatermarkUnknown` -- if the watermark can't be used
	  - `sneakernet.ErrStepFailure`, `sneakernet.ErrMediumUnwritable` -- if the export fails
	  - `sneakernet.ErrCancelled` -- if ctx ends first
*/
func Produce(ctx context.Context, req ProduceRequest, opts Options) (*sneakernet.Result, error) {
	opts = opts.withDefaults()
	if !req.Squash && req.Message != "" {
		return nil, Errorf(sneakernet.ErrUsage, "a message is only used with --squash")
	}
	s, err := openSession(ctx, opts, req.RepoPath, req.MediumPath, true)
	if err != nil {
		return nil, err
	}
	defer s.close()

	if debris, err := s.medium.Debris(); err == nil && len(debris) > 0 {
		s.log.Warn("medium has leftovers from an interrupted export", zap.Strings("files", debris))
	}

	if req.Squash {
		message := req.Message
		if message == "" {
			message = DefaultSquashMessage
		}
		return s.produceSquash(ctx, message)
	}
	return s.produceIncremental(ctx)
}

func (s *session) produceIncremental(ctx context.Context) (*sneakernet.Result, error) {
	watermark, hasWatermark, err := s.medium.ReadWatermark(s.name)
	if err != nil {
		return nil, err
	}
	head, err := s.repo.Head()
	if err != nil {
		return nil, err
	}

	var rng Range
	if hasWatermark {
		if watermark == head {
			s.log.Info("nothing new since the last export", zap.String("watermark", string(watermark)))
			return &sneakernet.Result{
				Kind:      sneakernet.Kind_UpToDate,
				Repo:      s.name,
				Watermark: watermark,
			}, nil
		}
		if !s.repo.Contains(watermark) {
			return nil, ErrorDetailed(sneakernet.ErrWatermarkUnknown,
				"watermark "+string(watermark)+" is not a commit in this repository; remove "+s.medium.Path().JoinName(s.name.WatermarkFilename()).String()+" to export everything",
				map[string]string{"watermark": string(watermark)})
		}
		rng = Range{Since: watermark}
	}

	branch, err := s.repo.CurrentBranch()
	if err != nil {
		return nil, err
	}
	tip := branch
	if tip == "" {
		tip = "HEAD"
	}
	s.log.Debug("exporting range",
		zap.Bool("full", rng.Full()),
		zap.String("since", string(rng.Since)),
		zap.String("tip", tip),
	)

	artifact, size, err := s.export(ctx, rng.Revs(tip)...)
	if err != nil {
		return nil, err
	}
	if err := s.medium.WriteWatermark(s.name, head); err != nil {
		return nil, err
	}

	kind := sneakernet.Kind_Incremental
	if rng.Full() {
		kind = sneakernet.Kind_Full
	}
	s.log.Info("exported",
		zap.String("kind", string(kind)),
		zap.String("artifact", artifact.String()),
		zap.Int64("size", size),
	)
	return &sneakernet.Result{
		Kind:      kind,
		Repo:      s.name,
		Artifact:  artifact.String(),
		Size:      size,
		Watermark: head,
	}, nil
}

/*
	Bundle revs into a staged file on the medium, and move it into place.
	The staged file is removed if anything fails.
*/
func (s *session) export(ctx context.Context, revs ...string) (fs.AbsolutePath, int64, error) {
	staged, err := s.medium.StageArtifact(s.name)
	if err != nil {
		return fs.AbsolutePath{}, 0, err
	}
	if err := s.repo.CreateBundle(ctx, staged.Path(), revs...); err != nil {
		s.abort(staged.Abort)
		return fs.AbsolutePath{}, 0, err
	}
	size, err := staged.Commit()
	if err != nil {
		s.abort(staged.Abort)
		return fs.AbsolutePath{}, 0, err
	}
	return s.medium.ArtifactPath(s.name), size, nil
}

// Run a cleanup after a failure.  Its own failure is logged; the original error wins.
func (s *session) abort(fn func() error) {
	if err := fn(); err != nil {
		s.log.Warn("cleanup after failure also failed", zap.Error(err))
	}
}
