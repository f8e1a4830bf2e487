/*
	The transfer package is the protocol half of sneakernet: deciding what to
	export, keeping the watermark, snapshotting for squash exports, and on the
	other side classifying and merging whatever bundle the medium carries.

	Produce and Consume are the two entrypoints.  Each works on exactly the
	repository and medium paths it's given, through an `engine.Repository`
	opened for that call.
*/
package transfer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/config"
	"github.com/polydawn/sneakernet/engine"
	gitengine "github.com/polydawn/sneakernet/engine/impl/git"
	"github.com/polydawn/sneakernet/fs"
	"github.com/polydawn/sneakernet/medium"
)

// Message of squash snapshot commits when none is given.
const DefaultSquashMessage = "Squashed snapshot"

type Options struct {
	// Taken as given when set, Lock included; only an empty HandleRemote is filled in.
	// `config.Defaults()` if nil.
	Config *config.Config
	Log    *zap.Logger // Nop if nil.

	// Opens the repository.  Defaults to the git engine, using Config.GitBinary.
	Open func(path fs.AbsolutePath) (engine.Repository, error)

	// Clock for squash branch names.  Defaults to time.Now.
	Now func() time.Time
}

func (opts Options) withDefaults() Options {
	defaults := config.Defaults()
	if opts.Config == nil {
		opts.Config = &defaults
	} else if opts.Config.HandleRemote == "" {
		cfg := *opts.Config
		cfg.HandleRemote = defaults.HandleRemote
		opts.Config = &cfg
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Open == nil {
		gitBinary, log := opts.Config.GitBinary, opts.Log
		opts.Open = func(path fs.AbsolutePath) (engine.Repository, error) {
			repo, err := gitengine.Open(path, gitBinary, log)
			if err != nil {
				return nil, err
			}
			return repo, nil
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// Everything one invocation works with, set up in the same order every time.
type session struct {
	opts   Options
	log    *zap.Logger
	repo   engine.Repository
	name   sneakernet.RepoName
	medium *medium.Medium
	lease  *medium.Lease
}

/*
	Resolve and check both paths, open the repository, name it, open the
	medium and take its lock.  Both paths are checked before the repository
	is touched.

	The caller must `close` the session.
*/
func openSession(ctx context.Context, opts Options, repoPath, mediumPath string, exclusive bool) (*session, error) {
	repoAbs, err := fs.ResolveAbsolutePath(repoPath)
	if err != nil {
		return nil, err
	}
	mediumAbs, err := fs.ResolveAbsolutePath(mediumPath)
	if err != nil {
		return nil, err
	}
	if err := fs.RequireDir("repository", repoAbs); err != nil {
		return nil, err
	}
	if err := fs.RequireDir("medium", mediumAbs); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	repo, err := opts.Open(repoAbs)
	if err != nil {
		return nil, err
	}
	name, err := ResolveName(repo, opts.Config.UpstreamRemote)
	if err != nil {
		return nil, err
	}
	log := opts.Log.With(zap.String("repo", string(name)))

	med, err := medium.Open(mediumAbs, log)
	if err != nil {
		return nil, err
	}
	var lease *medium.Lease
	if opts.Config.Lock {
		lease, err = medium.Lock(mediumAbs, exclusive)
		if err != nil {
			return nil, err
		}
	}
	log.Debug("session open",
		zap.String("repoPath", repoAbs.String()),
		zap.String("mediumPath", mediumAbs.String()),
		zap.Bool("locked", lease != nil),
	)
	return &session{
		opts:   opts,
		log:    log,
		repo:   repo,
		name:   name,
		medium: med,
		lease:  lease,
	}, nil
}

func (s *session) close() {
	if err := s.lease.Release(); err != nil {
		s.log.Warn("failed to release medium lock", zap.Error(err))
	}
}
