/*
	The git engine drives a local, non-bare git repository.

	Reads and ref/config mutations go through go-git, which needs nothing
	from the host.  The operations go-git doesn't implement -- bundles,
	fetching from a bundle, real merges, building a tree from the working
	directory -- shell out to the git CLI, which must be on the path (or
	configured with SNEAKERNET_GIT).

	Every git subprocess runs with its working directory set to the
	repository root; nothing here reads the process working directory.
*/
package git

import (
	"path/filepath"
	"strings"

	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap"

	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/transport"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/engine"
	"github.com/polydawn/sneakernet/fs"
)

var (
	_ engine.Repository = &Controller{}
)

const protocolFile = "file"

/*
	Handle on one opened repository.

	Holds no state beyond the go-git repository; it's fine to drop a
	Controller and open another on the same path.
	Note that go-git caches pack indexes, so objects written by the git CLI
	after opening may not be visible to `Contains`; open a fresh Controller
	if that matters.
*/
type Controller struct {
	path      fs.AbsolutePath
	gitBinary string
	repo      *srcd_git.Repository
	log       *zap.Logger
}

/*
	Open the repository rooted at path.

	May return errors of category:

	  - `sneakernet.ErrIdentity` -- if the path is not a git repository
*/
func Open(path fs.AbsolutePath, gitBinary string, log *zap.Logger) (*Controller, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if gitBinary == "" {
		gitBinary = "git"
	}
	repo, err := srcd_git.PlainOpen(path.String())
	switch {
	case err == srcd_git.ErrRepositoryNotExists:
		return nil, Errorf(sneakernet.ErrIdentity, "%s is not a git repository", path)
	case err != nil:
		return nil, Errorf(sneakernet.ErrIdentity, "cannot open repository at %s: %s", path, err)
	}
	return &Controller{
		path:      path,
		gitBinary: gitBinary,
		repo:      repo,
		log:       log.With(zap.String("repo", path.String())),
	}, nil
}

func (c *Controller) Path() fs.AbsolutePath { return c.path }

func (c *Controller) RemoteURL(name string) (string, bool, error) {
	remote, err := c.repo.Remote(name)
	switch {
	case err == srcd_git.ErrRemoteNotFound:
		return "", false, nil
	case err != nil:
		return "", false, Errorf(sneakernet.ErrIdentity, "cannot read remote %q: %s", name, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", false, nil
	}
	return urls[0], true, nil
}

func (c *Controller) HasRemote(name string) (bool, error) {
	_, err := c.repo.Remote(name)
	switch {
	case err == srcd_git.ErrRemoteNotFound:
		return false, nil
	case err != nil:
		return false, Errorf(sneakernet.ErrStepFailure, "cannot read remote %q: %s", name, err)
	}
	return true, nil
}

/*
	Register a remote.  Fetching it maps all heads to refs/remotes/{name}/*.

	May return errors of category:

	  - `sneakernet.ErrUsage` -- if the url can't be used
	  - `sneakernet.ErrRemoteHandleConflict` -- if the name is taken
	  - `sneakernet.ErrStepFailure` -- if the config can't be written
*/
func (c *Controller) CreateRemote(name string, url string) error {
	sanitized, err := SanitizeRemote(url)
	if err != nil {
		return err
	}
	_, err = c.repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{sanitized},
		Fetch: []config.RefSpec{
			config.RefSpec("+refs/heads/*:refs/remotes/" + name + "/*"),
		},
	})
	switch {
	case err == srcd_git.ErrRemoteExists:
		return Errorf(sneakernet.ErrRemoteHandleConflict, "remote %q already exists", name)
	case err != nil:
		return Errorf(sneakernet.ErrStepFailure, "cannot register remote %q: %s", name, err)
	}
	c.log.Debug("registered remote", zap.String("remote", name), zap.String("url", sanitized))
	return nil
}

/*
	Remove a remote's config and every remote-tracking ref under it.
	Removing a remote that doesn't exist is not an error.
*/
func (c *Controller) RemoveRemote(name string) error {
	err := c.repo.DeleteRemote(name)
	if err != nil && err != srcd_git.ErrRemoteNotFound {
		return Errorf(sneakernet.ErrRemoteHandleConflict, "cannot remove remote %q: %s", name, err)
	}
	prefix := "refs/remotes/" + name + "/"
	var doomed []plumbing.ReferenceName
	refs, err := c.repo.References()
	if err != nil {
		return Errorf(sneakernet.ErrRemoteHandleConflict, "cannot list refs of remote %q: %s", name, err)
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), prefix) {
			doomed = append(doomed, ref.Name())
		}
		return nil
	})
	if err != nil {
		return Errorf(sneakernet.ErrRemoteHandleConflict, "cannot list refs of remote %q: %s", name, err)
	}
	for _, refName := range doomed {
		if err := c.repo.Storer.RemoveReference(refName); err != nil {
			return Errorf(sneakernet.ErrRemoteHandleConflict, "cannot remove ref %s: %s", refName, err)
		}
	}
	c.log.Debug("removed remote", zap.String("remote", name), zap.Int("refs", len(doomed)))
	return nil
}

func (c *Controller) Head() (sneakernet.CommitID, error) {
	ref, err := c.repo.Head()
	switch {
	case err == plumbing.ErrReferenceNotFound:
		return "", Errorf(sneakernet.ErrStepFailure, "repository %s has no commits yet", c.path)
	case err != nil:
		return "", Errorf(sneakernet.ErrStepFailure, "cannot resolve HEAD: %s", err)
	}
	return sneakernet.CommitID(ref.Hash().String()), nil
}

// False if HEAD is unborn: the repository has no commits yet.
func (c *Controller) headBorn() (bool, error) {
	_, err := c.repo.Head()
	switch {
	case err == plumbing.ErrReferenceNotFound:
		return false, nil
	case err != nil:
		return false, Errorf(sneakernet.ErrStepFailure, "cannot resolve HEAD: %s", err)
	}
	return true, nil
}

func (c *Controller) CurrentBranch() (string, error) {
	ref, err := c.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", Errorf(sneakernet.ErrStepFailure, "cannot read HEAD: %s", err)
	}
	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", nil // detached
	}
	return ref.Target().Short(), nil
}

/*
	Returns true if the repository contains the commit for the given hash
*/
func (c *Controller) Contains(commit sneakernet.CommitID) bool {
	commitHash, err := StringToHash(string(commit))
	if err != nil {
		return false
	}
	obj, err := object.GetCommit(c.repo.Storer, commitHash)
	if err != nil {
		return false
	}
	return obj != nil
}

func (c *Controller) BranchExists(name string) (bool, error) {
	_, err := c.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	switch {
	case err == plumbing.ErrReferenceNotFound:
		return false, nil
	case err != nil:
		return false, Errorf(sneakernet.ErrStepFailure, "cannot read branch %q: %s", name, err)
	}
	return true, nil
}

func (c *Controller) CreateBranch(name string, at sneakernet.CommitID) error {
	hash, err := StringToHash(string(at))
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	if err := c.repo.Storer.SetReference(ref); err != nil {
		return Errorf(sneakernet.ErrStepFailure, "cannot create branch %q: %s", name, err)
	}
	c.log.Debug("created branch", zap.String("branch", name), zap.String("at", string(at)))
	return nil
}

func (c *Controller) DeleteBranch(name string) error {
	if err := c.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		return Errorf(sneakernet.ErrStepFailure, "cannot delete branch %q: %s", name, err)
	}
	c.log.Debug("deleted branch", zap.String("branch", name))
	return nil
}

/*
	Checks that a remote URL is something we're willing to hand to git,
	and absolutizes local paths.

	Only local files are expected here (bundles on the medium),
	but anything git can fetch from is accepted.
*/
func SanitizeRemote(remote string) (string, error) {
	var err error
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", Errorf(sneakernet.ErrUsage, "empty git remote")
	}

	endpoint, err := transport.NewEndpoint(remote)
	if err != nil {
		return "", Errorf(sneakernet.ErrUsage, "failed to parse URI: %s", err)
	}

	if endpoint.Protocol == protocolFile {
		// absolutize paths
		if HasFoldedPrefix(remote, "file://") {
			if len(remote) <= 7 {
				return "", Errorf(sneakernet.ErrUsage, "empty git remote")
			}
			remote = remote[7:]
		}
		if !filepath.IsAbs(remote) {
			remote, err = filepath.Abs(remote)
			if err != nil {
				return "", Errorf(sneakernet.ErrUsage, "failed handling local path")
			}
			return SanitizeRemote(remote)
		}
	}
	// git will happily treat a leading dash as an option
	pathString := endpoint.Host + endpoint.Path
	if pathString == "" {
		return "", Errorf(sneakernet.ErrUsage, "remote has empty path: %s", endpoint.String())
	} else if pathString[0] == '-' || remote[0] == '-' {
		return "", Errorf(sneakernet.ErrUsage, "remote cannot start with '-'")
	}
	return remote, nil
}

/*
	Combination of strings.EqualFold and strings.HasPrefix
*/
func HasFoldedPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

/*
	Transform a commit ID to a git hash.
	Performs some basic checks on inputs.
*/
func StringToHash(hash string) (plumbing.Hash, error) {
	id, err := sneakernet.ParseCommitID(hash)
	if err != nil {
		return plumbing.Hash{}, err
	}
	return plumbing.NewHash(string(id)), nil
}
