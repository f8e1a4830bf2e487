/*
	The medium package manages the files sneakernet keeps on a transfer medium:
	one bundle and one watermark per repository, side by side in a flat
	directory.

	Writes are staged under a scratch name in the same directory and renamed
	into place, so a reader never sees half a bundle or half a watermark,
	and an interrupted export leaves the previous files intact.
*/
package medium

import (
	"os"
	"strings"

	"github.com/spf13/afero"
	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/fs"
	"github.com/polydawn/sneakernet/lib/guid"
)

// Prefix of staged files.  Anything left with it is debris from an interrupted run.
const stagePrefix = ".tmp.upload."

type Medium struct {
	path fs.AbsolutePath // real location, for messages and for handing to git
	afs  afero.Fs        // rooted at path
	log  *zap.Logger
}

/*
	Open the medium directory at path.

	May return errors of category:

	  - `sneakernet.ErrPath` -- if the directory doesn't exist
*/
func Open(path fs.AbsolutePath, log *zap.Logger) (*Medium, error) {
	if err := fs.RequireDir("medium", path); err != nil {
		return nil, err
	}
	return New(path, afero.NewBasePathFs(afero.NewOsFs(), path.String()), log), nil
}

/*
	New wraps an already-rooted filesystem.
	Paths returned for git's use are still built from `path`.
*/
func New(path fs.AbsolutePath, afs afero.Fs, log *zap.Logger) *Medium {
	if log == nil {
		log = zap.NewNop()
	}
	return &Medium{
		path: path,
		afs:  afs,
		log:  log.With(zap.String("medium", path.String())),
	}
}

func (m *Medium) Path() fs.AbsolutePath { return m.path }

// Absolute path where the repository's bundle lives, whether or not it exists yet.
func (m *Medium) ArtifactPath(name sneakernet.RepoName) fs.AbsolutePath {
	return m.path.JoinName(name.ArtifactFilename())
}

/*
	Look for the repository's bundle.

	May return errors of category:

	  - `sneakernet.ErrArtifactMissing` -- if there's no bundle, or it's not a regular file
*/
func (m *Medium) RequireArtifact(name sneakernet.RepoName) (fs.AbsolutePath, int64, error) {
	stat, err := m.afs.Stat(name.ArtifactFilename())
	switch {
	case os.IsNotExist(err):
		return fs.AbsolutePath{}, 0, Errorf(sneakernet.ErrArtifactMissing, "no bundle for %s on the medium (expected %s)", name, m.ArtifactPath(name))
	case err != nil:
		return fs.AbsolutePath{}, 0, Errorf(sneakernet.ErrArtifactMissing, "bundle for %s unavailable: %s", name, err)
	case !stat.Mode().IsRegular():
		return fs.AbsolutePath{}, 0, Errorf(sneakernet.ErrArtifactMissing, "bundle path %s is not a file", m.ArtifactPath(name))
	}
	return m.ArtifactPath(name), stat.Size(), nil
}

/*
	Reserve a scratch file next to the repository's bundle, for git to
	write the new bundle into.  Call `Commit` to move it into place,
	or `Abort` to discard it.

	May return errors of category:

	  - `sneakernet.ErrMediumUnwritable` -- if the scratch file can't be created
*/
func (m *Medium) StageArtifact(name sneakernet.RepoName) (*Staged, error) {
	final := name.ArtifactFilename()
	stage := stagePrefix + final + "." + guid.New()
	file, err := m.afs.OpenFile(stage, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, Errorf(sneakernet.ErrMediumUnwritable, "failed to reserve space on the medium: %s", err)
	}
	if err := file.Close(); err != nil {
		return nil, Errorf(sneakernet.ErrMediumUnwritable, "failed to reserve space on the medium: %s", err)
	}
	return &Staged{m: m, stage: stage, final: final}, nil
}

/*
	A staged write.  Exactly one of Commit or Abort should be called.
*/
type Staged struct {
	m     *Medium
	stage string // Relative to the medium.
	final string // Relative to the medium.
	done  bool
}

// Absolute path of the scratch file.
func (s *Staged) Path() fs.AbsolutePath {
	return s.m.path.JoinName(s.stage)
}

/*
	Move the staged file into place, replacing any previous bundle.
	Returns its size.

	May return errors of category:

	  - `sneakernet.ErrMediumUnwritable` -- if the rename fails
*/
func (s *Staged) Commit() (int64, error) {
	if s.done {
		return 0, Errorf(sneakernet.ErrMediumUnwritable, "staged file %s already finished", s.stage)
	}
	stat, err := s.m.afs.Stat(s.stage)
	if err != nil {
		return 0, Errorf(sneakernet.ErrMediumUnwritable, "staged bundle vanished: %s", err)
	}
	if err := s.m.afs.Rename(s.stage, s.final); err != nil {
		return 0, Errorf(sneakernet.ErrMediumUnwritable, "failed to commit bundle to the medium: %s", err)
	}
	s.done = true
	s.m.log.Debug("committed staged file", zap.String("file", s.final), zap.Int64("size", stat.Size()))
	return stat.Size(), nil
}

// Remove the staged file.  Aborting after Commit does nothing.
func (s *Staged) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.m.afs.Remove(s.stage); err != nil && !os.IsNotExist(err) {
		return Errorf(sneakernet.ErrMediumUnwritable, "failed to remove staged file %s: %s", s.stage, err)
	}
	return nil
}

/*
	Read the repository's watermark.  The bool is false if there is none.

	May return errors of category:

	  - `sneakernet.ErrWatermarkCorrupt` -- if the file doesn't hold a commit hash
	  - `sneakernet.ErrPath` -- if the file exists but can't be read
*/
func (m *Medium) ReadWatermark(name sneakernet.RepoName) (sneakernet.CommitID, bool, error) {
	body, err := afero.ReadFile(m.afs, name.WatermarkFilename())
	switch {
	case os.IsNotExist(err):
		return "", false, nil
	case err != nil:
		return "", false, Errorf(sneakernet.ErrPath, "cannot read watermark %s: %s", name.WatermarkFilename(), err)
	}
	id, err := sneakernet.ParseCommitID(strings.TrimSpace(string(body)))
	if err != nil {
		return "", false, Errorf(sneakernet.ErrWatermarkCorrupt, "watermark %s does not hold a commit hash: %s", m.path.JoinName(name.WatermarkFilename()), err)
	}
	return id, true, nil
}

/*
	Replace the repository's watermark.

	May return errors of category:

	  - `sneakernet.ErrMediumUnwritable` -- if the write fails; the old watermark is left as it was
*/
func (m *Medium) WriteWatermark(name sneakernet.RepoName, id sneakernet.CommitID) error {
	final := name.WatermarkFilename()
	stage := stagePrefix + final + "." + guid.New()
	if err := afero.WriteFile(m.afs, stage, []byte(string(id)+"\n"), 0644); err != nil {
		m.afs.Remove(stage)
		return Errorf(sneakernet.ErrMediumUnwritable, "failed to write watermark: %s", err)
	}
	if err := m.afs.Rename(stage, final); err != nil {
		m.afs.Remove(stage)
		return Errorf(sneakernet.ErrMediumUnwritable, "failed to commit watermark: %s", err)
	}
	m.log.Debug("wrote watermark", zap.String("file", final), zap.String("commit", string(id)))
	return nil
}

// Names of staged files left behind by interrupted runs.
func (m *Medium) Debris() ([]string, error) {
	infos, err := afero.ReadDir(m.afs, ".")
	if err != nil {
		return nil, Errorf(sneakernet.ErrPath, "cannot list medium: %s", err)
	}
	var debris []string
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), stagePrefix) {
			debris = append(debris, info.Name())
		}
	}
	return debris, nil
}
