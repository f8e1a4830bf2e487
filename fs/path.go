/*
	Path handling for the two directories sneakernet works with:
	a repository root and a transfer medium.

	Both arrive as user input, possibly relative; they're normalized to
	AbsolutePath as soon as they're accepted, and everything downstream
	(git subprocess working dirs, remote URLs, bundle paths) is built from
	the absolute form, so nothing depends on the process working directory.
*/
package fs

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/sneakernet"
)

type AbsolutePath struct {
	path      string
	lastSplit int
}

// Panics unless p is a rooted, slash-separated path.  See ParseAbsolutePath.
func MustAbsolutePath(p string) AbsolutePath {
	abs, err := ParseAbsolutePath(p)
	if err != nil {
		panic(err)
	}
	return abs
}

/*
	Accept a rooted, slash-separated path.

	Drive-letter and UNC paths aren't rooted in this sense; sneakernet only
	works with unix-style paths.

	May return errors of category:

	  - `sneakernet.ErrPath` -- if the path isn't rooted at "/"
*/
func ParseAbsolutePath(p string) (AbsolutePath, error) {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return AbsolutePath{}, Errorf(sneakernet.ErrPath, "path %q is not rooted at \"/\"", p)
	}
	p = path.Clean(p)
	if p == "/" { // We can't stop people from using the zero value, so, use it.
		return AbsolutePath{}, nil
	}
	return AbsolutePath{p, strings.LastIndexByte(p, '/')}, nil
}

/*
	Absolutize a user-supplied path against the working directory.

	Does not check the path exists; see `RequireDir`.
*/
func ResolveAbsolutePath(p string) (AbsolutePath, error) {
	if strings.TrimSpace(p) == "" {
		return AbsolutePath{}, Errorf(sneakernet.ErrUsage, "empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return AbsolutePath{}, Errorf(sneakernet.ErrPath, "cannot resolve path %q: %s", p, err)
	}
	return ParseAbsolutePath(filepath.ToSlash(abs))
}

/*
	Check that the path exists and is a directory.

	Errors are of category `sneakernet.ErrPath`; `what` names the path
	in the message (e.g. "repository", "medium").
*/
func RequireDir(what string, p AbsolutePath) error {
	stat, err := os.Stat(p.String())
	switch {
	case os.IsNotExist(err):
		return Errorf(sneakernet.ErrPath, "%s path %s does not exist", what, p)
	case err != nil:
		return Errorf(sneakernet.ErrPath, "%s path %s unavailable: %s", what, p, err)
	case !stat.IsDir():
		return Errorf(sneakernet.ErrPath, "%s path %s is not a directory", what, p)
	default:
		return nil
	}
}

func (p AbsolutePath) String() string {
	if p.path == "" {
		return "/"
	}
	return p.path
}
func (p AbsolutePath) Dir() AbsolutePath {
	if p.path == "" {
		return p
	} else if p.lastSplit == 0 {
		return AbsolutePath{}
	} else {
		p2 := p.path[0:p.lastSplit]
		return AbsolutePath{p2, strings.LastIndexByte(p2, '/')}
	}
}
func (p AbsolutePath) Last() string {
	if p.path == "" {
		return "/"
	} else {
		return p.path[p.lastSplit+1:]
	}
}

/*
	Join a single filename onto the path.

	Panics if the name is empty or contains a separator: filenames joined here
	are derived from repository names, which are validated long before.
*/
func (p AbsolutePath) JoinName(name string) AbsolutePath {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		panic("invalid filename " + name)
	}
	return AbsolutePath{p.path + "/" + name, len(p.path)}
}
