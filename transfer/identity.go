package transfer

import (
	"strings"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/engine"
)

/*
	Name a repository for the files it owns on a medium.

	The name comes from the last path segment of the upstream remote's URL,
	minus any ".git" suffix; if there's no such remote, or its URL doesn't
	yield a usable segment, the repository directory's own name is used.

	Read-only, and stable for as long as the upstream URL doesn't change.

	May return errors of category:

	  - `sneakernet.ErrIdentity` -- if the repository config can't be read, or no usable name results
*/
func ResolveName(repo engine.Repository, upstream string) (sneakernet.RepoName, error) {
	if upstream != "" {
		url, ok, err := repo.RemoteURL(upstream)
		if err != nil {
			return "", Errorf(sneakernet.ErrIdentity, "cannot name repository at %s: %s", repo.Path(), err)
		}
		if ok {
			if name, err := sneakernet.ParseRepoName(nameFromURL(url)); err == nil {
				return name, nil
			}
		}
	}
	return sneakernet.ParseRepoName(repo.Path().Last())
}

/*
	Last segment of a remote URL, without ".git".

	Handles URLs, scp-style "host:path" remotes, and plain paths.
	May return an empty string.
*/
func nameFromURL(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/\\")
	if i := strings.LastIndexAny(url, "/\\:"); i >= 0 {
		url = url[i+1:]
	}
	if len(url) >= 4 && strings.EqualFold(url[len(url)-4:], ".git") {
		url = url[:len(url)-4]
	}
	return url
}

func cancelled(err error) error {
	return Errorf(sneakernet.ErrCancelled, "cancelled: %s", err)
}
