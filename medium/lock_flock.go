//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package medium

import (
	"os"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sys/unix"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/fs"
)

/*
	Take an advisory lock on the medium directory.

	Producers take it exclusive and consumers shared, so an apply never
	reads a bundle while a create on the same medium is replacing it.
	Never blocks: if the lock is held incompatibly, fails immediately.

	May return errors of category:

	  - `sneakernet.ErrMediumBusy` -- if another process holds the lock
	  - `sneakernet.ErrPath` -- if the directory can't be opened
*/
func Lock(path fs.AbsolutePath, exclusive bool) (*Lease, error) {
	dir, err := os.Open(path.String())
	if err != nil {
		return nil, Errorf(sneakernet.ErrPath, "cannot open medium %s for locking: %s", path, err)
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err = unix.Flock(int(dir.Fd()), how|unix.LOCK_NB)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		return &Lease{dir}, nil
	case unix.EWOULDBLOCK:
		dir.Close()
		return nil, Errorf(sneakernet.ErrMediumBusy, "medium %s is in use by another sneakernet process", path)
	default:
		dir.Close()
		return nil, Errorf(sneakernet.ErrPath, "cannot lock medium %s: %s", path, err)
	}
}

// A held medium lock.
type Lease struct {
	dir *os.File
}

// Release the lock.  Safe to call more than once.
func (l *Lease) Release() error {
	if l == nil || l.dir == nil {
		return nil
	}
	defer func() { l.dir = nil }()
	unix.Flock(int(l.dir.Fd()), unix.LOCK_UN)
	return l.dir.Close()
}
