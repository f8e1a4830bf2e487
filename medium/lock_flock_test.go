//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package medium

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/fs"
	"github.com/polydawn/sneakernet/testutil"
)

func TestLock(t *testing.T) {
	Convey("Medium locks", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			Convey("Shared locks coexist", func() {
				a, err := Lock(tmpDir, false)
				So(err, ShouldBeNil)
				defer a.Release()
				b, err := Lock(tmpDir, false)
				So(err, ShouldBeNil)
				So(b.Release(), ShouldBeNil)
			})
			Convey("An exclusive lock excludes everyone else", func() {
				a, err := Lock(tmpDir, true)
				So(err, ShouldBeNil)
				_, err = Lock(tmpDir, false)
				So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrMediumBusy)
				_, err = Lock(tmpDir, true)
				So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrMediumBusy)

				Convey("until released", func() {
					So(a.Release(), ShouldBeNil)
					So(a.Release(), ShouldBeNil)
					b, err := Lock(tmpDir, true)
					So(err, ShouldBeNil)
					So(b.Release(), ShouldBeNil)
				})
			})
			Convey("A shared lock holds off writers", func() {
				a, err := Lock(tmpDir, false)
				So(err, ShouldBeNil)
				defer a.Release()
				_, err = Lock(tmpDir, true)
				So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrMediumBusy)
			})
			Convey("A missing directory can't be locked", func() {
				_, err := Lock(tmpDir.JoinName("nope"), true)
				So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrPath)
			})
		})
	})
}
