package fs

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/sneakernet"
)

func TestAbsolutePath(t *testing.T) {
	Convey("AbsolutePath stringer suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    AbsolutePath
			str   string
		}{
			{"zero values",
				AbsolutePath{},
				"/"},
			{"root value",
				MustAbsolutePath("/"),
				"/"},
			{"short value",
				MustAbsolutePath("/aa"),
				"/aa"},
			{"long value",
				MustAbsolutePath("/a/bb/ccc"),
				"/a/bb/ccc"},
			{"trailing slash",
				MustAbsolutePath("/media/usb/"),
				"/media/usb"},
		} {
			Convey(tr.title, func() {
				v := fmt.Sprintf("%s", tr.p1)
				So(v, ShouldResemble, tr.str)
			})
		}
	})
}

func TestAbsolutePathDirAndLast(t *testing.T) {
	Convey("AbsolutePath.Dir and .Last suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    AbsolutePath
			pdir  AbsolutePath
			last  string
		}{
			{"zero values",
				AbsolutePath{},
				AbsolutePath{}, "/"},
			{"short value",
				MustAbsolutePath("/aa"),
				AbsolutePath{}, "aa"},
			{"long value",
				MustAbsolutePath("/a/bb/ccc"),
				MustAbsolutePath("/a/bb"), "ccc"},
		} {
			Convey(tr.title, func() {
				So(tr.p1.Dir(), ShouldResemble, tr.pdir)
				So(tr.p1.Last(), ShouldEqual, tr.last)
			})
		}
	})
}

func TestAbsolutePathJoinName(t *testing.T) {
	Convey("AbsolutePath.JoinName suite:", t, func() {
		Convey("joining onto root", func() {
			v := MustAbsolutePath("/").JoinName("repo-bundle.git")
			So(v, ShouldResemble, MustAbsolutePath("/repo-bundle.git"))
			So(v.Last(), ShouldEqual, "repo-bundle.git")
			So(v.Dir(), ShouldResemble, AbsolutePath{})
		})
		Convey("joining onto a deep path", func() {
			v := MustAbsolutePath("/media/usb").JoinName("last-bundled-repo.txt")
			So(v, ShouldResemble, MustAbsolutePath("/media/usb/last-bundled-repo.txt"))
			So(v.Dir(), ShouldResemble, MustAbsolutePath("/media/usb"))
		})
		Convey("names with separators are refused", func() {
			So(func() { MustAbsolutePath("/media").JoinName("a/b") }, ShouldPanic)
			So(func() { MustAbsolutePath("/media").JoinName("..") }, ShouldPanic)
			So(func() { MustAbsolutePath("/media").JoinName("") }, ShouldPanic)
		})
	})
}

func TestParseAbsolutePath(t *testing.T) {
	testItems := []struct {
		name string
		in   string
		out  string
		err  sneakernet.ErrorCategory
	}{
		{"rooted", "/media/usb", "/media/usb", ""},
		{"uncleaned", "/media/./usb/../usb/", "/media/usb", ""},
		{"root", "/", "/", ""},
		{"relative", "media/usb", "", sneakernet.ErrPath},
		{"drive letter", "C:/Users/me/usb", "", sneakernet.ErrPath},
		{"unc share", "//server/share/usb", "", sneakernet.ErrPath},
		{"empty", "", "", sneakernet.ErrPath},
	}
	for _, item := range testItems {
		t.Run(item.name, func(t *testing.T) {
			p, err := ParseAbsolutePath(item.in)
			if cat := sneakernet.CategoryOf(err); cat != item.err {
				t.Fatalf("expected error category %q but got %q (%v)", item.err, cat, err)
			}
			if err == nil && p.String() != item.out {
				t.Errorf("expected %q but got %q", item.out, p.String())
			}
		})
	}
	t.Run("must panics where parse fails", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected a panic")
			}
		}()
		MustAbsolutePath("C:/Users/me/usb")
	})
}

func TestResolveAndRequireDir(t *testing.T) {
	Convey("Resolving user paths", t, func() {
		tmpDir, err := ioutil.TempDir("", "sneakernet-fs-test-")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tmpDir)

		Convey("relative paths are absolutized", func() {
			p, err := ResolveAbsolutePath(".")
			So(err, ShouldBeNil)
			wd, _ := os.Getwd()
			So(p.String(), ShouldEqual, filepath.ToSlash(wd))
		})
		Convey("empty paths are a usage error", func() {
			_, err := ResolveAbsolutePath("  ")
			So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrUsage)
		})
		Convey("an existing dir passes", func() {
			p, err := ResolveAbsolutePath(tmpDir)
			So(err, ShouldBeNil)
			So(RequireDir("medium", p), ShouldBeNil)
		})
		Convey("a missing dir is a path error", func() {
			p := MustAbsolutePath(tmpDir).JoinName("nope")
			err := RequireDir("medium", p)
			So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrPath)
			So(err.Error(), ShouldContainSubstring, "does not exist")
		})
		Convey("a file is a path error", func() {
			p := MustAbsolutePath(tmpDir).JoinName("file")
			So(ioutil.WriteFile(p.String(), []byte("x"), 0644), ShouldBeNil)
			err := RequireDir("repository", p)
			So(sneakernet.CategoryOf(err), ShouldEqual, sneakernet.ErrPath)
			So(err.Error(), ShouldContainSubstring, "not a directory")
		})
	})
}
