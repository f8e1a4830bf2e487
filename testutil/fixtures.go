package testutil

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/fs"
)

/*
	Run fn with a fresh temporary directory, removed afterwards.
	The process working directory is not changed.
*/
func WithTmpdir(fn func(tmpDir fs.AbsolutePath)) {
	dir, err := ioutil.TempDir("", "sneakernet-test-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	// macOS tmp is behind a symlink; git reports resolved paths.
	dir, err = filepath.EvalSymlinks(dir)
	if err != nil {
		panic(err)
	}
	fn(fs.MustAbsolutePath(dir))
}

/*
	Run git in dir and return its trimmed stdout, failing the current
	convey assertion context if git exits non-zero.
*/
func Git(dir fs.AbsolutePath, args ...string) string {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command("git", args...)
	cmd.Dir = dir.String()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test Author",
		"GIT_AUTHOR_EMAIL=author@example.test",
		"GIT_COMMITTER_NAME=Test Author",
		"GIT_COMMITTER_EMAIL=author@example.test",
		"GIT_TERMINAL_PROMPT=0",
		"LC_ALL=C",
	)
	err := cmd.Run()
	if err != nil {
		err = fmt.Errorf("git %s: %s: %s", strings.Join(args, " "), err, stderr.String())
	}
	So(err, ShouldBeNil)
	return strings.TrimSpace(stdout.String())
}

// Set a repository-local identity so commits made by the code under test work anywhere.
func configureIdentity(repo fs.AbsolutePath) {
	Git(repo, "config", "user.name", "Test Author")
	Git(repo, "config", "user.email", "author@example.test")
	Git(repo, "config", "commit.gpgsign", "false")
}

/*
	Create a repository at path with "master" checked out and no commits.
*/
func InitRepo(path fs.AbsolutePath) fs.AbsolutePath {
	So(os.MkdirAll(path.String(), 0755), ShouldBeNil)
	Git(path, "init", "--quiet")
	Git(path, "symbolic-ref", "HEAD", "refs/heads/master")
	configureIdentity(path)
	return path
}

/*
	Clone src into dest, with identity configured in the clone.
*/
func CloneRepo(src, dest fs.AbsolutePath) fs.AbsolutePath {
	So(os.MkdirAll(dest.Dir().String(), 0755), ShouldBeNil)
	Git(dest.Dir(), "clone", "--quiet", src.String(), dest.String())
	configureIdentity(dest)
	return dest
}

// Write a file relative to the repository root.  Does not stage it.
func WriteFile(repo fs.AbsolutePath, name string, content string) {
	path := filepath.Join(repo.String(), filepath.FromSlash(name))
	So(os.MkdirAll(filepath.Dir(path), 0755), ShouldBeNil)
	So(ioutil.WriteFile(path, []byte(content), 0644), ShouldBeNil)
}

// Read a file relative to the repository root.
func ReadFile(repo fs.AbsolutePath, name string) string {
	body, err := ioutil.ReadFile(filepath.Join(repo.String(), filepath.FromSlash(name)))
	So(err, ShouldBeNil)
	return string(body)
}

/*
	Write the given files, stage everything, and commit.
	Returns the new HEAD.
*/
func Commit(repo fs.AbsolutePath, message string, files map[string]string) sneakernet.CommitID {
	for name, content := range files {
		WriteFile(repo, name, content)
	}
	Git(repo, "add", "--all")
	Git(repo, "commit", "--quiet", "--allow-empty", "-m", message)
	return RevParse(repo, "HEAD")
}

func RevParse(repo fs.AbsolutePath, rev string) sneakernet.CommitID {
	id, err := sneakernet.ParseCommitID(Git(repo, "rev-parse", "--verify", rev+"^{commit}"))
	So(err, ShouldBeNil)
	return id
}
