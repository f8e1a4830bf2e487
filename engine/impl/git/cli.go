package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	. "github.com/warpfork/go-errcat"
	"go.uber.org/zap"

	"github.com/polydawn/sneakernet"
	"github.com/polydawn/sneakernet/engine"
	"github.com/polydawn/sneakernet/fs"
)

// Raised by run when git exits non-zero.  Not categorized; callers decide what it means.
type cliError struct {
	args     []string
	exitCode int
	stderr   string
	cause    error
}

func (e *cliError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		msg = e.cause.Error()
	}
	// git tends to be chatty across lines; the last line is the one that matters.
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	return fmt.Sprintf("git %s: %s", e.args[0], msg)
}

/*
	Run git in the repository root, returning its stdout.

	`env` is appended to the process environment.
*/
func (c *Controller) run(ctx context.Context, env []string, args ...string) (string, error) {
	c.log.Debug("running git", zap.Strings("args", args))
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.gitBinary, args...)
	cmd.Dir = c.path.String()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_MERGE_AUTOEDIT=no",
		"LC_ALL=C",
	)
	cmd.Env = append(cmd.Env, env...)
	err := cmd.Run()
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		c.log.Debug("git failed",
			zap.Strings("args", args),
			zap.Int("exit", exitCode),
			zap.String("stderr", stderr.String()),
		)
		return stdout.String(), &cliError{args, exitCode, stderr.String(), err}
	}
	return stdout.String(), nil
}

// Categorize a failure from run, noticing cancellation first.
func (c *Controller) fail(ctx context.Context, category sneakernet.ErrorCategory, err error) error {
	if ctx.Err() != nil {
		return Errorf(sneakernet.ErrCancelled, "cancelled: %s", err)
	}
	return Errorf(category, "%s", err)
}

func (c *Controller) Checkout(ctx context.Context, rev string) error {
	if _, err := c.run(ctx, nil, "checkout", "--quiet", rev, "--"); err != nil {
		return c.fail(ctx, sneakernet.ErrStepFailure, err)
	}
	return nil
}

/*
	Build a parentless commit of the working tree.

	Stages into a scratch index file rather than the repository's own index,
	so the user's staging area, HEAD and working tree are all left as they were.
	The scratch index starts from HEAD's tree, so tracked files stay in even
	when .gitignore matches them; untracked files are added as `git add --all`
	would, .gitignore respected.
*/
func (c *Controller) SnapshotWorktree(ctx context.Context, message string) (sneakernet.CommitID, error) {
	scratch, err := ioutil.TempDir("", "sneakernet-index-")
	if err != nil {
		return "", Errorf(sneakernet.ErrStepFailure, "cannot create scratch index: %s", err)
	}
	defer os.RemoveAll(scratch)
	env := []string{"GIT_INDEX_FILE=" + filepath.Join(scratch, "index")}

	born, err := c.headBorn()
	if err != nil {
		return "", err
	}
	if born {
		if _, err := c.run(ctx, env, "read-tree", "HEAD"); err != nil {
			return "", c.fail(ctx, sneakernet.ErrStepFailure, err)
		}
	}
	if _, err := c.run(ctx, env, "add", "--all", "--", "."); err != nil {
		return "", c.fail(ctx, sneakernet.ErrStepFailure, err)
	}
	tree, err := c.run(ctx, env, "write-tree")
	if err != nil {
		return "", c.fail(ctx, sneakernet.ErrStepFailure, err)
	}
	commit, err := c.run(ctx, env, "commit-tree", strings.TrimSpace(tree), "-m", message)
	if err != nil {
		return "", c.fail(ctx, sneakernet.ErrStepFailure, err)
	}
	id, err := sneakernet.ParseCommitID(strings.TrimSpace(commit))
	if err != nil {
		return "", Errorf(sneakernet.ErrStepFailure, "git commit-tree returned %q: %s", commit, err)
	}
	return id, nil
}

func (c *Controller) CreateBundle(ctx context.Context, dest fs.AbsolutePath, revs ...string) error {
	args := append([]string{"bundle", "create", dest.String()}, revs...)
	if _, err := c.run(ctx, nil, args...); err != nil {
		return c.fail(ctx, sneakernet.ErrStepFailure, err)
	}
	return nil
}

/*
	Check a bundle is well-formed and that this repository has every
	commit it requires as a prerequisite.

	Git only reads the header here; damage inside the pack shows up
	when it's fetched from.

	May return errors of category:

	  - `sneakernet.ErrVerification` -- if git rejects the bundle, or it lists no refs
*/
func (c *Controller) VerifyBundle(ctx context.Context, bundle fs.AbsolutePath) error {
	if _, err := c.run(ctx, nil, "bundle", "verify", bundle.String()); err != nil {
		return c.fail(ctx, sneakernet.ErrVerification, err)
	}
	heads, err := c.BundleHeads(ctx, bundle)
	if err != nil {
		return err
	}
	if len(heads) == 0 {
		return Errorf(sneakernet.ErrVerification, "bundle %s lists no refs", bundle)
	}
	return nil
}

func (c *Controller) BundleHeads(ctx context.Context, bundle fs.AbsolutePath) ([]engine.Ref, error) {
	out, err := c.run(ctx, nil, "bundle", "list-heads", bundle.String())
	if err != nil {
		return nil, c.fail(ctx, sneakernet.ErrVerification, err)
	}
	return parseRefList(out)
}

/*
	Parse "<hash> <refname>" lines, as printed by `git bundle list-heads`
	and `git show-ref`.
*/
func parseRefList(out string) ([]engine.Ref, error) {
	var refs []engine.Ref
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, Errorf(sneakernet.ErrVerification, "unparseable ref line %q", line)
		}
		id, err := sneakernet.ParseCommitID(fields[0])
		if err != nil {
			return nil, Errorf(sneakernet.ErrVerification, "unparseable ref line %q: %s", line, err)
		}
		refs = append(refs, engine.Ref{Name: fields[1], Hash: id})
	}
	return refs, scanner.Err()
}

func (c *Controller) Fetch(ctx context.Context, remote string, refspecs ...string) error {
	args := append([]string{"fetch", "--quiet", "--no-tags", remote}, refspecs...)
	if _, err := c.run(ctx, nil, args...); err != nil {
		return c.fail(ctx, sneakernet.ErrStepFailure, err)
	}
	return nil
}

func (c *Controller) Merge(ctx context.Context, rev string, opts engine.MergeOptions) error {
	args := []string{"merge", "--no-edit"}
	if opts.AllowUnrelatedHistories {
		args = append(args, "--allow-unrelated-histories")
	}
	if opts.Message != "" {
		args = append(args, "-m", opts.Message)
	}
	args = append(args, rev)
	_, err := c.run(ctx, nil, args...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return Errorf(sneakernet.ErrCancelled, "cancelled: %s", err)
	}
	unmerged, lsErr := c.run(ctx, nil, "ls-files", "--unmerged")
	if lsErr == nil && strings.TrimSpace(unmerged) != "" {
		return ErrorDetailed(sneakernet.ErrMergeConflict,
			fmt.Sprintf("merging %s left conflicts in %s; resolve them and commit", rev, c.path),
			map[string]string{
				"rev":  rev,
				"repo": c.path.String(),
			})
	}
	return Errorf(sneakernet.ErrStepFailure, "%s", err)
}
