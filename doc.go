/*
	Sneakernet moves git history between two copies of a repository that never
	see each other over a network.

	The producer side (`sneakernet create-bundle`) writes a git bundle onto a
	transfer medium -- a USB stick, a mounted share, any directory -- holding
	either the commits the other side hasn't seen yet (tracked by a watermark
	file next to the bundle) or a squashed snapshot of the working tree.
	The consumer side (`sneakernet apply-bundle`) verifies that bundle and
	merges it into its own history.

	This package holds the vocabulary shared by everything else: repository
	names, commit ids, artifact kinds, results, and error categories.
	The work itself is in the `transfer` package; `engine` describes what
	transfer needs from a version control engine, and `engine/impl/git` is
	the implementation over go-git and the git CLI.
*/
package sneakernet
