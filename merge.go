package revise

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mystor/git-revise/internal/gitcmd"
	"golang.org/x/xerrors"
)

// ErrMergeConflict is returned when the user aborts conflict
// resolution
var ErrMergeConflict = errors.New("merge conflict")

// mergeLabels describes the three sides of a rebase merge, in order:
// new parent, old parent, incoming commit. The labels show up in
// conflict markers and prompts
type mergeLabels [3]string

// Rebase creates a new commit with the same change as commit, except
// with parent as its parent. A nil parent rebases the commit onto a
// root. When the commit is already based on parent it is returned
// unchanged
func Rebase(commit *Commit, parent *Commit) (*Commit, error) {
	if parent == nil && commit.IsRoot() {
		return commit, nil
	}
	if parent != nil && len(commit.parentOids) == 1 && commit.parentOids[0] == parent.Oid() {
		return commit, nil
	}

	r := commit.repo

	baseTree, oldLabel, err := parentTree(commit)
	if err != nil {
		return nil, err
	}
	targetTree, err := r.NewTree(nil)
	if err != nil {
		return nil, err
	}
	newLabel := "<root>"
	if parent != nil {
		if targetTree, err = parent.Tree(); err != nil {
			return nil, err
		}
		newLabel = parent.Summary()
	}
	incomingTree, err := commit.Tree()
	if err != nil {
		return nil, err
	}

	labels := mergeLabels{
		"new parent: " + newLabel,
		"old parent: " + oldLabel,
		"incoming: " + commit.Summary(),
	}
	tree, err := mergeTrees("", labels, targetTree, baseTree, incomingTree)
	if err != nil {
		return nil, err
	}

	var parents []*Commit
	if parent != nil {
		parents = []*Commit{parent}
	}
	// The committer is left to be filled in from the repository
	// defaults so that signing and re-committing stay consistent
	// within a single process
	author := commit.author
	return r.NewCommit(tree, parents, commit.message, &author, nil)
}

// parentTree returns the tree of the commit's single parent, or the
// empty tree for a root commit, along with a label for prompts
func parentTree(commit *Commit) (*Tree, string, error) {
	if commit.IsRoot() {
		tree, err := commit.repo.NewTree(nil)
		return tree, "<root>", err
	}
	parent, err := commit.Parent()
	if err != nil {
		return nil, "", err
	}
	tree, err := parent.Tree()
	if err != nil {
		return nil, "", err
	}
	return tree, parent.Summary(), nil
}

// conflictPrompt asks the user to pick a side of a conflict the
// merge can't resolve structurally. Anything but an explicit side
// aborts the merge
func conflictPrompt[T any](path, descr string, labels mergeLabels, current T, currentDescr string, other T, otherDescr string) (T, error) {
	fmt.Printf("%s conflict for %q\n", descr, path)
	fmt.Printf("  (1) %s: %s\n", labels[0], currentDescr)
	fmt.Printf("  (2) %s: %s\n", labels[2], otherDescr)

	answer, err := promptLine("Resolution or (A)bort? ")
	if err != nil {
		var zero T
		return zero, err
	}
	switch answer {
	case "1":
		return current, nil
	case "2":
		return other, nil
	default:
		var zero T
		return zero, xerrors.Errorf("%s conflict for %q aborted: %w", descr, path, ErrMergeConflict)
	}
}

// mergeTrees recursively three-way merges two trees against a common
// base, returning a freshly constructed tree
func mergeTrees(path string, labels mergeLabels, current, base, other *Tree) (*Tree, error) {
	names := map[string]struct{}{}
	for name := range current.entries {
		names[name] = struct{}{}
	}
	for name := range base.entries {
		names[name] = struct{}{}
	}
	for name := range other.entries {
		names[name] = struct{}{}
	}

	entries := map[string]Entry{}
	for name := range names {
		merged, err := mergeEntries(joinPath(path, name), labels,
			current.Entry(name), base.Entry(name), other.Entry(name))
		if err != nil {
			return nil, err
		}
		if merged != nil {
			entries[name] = *merged
		}
	}
	return current.repo.NewTree(entries)
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// mergeEntries three-way merges a single named entry. A nil entry
// means the name is absent on that side; a nil result means the
// merged tree omits the name
func mergeEntries(path string, labels mergeLabels, current, base, other *Entry) (*Entry, error) {
	if base.Equal(current) {
		return other, nil // no change from base -> current
	}
	if base.Equal(other) {
		return current, nil // no change from base -> other
	}
	if current.Equal(other) {
		return current, nil // identical independent edits
	}

	// One side deleted the entry, the other modified it
	if current == nil {
		return conflictPrompt(path, "Deletion", labels, current, "deleted", other, "modified")
	}
	if other == nil {
		return conflictPrompt(path, "Deletion", labels, current, "modified", other, "deleted")
	}

	// Determine which mode the merged entry has
	var mode Mode
	switch {
	case current.Mode == other.Mode:
		mode = current.Mode
	case current.Mode.IsFile() && other.Mode.IsFile():
		// Regular vs executable: when the base agrees with one side,
		// the other side changed the bit on purpose. Otherwise both
		// sides flipped it in different directions, and only the
		// user can tell which one wins
		switch {
		case base != nil && base.Mode == current.Mode:
			mode = other.Mode
		case base != nil && base.Mode == other.Mode:
			mode = current.Mode
		default:
			picked, err := conflictPrompt(path, "File mode", labels,
				current, current.Mode.String(), other, other.Mode.String())
			if err != nil {
				return nil, err
			}
			mode = picked.Mode
		}
	default:
		return conflictPrompt(path, "Entry type", labels,
			current, current.Mode.String(), other, other.Mode.String())
	}

	switch {
	case mode.IsFile():
		var baseBlob *Blob
		if base != nil && base.Mode.IsFile() {
			var err error
			if baseBlob, err = base.Blob(); err != nil {
				return nil, err
			}
		}
		currentBlob, err := current.Blob()
		if err != nil {
			return nil, err
		}
		otherBlob, err := other.Blob()
		if err != nil {
			return nil, err
		}
		merged, err := mergeBlobs(path, labels, currentBlob, baseBlob, otherBlob)
		if err != nil {
			return nil, err
		}
		e := current.repo.NewEntry(mode, merged.Oid())
		return &e, nil

	case mode == ModeDir:
		baseTree, err := current.repo.NewTree(nil)
		if err != nil {
			return nil, err
		}
		if base != nil && base.Mode == ModeDir {
			if baseTree, err = base.Tree(); err != nil {
				return nil, err
			}
		}
		currentTree, err := current.Tree()
		if err != nil {
			return nil, err
		}
		otherTree, err := other.Tree()
		if err != nil {
			return nil, err
		}
		merged, err := mergeTrees(path, labels, currentTree, baseTree, otherTree)
		if err != nil {
			return nil, err
		}
		e := current.repo.NewEntry(mode, merged.Oid())
		return &e, nil

	case mode == ModeSymlink:
		currentTarget, err := current.SymlinkTarget()
		if err != nil {
			return nil, err
		}
		otherTarget, err := other.SymlinkTarget()
		if err != nil {
			return nil, err
		}
		return conflictPrompt(path, "Symlink", labels,
			current, string(currentTarget), other, string(otherTarget))

	case mode == ModeGitlink:
		return conflictPrompt(path, "Submodule", labels,
			current, current.Oid.String(), other, other.Oid.String())
	}

	return nil, xerrors.Errorf("unknown mode %o for %q: %w", mode, path, ErrTreeInvalid)
}

// mergeBlobs three-way merges file contents by writing the three
// sides to the temp directory and delegating to `git merge-file`.
// Conflicts are replayed from recorded resolutions when possible,
// and fall back to an editor session otherwise
func mergeBlobs(path string, labels mergeLabels, current, base, other *Blob) (*Blob, error) {
	r := current.repo

	tmpdir, err := r.Tempdir()
	if err != nil {
		return nil, err
	}
	var baseBody []byte
	if base != nil {
		baseBody = base.Body()
	}
	files := map[string][]byte{
		"current": current.Body(),
		"base":    baseBody,
		"other":   other.Body(),
	}
	for name, body := range files {
		if err = os.WriteFile(filepath.Join(tmpdir, name), body, 0o644); err != nil {
			return nil, xerrors.Errorf("could not write merge input %s: %w", name, err)
		}
	}

	merged, err := r.git.OutputWith(gitcmd.Opts{KeepNewline: true},
		"merge-file", "-q", "-p",
		fmt.Sprintf("-L%s (%s)", path, labels[0]),
		fmt.Sprintf("-L%s (%s)", path, labels[1]),
		fmt.Sprintf("-L%s (%s)", path, labels[2]),
		filepath.Join(tmpdir, "current"),
		filepath.Join(tmpdir, "base"),
		filepath.Join(tmpdir, "other"))
	if err == nil {
		return r.NewBlob(merged), nil
	}

	// merge-file exits with the number of conflicts (at most 127), or
	// with a negative status, seen here as a code above 127, on a real
	// error
	code := gitcmd.ExitCode(err)
	if code <= 0 || code > 127 {
		return nil, err
	}

	resolved, err := r.resolveConflict(path, merged, tmpdir)
	if err != nil {
		return nil, err
	}
	return r.NewBlob(resolved), nil
}

// resolveConflict turns the conflict-marked output of merge-file
// into resolved content, replaying a recorded resolution when one
// matches and escalating to the user otherwise
func (r *Repository) resolveConflict(path string, preimage []byte, tmpdir string) ([]byte, error) {
	if replayed, ok, err := r.replayResolution(path, preimage); err != nil {
		return nil, err
	} else if ok {
		return replayed, nil
	}

	fmt.Printf("Merge conflict for %q\n", path)
	edit, err := promptYesNo("  Edit conflicted file?", true)
	if err != nil {
		return nil, err
	}
	if !edit {
		return nil, xerrors.Errorf("%q left unresolved: %w", path, ErrMergeConflict)
	}

	// Mirror the original path under the temp directory so the
	// editor shows a recognizable filename
	conflictPath := filepath.Join(tmpdir, "conflict", filepath.FromSlash(path))
	if err = os.MkdirAll(filepath.Dir(conflictPath), 0o755); err != nil {
		return nil, xerrors.Errorf("could not create conflict directory: %w", err)
	}
	if err = os.WriteFile(conflictPath, preimage, 0o644); err != nil {
		return nil, xerrors.Errorf("could not write conflicted file: %w", err)
	}

	merged, err := r.EditFile(conflictPath)
	if err != nil {
		return nil, err
	}

	if string(merged) == string(preimage) {
		fmt.Println("(note) conflicted file is unchanged")
	}
	if containsConflictMarkers(merged) {
		fmt.Println("(note) conflict markers found in the merged file")
	}

	success, err := promptYesNo("  Merge successful?", false)
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, xerrors.Errorf("%q resolution rejected: %w", path, ErrMergeConflict)
	}

	r.recordResolution(preimage, merged)
	return merged, nil
}

func containsConflictMarkers(data []byte) bool {
	for _, marker := range []string{"<<<<<<<", "=======", ">>>>>>>"} {
		if containsLinePrefix(data, marker) {
			return true
		}
	}
	return false
}

func containsLinePrefix(data []byte, prefix string) bool {
	atLineStart := true
	for i := 0; i < len(data); i++ {
		if atLineStart && len(data)-i >= len(prefix) && string(data[i:i+len(prefix)]) == prefix {
			return true
		}
		atLineStart = data[i] == '\n'
	}
	return false
}
