package revise

import (
	"github.com/mystor/git-revise/ginternals/githash"
	"github.com/mystor/git-revise/internal/gitcmd"
	"golang.org/x/xerrors"
)

// Index is a handle on an index file. Commands run through it see
// the bound file via GIT_INDEX_FILE instead of the repository's
// primary index
type Index struct {
	repo *Repository

	// Path of the index file being referenced
	Path string

	run *gitcmd.Runner
}

func (r *Repository) newIndex(path string) *Index {
	return &Index{
		repo: r,
		Path: path,
		run:  r.git.WithEnv("GIT_INDEX_FILE=" + path),
	}
}

// Tree writes the index out as a tree and returns it
func (i *Index) Tree() (*Tree, error) {
	out, err := i.run.Output("write-tree")
	if err != nil {
		return nil, xerrors.Errorf("could not write index tree: %w", err)
	}
	oid, err := githash.NewOidFromChars(out)
	if err != nil {
		return nil, xerrors.Errorf("write-tree returned %q: %w", out, ErrCorrupted)
	}
	return i.repo.GetTreeOid(oid)
}

// Commit creates an in-memory commit from the index tree. A nil
// parent defaults to the resolved HEAD
func (i *Index) Commit(message []byte, parent *Commit) (*Commit, error) {
	if parent == nil {
		var err error
		if parent, err = i.repo.GetCommit("HEAD"); err != nil {
			return nil, err
		}
	}
	tree, err := i.Tree()
	if err != nil {
		return nil, err
	}
	return i.repo.NewCommit(tree, []*Commit{parent}, message, nil, nil)
}

// CommitStaged returns a commit holding the currently staged
// changes, with HEAD as its parent
func (r *Repository) CommitStaged(message []byte) (*Commit, error) {
	return r.index.Commit(message, nil)
}

// ToIndex reads the tree into the index file at the given path and
// returns a handle on it. When skipWorktree is set, every entry in
// the new index has its "skip worktree" bit set, which keeps
// patch-mode tools from refreshing against the working tree
func (t *Tree) ToIndex(path string, skipWorktree bool) (*Index, error) {
	index := t.repo.newIndex(path)

	oid, err := t.Persist()
	if err != nil {
		return nil, err
	}
	if err := t.repo.git.Run("read-tree", "--index-output="+path, oid.String()); err != nil {
		return nil, xerrors.Errorf("could not read tree %s into index: %w", oid, err)
	}

	if skipWorktree {
		files, err := index.run.OutputWith(gitcmd.Opts{KeepNewline: true}, "ls-files")
		if err != nil {
			return nil, err
		}
		_, err = index.run.OutputWith(gitcmd.Opts{Stdin: files},
			"update-index", "--skip-worktree", "--stdin")
		if err != nil {
			return nil, err
		}
	}
	return index, nil
}
