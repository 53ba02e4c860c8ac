package revise_test

import (
	"path/filepath"
	"strings"
	"testing"

	revise "github.com/mystor/git-revise"
	"github.com/mystor/git-revise/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openRepo opens a revise handle on a scratch repository and closes
// it when the test finishes
func openRepo(t *testing.T, scratch *testhelper.Repo) *revise.Repository {
	t.Helper()
	repo, err := revise.Open(scratch.Dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, repo.Close())
	})
	return repo
}

func TestOpen(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("initial", map[string]string{"a": "one\n"})

	repo := openRepo(t, scratch)

	resolvedScratch, err := filepath.EvalSymlinks(scratch.Dir)
	require.NoError(t, err)
	resolvedWorkdir, err := filepath.EvalSymlinks(repo.Workdir)
	require.NoError(t, err)
	assert.Equal(t, resolvedScratch, resolvedWorkdir)
	assert.DirExists(t, repo.Gitdir)

	assert.Equal(t, "Test User", repo.DefaultAuthor().Name())
	assert.Equal(t, "test@example.com", repo.DefaultAuthor().Email())
	assert.Equal(t, "Test Committer", repo.DefaultCommitter().Name())
}

func TestOpenFailsOutsideRepo(t *testing.T) {
	testhelper.RequireGit(t)
	t.Setenv("GIT_CEILING_DIRECTORIES", "/")

	_, err := revise.Open(t.TempDir())
	require.Error(t, err)
}

func TestTempdirLifecycle(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("initial", nil)

	repo, err := revise.Open(scratch.Dir)
	require.NoError(t, err)

	dir, err := repo.Tempdir()
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "revise."))

	again, err := repo.Tempdir()
	require.NoError(t, err)
	assert.Equal(t, dir, again, "the temp directory is created once")

	require.NoError(t, repo.Close())
	assert.NoDirExists(t, dir, "Close must delete the temp directory")
}

func TestGetObject(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	headHex := scratch.Commit("initial", map[string]string{"a": "one\n"})

	repo := openRepo(t, scratch)

	t.Run("commit by ref and by oid", func(t *testing.T) {
		head, err := repo.GetCommit("HEAD")
		require.NoError(t, err)
		assert.Equal(t, headHex, head.Oid().String())
		assert.Equal(t, "initial", head.Summary())
		assert.True(t, head.Persisted())

		again, err := repo.GetCommit(headHex)
		require.NoError(t, err)
		require.Same(t, head, again, "cache must hand out one instance per oid")
	})

	t.Run("tree and blob", func(t *testing.T) {
		head, err := repo.GetCommit("HEAD")
		require.NoError(t, err)

		tree, err := head.Tree()
		require.NoError(t, err)
		entry := tree.Entry("a")
		require.NotNil(t, entry)
		assert.Equal(t, revise.ModeRegular, entry.Mode)

		blob, err := entry.Blob()
		require.NoError(t, err)
		assert.Equal(t, []byte("one\n"), blob.Body())
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := repo.GetTree(headHex)
		require.ErrorIs(t, err, revise.ErrUnexpectedKind)
		_, err = repo.GetBlob("HEAD")
		require.ErrorIs(t, err, revise.ErrUnexpectedKind)
	})

	t.Run("missing object", func(t *testing.T) {
		_, err := repo.GetObject("refs/heads/nope")
		require.ErrorIs(t, err, revise.ErrObjectMissing)
	})

	t.Run("abbreviated oid of an unpersisted commit", func(t *testing.T) {
		head, err := repo.GetCommit("HEAD")
		require.NoError(t, err)

		floating, err := head.Update(revise.CommitUpdate{Message: []byte("in memory only\n")})
		require.NoError(t, err)
		require.False(t, floating.Persisted())

		found, err := repo.GetCommit(floating.Oid().Short())
		require.NoError(t, err)
		require.Same(t, floating, found)
	})
}

func TestPersist(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("initial", map[string]string{"a": "one\n"})

	repo := openRepo(t, scratch)

	blob := repo.NewBlob([]byte("fresh content\n"))
	tree, err := repo.NewTree(map[string]revise.Entry{
		"fresh.txt": repo.NewEntry(revise.ModeRegular, blob.Oid()),
	})
	require.NoError(t, err)

	head, err := repo.GetCommit("HEAD")
	require.NoError(t, err)
	commit, err := repo.NewCommit(tree, []*revise.Commit{head}, []byte("fresh commit\n"), nil, nil)
	require.NoError(t, err)
	require.False(t, commit.Persisted())

	oid, err := commit.Persist()
	require.NoError(t, err)
	assert.Equal(t, commit.Oid(), oid)
	assert.True(t, commit.Persisted())
	assert.True(t, tree.Persisted(), "dependencies are persisted first")
	assert.True(t, blob.Persisted())

	// The on-disk store must agree on all three objects
	assert.Equal(t, "commit", scratch.Git("cat-file", "-t", commit.Oid().String()))
	assert.Equal(t, "tree", scratch.Git("cat-file", "-t", tree.Oid().String()))
	assert.Equal(t, "blob", scratch.Git("cat-file", "-t", blob.Oid().String()))
	assert.Equal(t, "fresh commit", scratch.Git("log", "-1", "--format=%s", commit.Oid().String()))
}

func TestReference(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("initial", map[string]string{"a": "one\n"})

	repo := openRepo(t, scratch)

	ref, err := repo.CommitRef("HEAD")
	require.NoError(t, err)
	require.True(t, ref.IsSet())
	assert.Equal(t, "refs/heads/main", ref.Name)

	head := ref.Target
	updated, err := head.Update(revise.CommitUpdate{Message: []byte("rewritten\n")})
	require.NoError(t, err)

	require.NoError(t, ref.Update(updated, "test rewrite"))
	assert.Equal(t, updated.Oid().String(), scratch.Git("rev-parse", "HEAD"))
	assert.Contains(t, scratch.Git("log", "-1", "--walk-reflogs", "--format=%gs"), "test rewrite")

	require.NoError(t, ref.Refresh())
	assert.Equal(t, updated.Oid(), ref.Target.Oid())
}

func TestIndex(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("initial", map[string]string{"a": "one\n"})

	repo := openRepo(t, scratch)

	t.Run("no staged changes", func(t *testing.T) {
		staged, err := repo.CommitStaged([]byte("<git index>"))
		require.NoError(t, err)
		parent, err := staged.Parent()
		require.NoError(t, err)
		assert.Equal(t, parent.TreeOid(), staged.TreeOid())
	})

	t.Run("staged modification", func(t *testing.T) {
		scratch.WriteFile("a", "two\n")
		scratch.Git("add", "a")

		staged, err := repo.CommitStaged([]byte("<git index>"))
		require.NoError(t, err)
		tree, err := staged.Tree()
		require.NoError(t, err)
		blob, err := tree.Entry("a").Blob()
		require.NoError(t, err)
		assert.Equal(t, []byte("two\n"), blob.Body())

		// restore for later subtests
		scratch.Git("reset", "-q", "--hard", "HEAD")
	})

	t.Run("tree to isolated index", func(t *testing.T) {
		head, err := repo.GetCommit("HEAD")
		require.NoError(t, err)
		tree, err := head.Tree()
		require.NoError(t, err)

		indexPath := filepath.Join(t.TempDir(), "TEMP_INDEX")
		index, err := tree.ToIndex(indexPath, true)
		require.NoError(t, err)
		assert.FileExists(t, indexPath)

		roundTrip, err := index.Tree()
		require.NoError(t, err)
		assert.Equal(t, tree.Oid(), roundTrip.Oid())
	})
}

func TestCommitRangeAndLocalCommits(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	c1 := scratch.Commit("one", map[string]string{"a": "1\n"})
	c2 := scratch.Commit("two", map[string]string{"b": "2\n"})
	c3 := scratch.Commit("three", map[string]string{"c": "3\n"})

	repo := openRepo(t, scratch)

	head, err := repo.GetCommit("HEAD")
	require.NoError(t, err)
	base, err := repo.GetCommit(c1)
	require.NoError(t, err)

	commits, err := revise.CommitRange(base, head)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, c2, commits[0].Oid().String())
	assert.Equal(t, c3, commits[1].Oid().String())

	// With no remotes, every commit above the root is local
	localBase, local, err := revise.LocalCommits(repo, head)
	require.NoError(t, err)
	assert.Equal(t, c1, localBase.Oid().String())
	require.Len(t, local, 2)
	assert.Equal(t, c2, local[0].Oid().String())
}

func TestRebase(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("one", map[string]string{"a": "1\n"})
	c2 := scratch.Commit("two", map[string]string{"b": "2\n"})
	c3 := scratch.Commit("three", map[string]string{"c": "3\n"})

	repo := openRepo(t, scratch)

	t.Run("already based is a no-op", func(t *testing.T) {
		commit, err := repo.GetCommit(c3)
		require.NoError(t, err)
		parent, err := repo.GetCommit(c2)
		require.NoError(t, err)

		rebased, err := revise.Rebase(commit, parent)
		require.NoError(t, err)
		require.Same(t, commit, rebased)
	})

	t.Run("skip a commit", func(t *testing.T) {
		head, err := repo.GetCommit(c3)
		require.NoError(t, err)
		parent, err := head.Parent()
		require.NoError(t, err)
		grandparent, err := parent.Parent()
		require.NoError(t, err)

		rebased, err := revise.Rebase(head, grandparent)
		require.NoError(t, err)

		require.Equal(t, []string{grandparent.Oid().String()},
			oidStrings(rebased.ParentOids()))
		assert.Equal(t, head.Message(), rebased.Message())
		assert.Equal(t, head.Author().Raw(), rebased.Author().Raw())

		tree, err := rebased.Tree()
		require.NoError(t, err)
		assert.NotNil(t, tree.Entry("c"), "the rebased change is kept")
		assert.Nil(t, tree.Entry("b"), "the skipped commit's change is gone")
	})
}

func oidStrings[T interface{ String() string }](oids []T) []string {
	out := make([]string, len(oids))
	for i, oid := range oids {
		out[i] = oid.String()
	}
	return out
}
