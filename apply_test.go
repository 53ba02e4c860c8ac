package revise_test

import (
	"testing"

	revise "github.com/mystor/git-revise"
	"github.com/mystor/git-revise/internal/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFixupOfHead(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	c1 := scratch.Commit("add a", map[string]string{"a": "one\n"})
	c2 := scratch.Commit("tweak a", map[string]string{"a": "two\n"})

	// Stage another modification of a
	scratch.WriteFile("a", "three\n")
	scratch.Git("add", "a")

	repo := openRepo(t, scratch)

	base, err := repo.GetCommit(c1)
	require.NoError(t, err)
	pick, err := repo.GetCommit(c2)
	require.NoError(t, err)
	staged, err := repo.CommitStaged([]byte("<git index>"))
	require.NoError(t, err)

	newHead, remainder, err := revise.ApplyTodos(base, []revise.Step{
		{Kind: revise.StepPick, Commit: pick},
		{Kind: revise.StepFixup, Commit: staged},
	}, false)
	require.NoError(t, err)
	assert.Empty(t, remainder)

	tree, err := newHead.Tree()
	require.NoError(t, err)
	blob, err := tree.Entry("a").Blob()
	require.NoError(t, err)
	assert.Equal(t, []byte("three\n"), blob.Body(), "the staged change lands in the fixed-up commit")

	assert.Equal(t, pick.Message(), newHead.Message())
	assert.Equal(t, []string{c1}, oidStrings(newHead.ParentOids()))
	assert.Equal(t, pick.Author().Raw(), newHead.Author().Raw())
	assert.Equal(t, repo.DefaultCommitter().Raw(), newHead.Committer().Raw())
}

func TestApplyReorderIndependentCommits(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	c1 := scratch.Commit("create a", map[string]string{"a": "one\n"})
	c2 := scratch.Commit("create b", map[string]string{"b": "bee\n"})
	c3 := scratch.Commit("modify a", map[string]string{"a": "two\n"})

	repo := openRepo(t, scratch)

	base, err := repo.GetCommit(c1)
	require.NoError(t, err)
	commit2, err := repo.GetCommit(c2)
	require.NoError(t, err)
	commit3, err := repo.GetCommit(c3)
	require.NoError(t, err)
	originalHead, err := repo.GetCommit("HEAD")
	require.NoError(t, err)

	newHead, _, err := revise.ApplyTodos(base, []revise.Step{
		{Kind: revise.StepPick, Commit: commit3},
		{Kind: revise.StepPick, Commit: commit2},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, originalHead.TreeOid(), newHead.TreeOid(),
		"reordering independent commits must reproduce the tip tree")
	assert.Equal(t, commit2.Message(), newHead.Message())

	parent, err := newHead.Parent()
	require.NoError(t, err)
	assert.Equal(t, commit3.Message(), parent.Message())

	parentTree, err := parent.Tree()
	require.NoError(t, err)
	assert.Nil(t, parentTree.Entry("b"), "b only appears once its commit is applied")
	blob, err := parentTree.Entry("a").Blob()
	require.NoError(t, err)
	assert.Equal(t, []byte("two\n"), blob.Body())
}

func TestApplySquashMessagesWithoutEditor(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	c1 := scratch.Commit("base", map[string]string{"a": "one\n"})
	c2 := scratch.Commit("first half", map[string]string{"b": "2\n"})
	c3 := scratch.Commit("second half", map[string]string{"c": "3\n"})

	repo := openRepo(t, scratch)

	base, err := repo.GetCommit(c1)
	require.NoError(t, err)
	first, err := repo.GetCommit(c2)
	require.NoError(t, err)
	second, err := repo.GetCommit(c3)
	require.NoError(t, err)

	// Provide the squashed message in the todo so no editor runs
	newHead, _, err := revise.ApplyTodos(base, []revise.Step{
		{Kind: revise.StepPick, Commit: first},
		{Kind: revise.StepSquash, Commit: second, Message: []byte("both halves\n")},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, []byte("both halves\n"), newHead.Message())
	assert.Equal(t, []string{c1}, oidStrings(newHead.ParentOids()))

	tree, err := newHead.Tree()
	require.NoError(t, err)
	assert.NotNil(t, tree.Entry("b"))
	assert.NotNil(t, tree.Entry("c"))
}

func TestApplyReauthor(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	c1 := scratch.Commit("base", map[string]string{"a": "one\n"})

	// A commit by somebody else
	scratch.WriteFile("b", "2\n")
	scratch.Git("add", "b")
	scratch.Git("-c", "user.name=Somebody Else", "-c", "user.email=else@example.com",
		"commit", "-q", "-m", "their commit",
		"--author", "Somebody Else <else@example.com>")
	c2 := scratch.Git("rev-parse", "HEAD")

	repo := openRepo(t, scratch)

	base, err := repo.GetCommit(c1)
	require.NoError(t, err)
	theirs, err := repo.GetCommit(c2)
	require.NoError(t, err)
	assert.Equal(t, "Somebody Else", theirs.Author().Name())

	newHead, _, err := revise.ApplyTodos(base, []revise.Step{
		{Kind: revise.StepPick, Commit: theirs},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, repo.DefaultAuthor().Raw(), newHead.Author().Raw())
	assert.Equal(t, theirs.Message(), newHead.Message())
}

func TestApplyPickWithMessageOverride(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	c1 := scratch.Commit("base", map[string]string{"a": "one\n"})
	c2 := scratch.Commit("old message", map[string]string{"b": "2\n"})

	repo := openRepo(t, scratch)

	base, err := repo.GetCommit(c1)
	require.NoError(t, err)
	pick, err := repo.GetCommit(c2)
	require.NoError(t, err)

	newHead, _, err := revise.ApplyTodos(base, []revise.Step{
		{Kind: revise.StepPick, Commit: pick, Message: []byte("new message\n")},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, []byte("new message\n"), newHead.Message())
	assert.Equal(t, pick.TreeOid(), newHead.TreeOid())
}

func TestUpdateHeadAfterApply(t *testing.T) {
	scratch := testhelper.NewRepo(t)
	scratch.Commit("base", map[string]string{"a": "one\n"})
	c2 := scratch.Commit("tip", map[string]string{"b": "2\n"})

	repo := openRepo(t, scratch)

	ref, err := repo.CommitRef("HEAD")
	require.NoError(t, err)
	head := ref.Target

	rewritten, err := head.Update(revise.CommitUpdate{Message: []byte("rewritten tip\n")})
	require.NoError(t, err)

	tree, err := head.Tree()
	require.NoError(t, err)
	require.NoError(t, revise.UpdateHead(ref, rewritten, tree))

	assert.NotEqual(t, c2, scratch.Git("rev-parse", "HEAD"))
	assert.Equal(t, rewritten.Oid().String(), scratch.Git("rev-parse", "HEAD"))
	assert.Equal(t, "rewritten tip", scratch.Git("log", "-1", "--format=%s"))
}
