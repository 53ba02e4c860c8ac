package revise

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConflictedFile(t *testing.T) {
	t.Parallel()

	t.Run("side swap yields identical output and digest", func(t *testing.T) {
		t.Parallel()

		inputA := "<<<<<<<\nb\n=======\na\n>>>>>>>\n"
		inputB := "<<<<<<<\na\n=======\nb\n>>>>>>>\n"

		normA, idA, err := normalizeConflictedFile([]byte(inputA))
		require.NoError(t, err)
		normB, idB, err := normalizeConflictedFile([]byte(inputB))
		require.NoError(t, err)

		assert.Equal(t, "<<<<<<<\na\n=======\nb\n>>>>>>>\n", string(normA))
		assert.Equal(t, normA, normB)
		assert.Equal(t, idA, idB)
		assert.Len(t, idA, 40)
	})

	t.Run("labels are stripped", func(t *testing.T) {
		t.Parallel()

		input := "<<<<<<< file.txt (incoming: two)\ntwo\n======= sep\none\n>>>>>>> file.txt (new parent: one)\n"
		norm, _, err := normalizeConflictedFile([]byte(input))
		require.NoError(t, err)
		assert.Equal(t, "<<<<<<<\none\n=======\ntwo\n>>>>>>>\n", string(norm))
	})

	t.Run("diff3 original section is discarded", func(t *testing.T) {
		t.Parallel()

		withOriginal := "<<<<<<<\nb\n||||||| base\noriginal\n=======\na\n>>>>>>>\n"
		without := "<<<<<<<\nb\n=======\na\n>>>>>>>\n"

		normA, idA, err := normalizeConflictedFile([]byte(withOriginal))
		require.NoError(t, err)
		normB, idB, err := normalizeConflictedFile([]byte(without))
		require.NoError(t, err)

		assert.Equal(t, normB, normA)
		assert.Equal(t, idB, idA)
	})

	t.Run("surrounding lines pass through", func(t *testing.T) {
		t.Parallel()

		input := "before\n<<<<<<< ours\nx\n=======\ny\n>>>>>>> theirs\nafter\n"
		norm, _, err := normalizeConflictedFile([]byte(input))
		require.NoError(t, err)
		assert.Equal(t, "before\n<<<<<<<\nx\n=======\ny\n>>>>>>>\nafter\n", string(norm))
	})

	t.Run("no conflicts at all", func(t *testing.T) {
		t.Parallel()

		input := "just\nsome\nlines\n"
		norm, id, err := normalizeConflictedFile([]byte(input))
		require.NoError(t, err)
		assert.Equal(t, input, string(norm))
		// the digest of zero hunks is the empty-input SHA-1
		assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", id)
	})

	t.Run("nested conflict is normalized and spliced", func(t *testing.T) {
		t.Parallel()

		input := "<<<<<<< outer-ours\n" +
			"<<<<<<< inner-ours\nzz\n=======\naa\n>>>>>>> inner-theirs\n" +
			"=======\nother side\n>>>>>>> outer-theirs\n"
		norm, _, err := normalizeConflictedFile([]byte(input))
		require.NoError(t, err)

		inner := "<<<<<<<\naa\n=======\nzz\n>>>>>>>\n"
		assert.Contains(t, string(norm), inner,
			"the outer hunk must contain the already-normalized inner block verbatim")
		assert.True(t, strings.HasPrefix(string(norm), "<<<<<<<\n"))
		assert.True(t, strings.HasSuffix(string(norm), ">>>>>>>\n"))
	})

	t.Run("multiple conflicts feed one running digest", func(t *testing.T) {
		t.Parallel()

		one := "<<<<<<<\na\n=======\nb\n>>>>>>>\n"
		_, idSingle, err := normalizeConflictedFile([]byte(one))
		require.NoError(t, err)
		_, idDouble, err := normalizeConflictedFile([]byte(one + "mid\n" + one))
		require.NoError(t, err)
		assert.NotEqual(t, idSingle, idDouble)
	})

	t.Run("parse failures", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			desc  string
			input string
		}{
			{desc: "unterminated block", input: "<<<<<<<\na\n=======\nb\n"},
			{desc: "terminator before separator", input: "<<<<<<<\na\n>>>>>>>\n"},
			{desc: "stray separator", input: "a\n=======\nb\n"},
			{desc: "stray terminator", input: ">>>>>>>\n"},
			{desc: "stray original marker", input: "|||||||\n"},
			{desc: "double separator", input: "<<<<<<<\na\n=======\nb\n=======\nc\n>>>>>>>\n"},
		}
		for _, tc := range testCases {
			tc := tc
			t.Run(tc.desc, func(t *testing.T) {
				t.Parallel()

				_, _, err := normalizeConflictedFile([]byte(tc.input))
				require.ErrorIs(t, err, ErrConflictParse)
			})
		}
	})

	t.Run("marker lookalikes are content", func(t *testing.T) {
		t.Parallel()

		input := "<<<<<<<\n<<<<<<- not a marker\n=======\n>>>>>>>> eight\n>>>>>>>\n"
		norm, _, err := normalizeConflictedFile([]byte(input))
		require.NoError(t, err)
		assert.Contains(t, string(norm), "<<<<<<- not a marker\n")
		assert.Contains(t, string(norm), ">>>>>>>> eight\n")
	})
}

func TestIsConflictMarker(t *testing.T) {
	t.Parallel()

	assert.True(t, isConflictMarker([]byte("<<<<<<<\n"), '<'))
	assert.True(t, isConflictMarker([]byte("<<<<<<< label\n"), '<'))
	assert.True(t, isConflictMarker([]byte("======="), '='))
	assert.False(t, isConflictMarker([]byte("<<<<<<\n"), '<'), "six markers isn't a marker")
	assert.False(t, isConflictMarker([]byte("<<<<<<<x\n"), '<'), "label needs a space")
	assert.False(t, isConflictMarker([]byte("=======\n"), '<'))
}
