package revise

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/kballard/go-shellquote"
	"golang.org/x/xerrors"
)

// ErrEditorFailed is returned when the editor exited non-zero, or
// produced empty content where some was required
var ErrEditorFailed = errors.New("editor failed")

// commitEditMsgFile is the filename commit messages are edited under,
// matching the name git porcelains use so editors can recognize it
const commitEditMsgFile = "COMMIT_EDITMSG"

// GitEditor returns the editor configured for git
func (r *Repository) GitEditor() (string, error) {
	out, err := r.git.Output("var", "GIT_EDITOR")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// sequenceEditor returns the editor used for todo lists. The lookup
// order replicates the one used by git itself
func (r *Repository) sequenceEditor() (string, error) {
	if editor := os.Getenv("GIT_SEQUENCE_EDITOR"); editor != "" {
		return editor, nil
	}
	if editor, ok := r.cfg.SequenceEditor(); ok {
		return editor, nil
	}
	return r.GitEditor()
}

// editFileWithEditor launches the editor on path and returns the
// file's final bytes. The editor string is a shell fragment; the
// filename is passed as a positional argument so quoting in the
// fragment is preserved
func editFileWithEditor(editor, path string) ([]byte, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		// There is no sh to defer to; split the editor string
		// ourselves the way a POSIX shell would
		words, err := shellquote.Split(editor)
		if err != nil || len(words) == 0 {
			return nil, xerrors.Errorf("could not parse editor command %q: %w", editor, ErrEditorFailed)
		}
		cmd = exec.Command(words[0], append(words[1:], filepath.Base(path))...)
	} else {
		cmd = exec.Command("sh", "-c", editor+` "$@"`, editor, filepath.Base(path))
	}
	cmd.Dir = filepath.Dir(path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("editor %q exited with an error: %v: %w", editor, err, ErrEditorFailed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("could not read back edited file: %w", err)
	}
	return data, nil
}

// EditFile launches the configured editor on an existing file
func (r *Repository) EditFile(path string) ([]byte, error) {
	editor, err := r.GitEditor()
	if err != nil {
		return nil, err
	}
	return editFileWithEditor(editor, path)
}

// commentChar returns the comment character for edited messages.
// core.commentChar=auto picks a character not already starting a
// line of text
func (r *Repository) commentChar(text []byte) ([]byte, error) {
	c := r.cfg.CommentChar()
	if c == "auto" {
		candidates := []byte("#;@!$%^&|:")
		for _, line := range bytes.Split(text, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			if i := bytes.IndexByte(candidates, line[0]); i >= 0 {
				candidates = append(candidates[:i], candidates[i+1:]...)
			}
		}
		if len(candidates) == 0 {
			return nil, xerrors.Errorf("unable to automatically select a comment character: %w", ErrEditorFailed)
		}
		return candidates[:1], nil
	}
	if c == "" {
		return nil, xerrors.Errorf("core.commentChar must not be empty: %w", ErrEditorFailed)
	}
	return []byte(c), nil
}

// stripComments removes comment lines and normalizes trailing
// whitespace. Sequence files additionally treat indented comments as
// comments
func stripComments(data, commentChar []byte, allowPrecedingWhitespace bool) []byte {
	isComment := func(line []byte) bool {
		if allowPrecedingWhitespace {
			line = bytes.TrimLeft(line, " \t")
		}
		return bytes.HasPrefix(line, commentChar)
	}

	out := make([]byte, 0, len(data))
	rest := data
	for len(rest) > 0 {
		var line []byte
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i+1], rest[i+1:]
		} else {
			line, rest = rest, nil
		}
		if !isComment(line) {
			out = append(out, line...)
		}
	}

	out = bytes.TrimRight(out, " \t\r\n")
	if len(out) > 0 {
		out = append(out, '\n')
	}
	return out
}

type editorOpts struct {
	// comments are written below the text, each line prefixed with
	// the comment character, and stripped from the result
	comments string
	// allowEmpty permits the edited result to be empty
	allowEmpty bool
	// sequence selects the sequence editor and its laxer comment
	// rules
	sequence bool
}

// runEditor writes text to a file in the repository temp directory,
// launches the editor on it, and returns the cleaned-up result
func (r *Repository) runEditor(filename string, text []byte, opts editorOpts) ([]byte, error) {
	dir, err := r.Tempdir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, filename)

	commentChar, err := r.commentChar(text)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	for _, line := range bytes.Split(bytes.TrimRight(text, "\n"), []byte{'\n'}) {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if opts.comments != "" {
		buf.WriteByte('\n')
		for _, comment := range bytes.Split(bytes.TrimRight([]byte(opts.comments), "\n"), []byte{'\n'}) {
			buf.Write(commentChar)
			if len(comment) > 0 {
				buf.WriteByte(' ')
				buf.Write(comment)
			}
			buf.WriteByte('\n')
		}
	}
	if err = os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, xerrors.Errorf("could not write %s: %w", filename, err)
	}

	var editor string
	if opts.sequence {
		editor, err = r.sequenceEditor()
	} else {
		editor, err = r.GitEditor()
	}
	if err != nil {
		return nil, err
	}

	data, err := editFileWithEditor(editor, path)
	if err != nil {
		return nil, err
	}
	if opts.comments != "" {
		data = stripComments(data, commentChar, opts.sequence)
	}
	if !opts.allowEmpty && len(data) == 0 {
		return nil, xerrors.Errorf("empty file - aborting: %w", ErrEditorFailed)
	}
	return data, nil
}

// EditCommitMessage launches an editor on the commit message of
// commit, returning the commit updated with the edited message
func (c *Commit) EditCommitMessage() (*Commit, error) {
	r := c.repo
	comments := "Please enter the commit message for your changes. Lines starting\n" +
		"with the comment character will be ignored, and an empty message\n" +
		"aborts the commit.\n"

	// For non-root commits, include a diffstat of the change being
	// described
	if len(c.parentOids) == 1 {
		parent, err := c.Parent()
		if err != nil {
			return nil, err
		}
		parentTree, err := parent.Tree()
		if err != nil {
			return nil, err
		}
		treeA, err := parentTree.Persist()
		if err != nil {
			return nil, err
		}
		tree, err := c.Tree()
		if err != nil {
			return nil, err
		}
		treeB, err := tree.Persist()
		if err != nil {
			return nil, err
		}
		stat, err := r.git.Output("diff-tree", "--stat", treeA.String(), treeB.String())
		if err != nil {
			return nil, err
		}
		comments += "\n" + string(stat)
	}

	message, err := r.runEditor(commitEditMsgFile, c.message, editorOpts{comments: comments})
	if err != nil {
		return nil, err
	}
	return c.Update(CommitUpdate{Message: message})
}
