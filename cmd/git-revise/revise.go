package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	revise "github.com/mystor/git-revise"
	"github.com/pkg/errors"
)

func run(opts *options, target string) (err error) {
	repo, err := revise.Open(opts.C)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); err == nil {
			err = closeErr
		}
	}()

	if opts.All {
		fmt.Println("Staging all changes")
		if err = repo.StageAll(); err != nil {
			return errors.Wrap(err, "couldn't stage changes")
		}
	}

	// Create a commit from the index so staged changes can take part
	// in the rewrite
	var staged *revise.Commit
	if !opts.NoIndex {
		if staged, err = repo.CommitStaged([]byte("<git index>")); err != nil {
			return err
		}
		parent, err := staged.Parent()
		if err != nil {
			return err
		}
		if staged.TreeOid() == parent.TreeOid() {
			staged = nil // no changes, ignore the commit
		}
	}

	if opts.Interactive {
		return interactive(opts, repo, target, staged)
	}
	return noninteractive(opts, repo, target, staged)
}

// autosquashEnabled resolves the --autosquash/--no-autosquash flags
// against the configuration
func autosquashEnabled(opts *options, repo *revise.Repository) bool {
	if opts.NoAutosquash {
		return false
	}
	if opts.Autosquash {
		return true
	}
	auto, _ := repo.Config().AutoSquash()
	return auto
}

func interactive(opts *options, repo *revise.Repository, target string, staged *revise.Commit) error {
	ref, err := repo.CommitRef(opts.Ref)
	if err != nil {
		return err
	}
	if !ref.IsSet() {
		return errors.Errorf("ref %q has no commit to revise", opts.Ref)
	}
	head := ref.Target

	var base *revise.Commit
	var toRebase []*revise.Commit
	if target == "" {
		// Without an explicit target, revise the commits that
		// haven't been pushed to any remote
		if base, toRebase, err = revise.LocalCommits(repo, head); err != nil {
			return err
		}
	} else {
		if base, err = repo.GetCommit(target); err != nil {
			return err
		}
		if toRebase, err = revise.CommitRange(base, head); err != nil {
			return err
		}
	}

	original := revise.BuildTodos(toRebase, staged)
	todos := original
	if autosquashEnabled(opts, repo) {
		todos = revise.AutosquashTodos(todos)
	}

	if todos, err = revise.EditTodos(repo, todos, opts.Edit); err != nil {
		return err
	}
	if stepsEqual(todos, original) {
		fmt.Fprintln(os.Stderr, "(warning) no changes performed")
		return nil
	}

	newHead, remainder, err := revise.ApplyTodos(base, todos, opts.Reauthor)
	if err != nil {
		return err
	}

	// Changes held by trailing index steps stay out of history; the
	// final tree they produce is what the working directory should
	// still match
	var expected *revise.Tree
	if len(remainder) > 0 {
		current := newHead
		for _, step := range remainder {
			if current, err = revise.Rebase(step.Commit, current); err != nil {
				return err
			}
		}
		if expected, err = current.Tree(); err != nil {
			return err
		}
	}

	return revise.UpdateHead(ref, newHead, expected)
}

func noninteractive(opts *options, repo *revise.Repository, target string, staged *revise.Commit) error {
	if target == "" {
		return errors.New("a target commit is required")
	}

	ref, err := repo.CommitRef(opts.Ref)
	if err != nil {
		return err
	}
	if !ref.IsSet() {
		return errors.Errorf("ref %q has no commit to revise", opts.Ref)
	}
	head := ref.Target

	current, err := repo.GetCommit(target)
	if err != nil {
		return err
	}
	replaced := current

	toRebase, err := revise.CommitRange(current, head)
	if err != nil {
		return err
	}

	// Apply staged changes to the target commit
	final, err := head.Tree()
	if err != nil {
		return err
	}
	if staged != nil {
		fmt.Printf("Applying staged changes to %q\n", target)
		onTarget, err := revise.Rebase(staged, current)
		if err != nil {
			return err
		}
		tree, err := onTarget.Tree()
		if err != nil {
			return err
		}
		if current, err = current.Update(revise.CommitUpdate{Tree: tree}); err != nil {
			return err
		}
		onHead, err := revise.Rebase(staged, head)
		if err != nil {
			return err
		}
		if final, err = onHead.Tree(); err != nil {
			return err
		}
	}

	// Update the commit message on the target commit if requested
	if len(opts.Messages) > 0 {
		message := new(bytes.Buffer)
		for i, m := range opts.Messages {
			if i > 0 {
				message.WriteByte('\n')
			}
			message.WriteString(strings.TrimRight(m, "\n"))
			message.WriteByte('\n')
		}
		if current, err = current.Update(revise.CommitUpdate{Message: message.Bytes()}); err != nil {
			return err
		}
	}

	// Prompt the user to edit the commit message if requested
	if opts.Edit {
		if current, err = current.EditCommitMessage(); err != nil {
			return err
		}
	}

	// Rewrite the author to match the current user if requested
	if opts.Reauthor {
		author := repo.DefaultAuthor()
		if current, err = current.Update(revise.CommitUpdate{Author: &author}); err != nil {
			return err
		}
	}

	// If the commit should be cut, prompt the user to perform the cut
	if opts.Cut {
		if current, err = revise.CutCommit(current); err != nil {
			return err
		}
	}

	if current.Oid() == replaced.Oid() {
		fmt.Fprintln(os.Stderr, "(warning) no changes performed")
		return nil
	}

	fmt.Printf("%s %s\n", current.Oid().Short(), current.Summary())
	for _, commit := range toRebase {
		if current, err = revise.Rebase(commit, current); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", current.Oid().Short(), current.Summary())
	}

	return revise.UpdateHead(ref, current, final)
}

func stepsEqual(a, b []revise.Step) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Commit.Oid() != b[i].Commit.Oid() {
			return false
		}
		if !bytes.Equal(a[i].Message, b[i].Message) {
			return false
		}
	}
	return true
}
