package main

import (
	"errors"
	"fmt"
	"os"

	revise "github.com/mystor/git-revise"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		switch {
		case errors.Is(err, revise.ErrMergeConflict):
			fmt.Fprintf(os.Stderr, "fatal: merge conflict: %v\n", err)
		case errors.Is(err, revise.ErrObjectMissing):
			fmt.Fprintf(os.Stderr, "fatal: invalid value: %v\n", err)
		default:
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		}
		os.Exit(1)
	}
}

type options struct {
	C        string
	Ref      string
	Reauthor bool

	NoIndex bool
	All     bool

	Interactive bool
	Edit        bool
	Messages    []string
	Cut         bool

	Autosquash   bool
	NoAutosquash bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "git-revise <target>",
		Short: "Rebase staged changes onto the given commit, and rewrite history to incorporate these changes",
		Long: `git-revise is a tool to efficiently update, split, and rearrange
commits. It rewrites history entirely in memory: the working tree is
never touched, which makes it fast and safe on large repositories.`,
		Version:       revise.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&opts.C, "C", "C", "", "run as if git-revise was started in the provided path")
	cmd.Flags().StringVar(&opts.Ref, "ref", "HEAD", "reference to update")
	cmd.Flags().BoolVar(&opts.Reauthor, "reauthor", false, "reset the author of the targeted commit")

	cmd.Flags().BoolVar(&opts.NoIndex, "no-index", false, "ignore the index while rewriting history")
	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "stage all tracked files before running")
	cmd.MarkFlagsMutuallyExclusive("no-index", "all")

	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "interactively edit commit stack")
	cmd.Flags().BoolVarP(&opts.Edit, "edit", "e", false, "edit commit message of targeted commit")
	cmd.Flags().StringArrayVarP(&opts.Messages, "message", "m", nil, "specify commit message on command line")
	cmd.Flags().BoolVar(&opts.Cut, "cut", false, "interactively cut a commit into two smaller commits")
	cmd.MarkFlagsMutuallyExclusive("interactive", "message", "cut")
	cmd.MarkFlagsMutuallyExclusive("edit", "message", "cut")

	cmd.Flags().BoolVar(&opts.Autosquash, "autosquash", false, "automatically apply fixup! and squash! commits to their targets")
	cmd.Flags().BoolVar(&opts.NoAutosquash, "no-autosquash", false, "force disable revise.autoSquash behaviour")
	cmd.MarkFlagsMutuallyExclusive("autosquash", "no-autosquash")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		return run(opts, target)
	}
	return cmd
}
