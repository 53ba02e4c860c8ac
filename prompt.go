package revise

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ErrUserAborted is returned when the user picked the abort choice
// at a prompt. Callers unwind without touching on-disk refs
var ErrUserAborted = errors.New("aborted by user")

// stdinReader is shared so buffered input isn't lost between
// consecutive prompts
var stdinReader = bufio.NewReader(os.Stdin)

// promptLine prints a question and reads one line of input. EOF on
// stdin counts as an abort
func promptLine(question string) (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		logrus.Debug("prompting without a terminal on stdin")
	}
	fmt.Print(question)

	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return "", xerrors.Errorf("no answer to %q: %w", question, ErrUserAborted)
	}
	return strings.TrimSpace(line), nil
}

// promptYesNo asks a yes/no question. An empty answer picks the
// default
func promptYesNo(question string, def bool) (bool, error) {
	suffix := " (y/N) "
	if def {
		suffix = " (Y/n) "
	}
	answer, err := promptLine(question + suffix)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
