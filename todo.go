package revise

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mystor/git-revise/ginternals/githash"
	"golang.org/x/xerrors"
)

var (
	// ErrTodoInvalid is returned when a todo line cannot be parsed
	ErrTodoInvalid = errors.New("invalid todo entry")

	// ErrDuplicateCommit is returned when an edited todo list
	// references a commit more than once
	ErrDuplicateCommit = errors.New("commit referenced multiple times in todo list")

	// ErrMissingCommit is returned when an edited todo list dropped
	// a commit from the original list
	ErrMissingCommit = errors.New("commit missing from todo list")

	// ErrUnknownCommit is returned when an edited todo list
	// references a commit the original list didn't contain
	ErrUnknownCommit = errors.New("commit not in original todo list")

	// ErrIndexNotLast is returned when a non-index step follows an
	// index step
	ErrIndexNotLast = errors.New("non-index todo found after index todo")

	// ErrEmptyHistory is returned when applying a todo list produced
	// no commits at all
	ErrEmptyHistory = errors.New("no commits introduced on top of root")
)

// StepKind is the action a todo step performs on its commit
type StepKind int8

// List of all possible step kinds
const (
	StepPick StepKind = iota
	StepFixup
	StepSquash
	StepReword
	StepCut
	StepIndex
)

func (k StepKind) String() string {
	switch k {
	case StepPick:
		return "pick"
	case StepFixup:
		return "fixup"
	case StepSquash:
		return "squash"
	case StepReword:
		return "reword"
	case StepCut:
		return "cut"
	case StepIndex:
		return "index"
	default:
		return "invalid"
	}
}

// ParseStepKind parses a step keyword. Any unique prefix is
// accepted, so "p", "pi", and "pick" all mean StepPick
func ParseStepKind(instr string) (StepKind, error) {
	if instr != "" {
		for _, kind := range []StepKind{StepPick, StepFixup, StepSquash, StepReword, StepCut, StepIndex} {
			if strings.HasPrefix(kind.String(), instr) {
				return kind, nil
			}
		}
	}
	return 0, xerrors.Errorf("step kind %q must be one of: pick, fixup, squash, reword, cut, or index: %w",
		instr, ErrTodoInvalid)
}

// Step is a single instruction in a todo list
type Step struct {
	Kind   StepKind
	Commit *Commit

	// Message overrides the commit message when the user edited it
	// in the todo file; nil means the commit's own message is kept
	Message []byte
}

func (s Step) String() string {
	return fmt.Sprintf("%s %s %s", s.Kind, s.Commit.Oid().Short(), s.Commit.Summary())
}

var stepRe = regexp.MustCompile(`^(\S+)\s+(\S+)`)

// parseStep parses a single todo line. Anything after the commit
// hash is informational and ignored
func parseStep(repo *Repository, line string) (Step, error) {
	m := stepRe.FindStringSubmatch(line)
	if m == nil {
		return Step{}, xerrors.Errorf("todo entry %q must follow format <keyword> <sha> <optional message>: %w",
			line, ErrTodoInvalid)
	}
	kind, err := ParseStepKind(m[1])
	if err != nil {
		return Step{}, err
	}
	commit, err := repo.GetCommit(m[2])
	if err != nil {
		return Step{}, err
	}
	return Step{Kind: kind, Commit: commit}, nil
}

// BuildTodos builds the initial todo list for an oldest-first list
// of commits, with an optional staged-changes commit appended as an
// index step
func BuildTodos(commits []*Commit, index *Commit) []Step {
	steps := make([]Step, 0, len(commits)+1)
	for _, commit := range commits {
		steps = append(steps, Step{Kind: StepPick, Commit: commit})
	}
	if index != nil {
		steps = append(steps, Step{Kind: StepIndex, Commit: index})
	}
	return steps
}

// AutosquashTodos reorders fixup!/squash! commits to follow the
// commits they target, changing their kind accordingly. Commits that
// target nothing in the list keep their place and kind. The relative
// order of steps that don't carry a fixup!/squash! prefix is
// preserved, as is the order of siblings targeting the same commit
func AutosquashTodos(todos []Step) []Step {
	type group struct {
		steps []Step
	}

	// One slot per original step, so unmatched candidates fall back
	// into their original position
	groups := make([]*group, len(todos))
	type candidate struct {
		idx    int
		kind   StepKind
		needle string
	}
	var candidates []candidate

	for i, step := range todos {
		if kind, needle, ok := squashTarget(step); ok {
			candidates = append(candidates, candidate{idx: i, kind: kind, needle: needle})
			continue
		}
		groups[i] = &group{steps: []Step{step}}
	}

	findTarget := func(needle string) *group {
		for _, g := range groups {
			if g == nil {
				continue
			}
			for _, s := range g.steps {
				if strings.HasPrefix(s.Commit.Summary(), needle) {
					return g
				}
			}
		}
		// The residual may also name the target by an abbreviated
		// identifier
		if !isHexPrefix(needle) {
			return nil
		}
		for _, g := range groups {
			if g == nil {
				continue
			}
			for _, s := range g.steps {
				if strings.HasPrefix(s.Commit.Oid().String(), strings.ToLower(needle)) {
					return g
				}
			}
		}
		return nil
	}

	for _, c := range candidates {
		step := todos[c.idx]
		if g := findTarget(c.needle); g != nil {
			g.steps = append(g.steps, Step{Kind: c.kind, Commit: step.Commit})
			continue
		}
		groups[c.idx] = &group{steps: []Step{step}}
	}

	var out []Step
	for _, g := range groups {
		if g != nil {
			out = append(out, g.steps...)
		}
	}
	return out
}

// squashTarget reports whether a step is an autosquash candidate:
// a pick of a commit whose summary starts with fixup! or squash!.
// The returned needle has every such prefix stripped; the kind comes
// from the first prefix
func squashTarget(step Step) (kind StepKind, needle string, ok bool) {
	if step.Kind != StepPick {
		return 0, "", false
	}
	kind = StepPick
	needle = step.Commit.Summary()
	for {
		if rest, found := strings.CutPrefix(needle, "fixup! "); found {
			if kind == StepPick {
				kind = StepFixup
			}
			needle = rest
			continue
		}
		if rest, found := strings.CutPrefix(needle, "squash! "); found {
			if kind == StepPick {
				kind = StepSquash
			}
			needle = rest
			continue
		}
		break
	}
	return kind, needle, kind != StepPick
}

// isHexPrefix reports whether s could be an abbreviated commit
// identifier
func isHexPrefix(s string) bool {
	if len(s) < 4 || len(s) > githash.OidSize*2 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

const todoComments = `Interactive Revise Todos (%d commands)

Commands:
 p, pick <commit> = use commit
 r, reword <commit> = use commit, but edit the commit message
 f, fixup <commit> = use commit, but fuse changes into previous commit
 s, squash <commit> = like fixup, but also edit the commit message
 c, cut <commit> = interactively split commit into two smaller commits
 i, index <commit> = leave commit changes staged, but uncommitted

These lines can be re-ordered; they are executed from top to bottom.

If any lines are deleted, the revise will be aborted.
`

// EditTodos opens the todo list in the sequence editor and validates
// the user's changes. With msgedit set, every step's full commit
// message is editable inline
func EditTodos(repo *Repository, todos []Step, msgedit bool) ([]Step, error) {
	buf := new(bytes.Buffer)
	for _, step := range todos {
		if msgedit {
			fmt.Fprintf(buf, "++ %s\n", step)
			message := step.Message
			if message == nil {
				message = step.Commit.Message()
			}
			buf.Write(bytes.TrimRight(message, "\n"))
			buf.WriteString("\n\n")
		} else {
			fmt.Fprintf(buf, "%s\n", step)
		}
	}

	response, err := repo.runEditor("git-revise-todo", buf.Bytes(), editorOpts{
		comments: fmt.Sprintf(todoComments, len(todos)),
		sequence: true,
	})
	if err != nil {
		return nil, err
	}

	edited, err := parseTodos(repo, response, msgedit)
	if err != nil {
		return nil, err
	}
	if err = validateTodos(todos, edited); err != nil {
		return nil, err
	}
	return edited, nil
}

// parseTodos parses the edited todo file back into steps
func parseTodos(repo *Repository, response []byte, msgedit bool) ([]Step, error) {
	var steps []Step
	if !msgedit {
		for _, line := range bytes.Split(response, []byte{'\n'}) {
			text := strings.TrimSpace(string(line))
			if text == "" {
				continue
			}
			step, err := parseStep(repo, text)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		}
		return steps, nil
	}

	var current *Step
	var message []byte
	flush := func() {
		if current != nil {
			current.Message = bytes.TrimRight(message, "\n")
			if len(current.Message) > 0 {
				current.Message = append(current.Message, '\n')
			}
			steps = append(steps, *current)
		}
		current, message = nil, nil
	}
	for _, line := range bytes.SplitAfter(response, []byte{'\n'}) {
		if text, ok := bytes.CutPrefix(line, []byte("++ ")); ok {
			flush()
			step, err := parseStep(repo, strings.TrimSpace(string(text)))
			if err != nil {
				return nil, err
			}
			current = &step
			continue
		}
		if current == nil {
			if len(bytes.TrimSpace(line)) != 0 {
				return nil, xerrors.Errorf("todo text %q outside a ++ step: %w",
					strings.TrimSpace(string(line)), ErrTodoInvalid)
			}
			continue
		}
		message = append(message, line...)
	}
	flush()
	return steps, nil
}

// validateTodos enforces the todo-list invariants on a user-edited
// list: no duplicated commits, the same commit set as the original,
// and index steps only at the very end
func validateTodos(original, edited []Step) error {
	seen := map[githash.Oid]struct{}{}
	seenIndex := false
	for _, step := range edited {
		oid := step.Commit.Oid()
		if _, ok := seen[oid]; ok {
			return xerrors.Errorf("commit %s: %w", oid.Short(), ErrDuplicateCommit)
		}
		seen[oid] = struct{}{}

		if step.Kind == StepIndex {
			seenIndex = true
		} else if seenIndex {
			return xerrors.Errorf("%s step after an index step: %w", step.Kind, ErrIndexNotLast)
		}
	}

	before := map[githash.Oid]struct{}{}
	for _, step := range original {
		before[step.Commit.Oid()] = struct{}{}
	}
	for oid := range before {
		if _, ok := seen[oid]; !ok {
			return xerrors.Errorf("commit %s: %w", oid.Short(), ErrMissingCommit)
		}
	}
	for oid := range seen {
		if _, ok := before[oid]; !ok {
			return xerrors.Errorf("commit %s: %w", oid.Short(), ErrUnknownCommit)
		}
	}
	return nil
}

// ApplyTodos applies the todo steps oldest-first on top of current
// (nil when revising down to a root). It returns the new head and
// any trailing index steps, whose changes are left out of the new
// history
func ApplyTodos(current *Commit, todos []Step, reauthor bool) (*Commit, []Step, error) {
	for i, step := range todos {
		if step.Kind == StepIndex {
			return finishTodos(current, todos[i:])
		}
		if current == nil && (step.Kind == StepFixup || step.Kind == StepSquash) {
			return nil, nil, xerrors.Errorf("nothing for %s to fold into: %w", step.Kind, ErrTodoInvalid)
		}

		rebased, err := Rebase(step.Commit, current)
		if err != nil {
			return nil, nil, err
		}

		switch step.Kind {
		case StepPick:
			current = rebased
			if step.Message != nil {
				if current, err = current.Update(CommitUpdate{Message: step.Message}); err != nil {
					return nil, nil, err
				}
			}

		case StepFixup:
			tree, err := rebased.Tree()
			if err != nil {
				return nil, nil, err
			}
			if current, err = current.Update(CommitUpdate{Tree: tree}); err != nil {
				return nil, nil, err
			}

		case StepSquash:
			tree, err := rebased.Tree()
			if err != nil {
				return nil, nil, err
			}
			fused := append(append(append([]byte(nil), current.Message()...), "\n\n"...), rebased.Message()...)
			if current, err = current.Update(CommitUpdate{Tree: tree, Message: fused}); err != nil {
				return nil, nil, err
			}
			if step.Message != nil {
				current, err = current.Update(CommitUpdate{Message: step.Message})
			} else {
				current, err = current.EditCommitMessage()
			}
			if err != nil {
				return nil, nil, err
			}

		case StepReword:
			current = rebased
			if step.Message != nil {
				current, err = current.Update(CommitUpdate{Message: step.Message})
			} else {
				current, err = current.EditCommitMessage()
			}
			if err != nil {
				return nil, nil, err
			}

		case StepCut:
			if current, err = CutCommit(rebased); err != nil {
				return nil, nil, err
			}

		default:
			return nil, nil, xerrors.Errorf("unknown step kind %d: %w", step.Kind, ErrTodoInvalid)
		}

		if reauthor {
			author := current.repo.DefaultAuthor()
			if current, err = current.Update(CommitUpdate{Author: &author}); err != nil {
				return nil, nil, err
			}
		}

		fmt.Printf("%-6s %s  %s\n", step.Kind, current.Oid().Short(), current.Summary())
	}
	return finishTodos(current, nil)
}

func finishTodos(current *Commit, remainder []Step) (*Commit, []Step, error) {
	if current == nil {
		return nil, nil, ErrEmptyHistory
	}
	return current, remainder, nil
}
