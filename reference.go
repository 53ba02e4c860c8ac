package revise

import (
	"golang.org/x/xerrors"
)

// Reference is a typed handle on a named ref.
//
// The type parameter pins the kind of object the ref is expected to
// point at; resolving a ref that holds a different kind fails with
// ErrUnexpectedKind
type Reference[T Object] struct {
	// Shortname is the name the reference was created with,
	// e.g. "HEAD" or "main"
	Shortname string
	// Name is the resolved full ref name, e.g. "refs/heads/main"
	Name string
	// Target is the referenced object, or the zero value when the
	// ref doesn't exist yet
	Target T

	repo *Repository
}

// NewReference resolves the symbolic short name to a full ref name
// and loads its target. A missing target is permitted
func NewReference[T Object](repo *Repository, name string) (*Reference[T], error) {
	full, err := repo.git.Output("rev-parse", "--symbolic-full-name", name)
	if err != nil {
		return nil, xerrors.Errorf("could not resolve ref %q: %w", name, err)
	}
	ref := &Reference[T]{
		Shortname: name,
		Name:      string(full),
		repo:      repo,
	}
	if ref.Name == "" {
		// A detached HEAD (or a raw oid) has no symbolic full name
		ref.Name = name
	}
	if err := ref.Refresh(); err != nil {
		return nil, err
	}
	return ref, nil
}

// Refresh re-reads the target of this reference from disk
func (ref *Reference[T]) Refresh() error {
	obj, err := ref.repo.GetObject(ref.Name)
	if err != nil {
		if xerrors.Is(err, ErrObjectMissing) {
			var zero T
			ref.Target = zero
			return nil
		}
		return err
	}

	target, ok := obj.(T)
	if !ok {
		return xerrors.Errorf("%s %s is not the requested kind: %w", obj.Kind(), ref.Name, ErrUnexpectedKind)
	}
	ref.Target = target
	return nil
}

// IsSet returns whether the reference currently has a target
func (ref *Reference[T]) IsSet() bool {
	var zero T
	return any(ref.Target) != any(zero)
}

// Update persists the new target and points the reference at it,
// adding a reflog entry with the given reason. When the current
// target is known it is passed along as the expected prior value, so
// a concurrent update fails instead of being overwritten
func (ref *Reference[T]) Update(new T, reason string) error {
	if _, err := new.Persist(); err != nil {
		return err
	}

	args := []string{"update-ref", "-m", reason, ref.Name, new.Oid().String()}
	if ref.IsSet() {
		args = append(args, ref.Target.Oid().String())
	}
	if err := ref.repo.git.Run(args...); err != nil {
		return xerrors.Errorf("could not update ref %q: %w", ref.Name, err)
	}
	ref.Target = new
	return nil
}

// CommitRef returns a reference expected to point at a commit
func (r *Repository) CommitRef(name string) (*Reference[*Commit], error) {
	return NewReference[*Commit](r, name)
}
