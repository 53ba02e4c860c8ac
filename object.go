// Package revise implements in-memory rewriting of git commit
// history.
//
// The package mirrors the object database of a host git repository:
// objects are fetched by driving git plumbing subprocesses, parsed
// and cached in memory, rewritten there, and persisted back on
// demand. History never touches the working tree.
package revise

import (
	"errors"

	"github.com/mystor/git-revise/ginternals/githash"
	"golang.org/x/xerrors"
)

var (
	// ErrObjectMissing is returned when a reference or identifier
	// doesn't resolve to an object
	ErrObjectMissing = errors.New("object does not exist")

	// ErrUnexpectedKind is returned when a typed getter finds an
	// object of a different kind
	ErrUnexpectedKind = errors.New("unexpected object kind")

	// ErrCorrupted is returned when data read back from the odb
	// doesn't match what was expected (oid mismatch, short read, ...)
	ErrCorrupted = errors.New("odb returned corrupted data")

	// ErrPersistFailed is returned when an object could not be
	// written to the odb
	ErrPersistFailed = errors.New("could not persist object")
)

// Kind represents the type of an object
type Kind int8

// List of all the possible object kinds
const (
	KindCommit Kind = 1
	KindTree   Kind = 2
	KindBlob   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// kindFromString returns a Kind from its string representation
func kindFromString(kind string) (Kind, error) {
	switch kind {
	case "commit":
		return KindCommit, nil
	case "tree":
		return KindTree, nil
	case "blob":
		return KindBlob, nil
	default:
		return 0, xerrors.Errorf("object kind %q: %w", kind, ErrUnexpectedKind)
	}
}

// Object is implemented by the three object variants: *Commit, *Tree,
// and *Blob. All variants share the same envelope: the raw body, the
// identifier computed from it, a persisted flag, and a back-reference
// to the owning repository.
//
// Objects are immutable once constructed. The repository cache
// guarantees at most one in-memory instance per identifier, so
// pointer equality matches identifier equality within a repository
type Object interface {
	// Oid returns the identifier of the object
	Oid() githash.Oid
	// Kind returns the variant tag of the object
	Kind() Kind
	// Body returns the raw object body
	Body() []byte
	// Persisted returns whether the object (and, transitively, its
	// dependencies) exists in the on-disk store
	Persisted() bool
	// Persist writes the object and its dependencies to the on-disk
	// store if they are not there already
	Persist() (githash.Oid, error)

	// Repo returns the repository owning this object
	Repo() *Repository

	envelope() *meta
}

// meta is the envelope shared by all object variants
type meta struct {
	repo      *Repository
	body      []byte
	oid       githash.Oid
	persisted bool
}

func (m *meta) Oid() githash.Oid {
	return m.oid
}

func (m *meta) Body() []byte {
	return m.body
}

func (m *meta) Persisted() bool {
	return m.persisted
}

func (m *meta) Repo() *Repository {
	return m.repo
}

func (m *meta) envelope() *meta {
	return m
}

// persistBody streams the body to the on-disk store and verifies the
// store agrees on the identifier
func (r *Repository) persistBody(m *meta, kind Kind) (githash.Oid, error) {
	if m.persisted {
		return m.oid, nil
	}
	oid, err := r.odb.WriteObject(kind.String(), m.body)
	if err != nil {
		return githash.NullOid, xerrors.Errorf("%s %s: %v: %w", kind, m.oid, err, ErrPersistFailed)
	}
	if oid != m.oid {
		return githash.NullOid, xerrors.Errorf("odb wrote %s, expected %s: %w", oid, m.oid, ErrCorrupted)
	}
	m.persisted = true
	return m.oid, nil
}
