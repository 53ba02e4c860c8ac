package revise

import (
	"bytes"
	"errors"
	"sort"
	"strconv"

	"github.com/mystor/git-revise/ginternals/githash"
	"github.com/mystor/git-revise/internal/readutil"
	"golang.org/x/xerrors"
)

// ErrTreeInvalid represents an error thrown when parsing an invalid
// tree object
var ErrTreeInvalid = errors.New("invalid tree")

// Mode represents the mode of an entry inside a tree.
// Non-standard modes (like 0o100664) are not supported
type Mode int32

const (
	// ModeRegular represents the mode to use for a regular file
	ModeRegular Mode = 0o100644
	// ModeExec represents the mode to use for an executable file
	ModeExec Mode = 0o100755
	// ModeDir represents the mode to use for a directory
	ModeDir Mode = 0o040000
	// ModeSymlink represents the mode to use for a symbolic link
	ModeSymlink Mode = 0o120000
	// ModeGitlink represents the mode to use for a gitlink (submodule)
	ModeGitlink Mode = 0o160000
)

// IsValid returns whether the mode is a supported mode or not
func (m Mode) IsValid() bool {
	switch m {
	case ModeRegular, ModeExec, ModeDir, ModeSymlink, ModeGitlink:
		return true
	default:
		return false
	}
}

// IsFile returns whether the mode is a regular or executable file
func (m Mode) IsFile() bool {
	return m == ModeRegular || m == ModeExec
}

// ComparableTo returns whether entries of the two modes can be
// merged against each other: equal modes, or both file modes
func (m Mode) ComparableTo(other Mode) bool {
	return m == other || (m.IsFile() && other.IsFile())
}

// String returns the octal wire form of the mode, without a leading
// zero ("40000" for a directory, "100644" for a regular file)
func (m Mode) String() string {
	return strconv.FormatInt(int64(m), 8)
}

// Entry represents a single tree entry: a mode and the identifier of
// the object it names
type Entry struct {
	repo *Repository

	// Mode of the entry
	Mode Mode
	// Oid of the entry's object
	Oid githash.Oid
}

// NewEntry returns an entry owned by this repository
func (r *Repository) NewEntry(mode Mode, oid githash.Oid) Entry {
	return Entry{repo: r, Mode: mode, Oid: oid}
}

// Equal returns whether two entries have the same mode and oid.
// Either side may be nil
func (e *Entry) Equal(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Mode == other.Mode && e.Oid == other.Oid
}

// Blob returns the data for this entry as a *Blob. Non-file entries
// yield an empty blob
func (e *Entry) Blob() (*Blob, error) {
	if e.Mode.IsFile() {
		return e.repo.GetBlobOid(e.Oid)
	}
	return e.repo.NewBlob(nil), nil
}

// SymlinkTarget returns the data for this entry as a symlink target.
// Non-symlink entries yield a placeholder
func (e *Entry) SymlinkTarget() ([]byte, error) {
	if e.Mode == ModeSymlink {
		blob, err := e.repo.GetBlobOid(e.Oid)
		if err != nil {
			return nil, err
		}
		return blob.Body(), nil
	}
	return []byte("<non-symlink>"), nil
}

// Tree returns the data for this entry as a *Tree. Non-directory
// entries yield an empty tree
func (e *Entry) Tree() (*Tree, error) {
	if e.Mode == ModeDir {
		return e.repo.GetTreeOid(e.Oid)
	}
	return e.repo.NewTree(nil)
}

// persist writes the object referenced by this entry to the on-disk
// store. Gitlink entries reference commits in another repository and
// are skipped
func (e *Entry) persist() error {
	if e.Mode == ModeGitlink {
		return nil
	}
	obj, err := e.repo.GetObjectOid(e.Oid)
	if err != nil {
		return err
	}
	_, err = obj.Persist()
	return err
}

// Tree represents a tree object: a mapping from entry names to
// entries, ordered on serialization
type Tree struct {
	meta

	entries map[string]Entry
}

// newTreeFromBody returns the in-memory tree with the given body,
// creating (and parsing) it if needed
//
// A tree has the following format, entries back to back:
//
// {octal_mode} {name}\0{20-byte oid}
func (r *Repository) newTreeFromBody(body []byte) (*Tree, error) {
	oid := githash.Sum(KindTree.String(), body)
	if obj, ok := r.cached(oid); ok {
		return obj.(*Tree), nil
	}

	t := &Tree{
		meta:    meta{repo: r, body: body, oid: oid},
		entries: map[string]Entry{},
	}

	rest := body
	for i := 1; len(rest) > 0; i++ {
		data := readutil.ReadTo(rest, ' ')
		if len(data) == 0 {
			return nil, xerrors.Errorf("could not retrieve the mode of entry %d: %w", i, ErrTreeInvalid)
		}
		mode, err := strconv.ParseInt(string(data), 8, 32)
		if err != nil {
			return nil, xerrors.Errorf("could not parse mode of entry %d: %s: %w", i, err.Error(), ErrTreeInvalid)
		}
		rest = rest[len(data)+1:]

		data = readutil.ReadTo(rest, 0)
		if data == nil {
			return nil, xerrors.Errorf("could not retrieve the name of entry %d: %w", i, ErrTreeInvalid)
		}
		name := string(data)
		rest = rest[len(data)+1:]

		if len(rest) < githash.OidSize {
			return nil, xerrors.Errorf("not enough space to retrieve the oid of entry %d: %w", i, ErrTreeInvalid)
		}
		entryOid, err := githash.NewOidFromBytes(rest[:githash.OidSize])
		if err != nil {
			return nil, xerrors.Errorf("invalid oid for entry %d: %w", i, ErrTreeInvalid)
		}
		rest = rest[githash.OidSize:]

		t.entries[name] = r.NewEntry(Mode(mode), entryOid)
	}

	r.cache(t)
	return t, nil
}

// NewTree directly creates an in-memory tree object, without
// persisting it. If a tree object with these entries already exists,
// it is returned instead
func (r *Repository) NewTree(entries map[string]Entry) (*Tree, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	// Directories are sorted in the tree listing as though they have
	// a trailing slash in their name
	sortKey := func(name string) string {
		if entries[name].Mode == ModeDir {
			return name + "/"
		}
		return name
	}
	sort.Slice(names, func(i, j int) bool {
		return sortKey(names[i]) < sortKey(names[j])
	})

	buf := new(bytes.Buffer)
	for _, name := range names {
		e := entries[name]
		if !e.Mode.IsValid() {
			return nil, xerrors.Errorf("invalid mode %o for entry %q: %w", e.Mode, name, ErrTreeInvalid)
		}
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(name)
		buf.WriteByte(0)
		buf.Write(e.Oid.Bytes())
	}
	return r.newTreeFromBody(buf.Bytes())
}

// Kind returns the variant tag of the object
func (t *Tree) Kind() Kind {
	return KindTree
}

// Persist writes the tree and every object its entries reference to
// the on-disk store
func (t *Tree) Persist() (githash.Oid, error) {
	if t.persisted {
		return t.oid, nil
	}
	for _, e := range t.entries {
		if err := e.persist(); err != nil {
			return githash.NullOid, err
		}
	}
	return t.repo.persistBody(&t.meta, KindTree)
}

// Entries returns a copy of the tree's entries, keyed by name
func (t *Tree) Entries() map[string]Entry {
	out := make(map[string]Entry, len(t.entries))
	for name, e := range t.entries {
		out[name] = e
	}
	return out
}

// Entry returns the named entry, or nil when the tree doesn't
// contain it
func (t *Tree) Entry(name string) *Entry {
	if e, ok := t.entries[name]; ok {
		return &e
	}
	return nil
}
