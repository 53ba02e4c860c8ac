package revise

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/mystor/git-revise/backend/gitbackend"
	"github.com/mystor/git-revise/ginternals/config"
	"github.com/mystor/git-revise/ginternals/githash"
	"github.com/mystor/git-revise/internal/gitcmd"
	"golang.org/x/xerrors"
)

// Repository is a process-wide handle onto one on-disk git
// repository.
//
// It owns the long-lived object retrieval subprocess, the in-memory
// object cache, the default identities used for new commits, and a
// lazily created temp directory inside the gitdir. Close releases
// all of them
type Repository struct {
	// Workdir is the root of the working tree
	Workdir string
	// Gitdir is the repository's .git directory
	Gitdir string

	git *gitcmd.Runner
	odb *gitbackend.Backend
	cfg *config.FileAggregate

	// two-level cache: first byte of the oid -> oid -> object.
	// It guarantees at most one in-memory instance per identifier
	objects map[byte]map[githash.Oid]Object

	defaultAuthor    Signature
	defaultCommitter Signature

	index *Index

	signCommits bool
	tempdir     string
}

// Open discovers the repository containing cwd (or the current
// directory when cwd is empty) and acquires a handle on it
func Open(cwd string) (*Repository, error) {
	run := gitcmd.New(cwd)
	workdir, err := run.Output("rev-parse", "--show-toplevel")
	if err != nil {
		return nil, xerrors.Errorf("could not find repository root: %w", err)
	}

	r := &Repository{
		Workdir: string(workdir),
		git:     gitcmd.New(string(workdir)),
		objects: map[byte]map[githash.Oid]Object{},
	}

	gitdir, err := r.git.Output("rev-parse", "--git-dir")
	if err != nil {
		return nil, err
	}
	r.Gitdir = string(gitdir)
	if !filepath.IsAbs(r.Gitdir) {
		r.Gitdir = filepath.Join(r.Workdir, r.Gitdir)
	}

	author, err := r.git.Output("var", "GIT_AUTHOR_IDENT")
	if err != nil {
		return nil, err
	}
	if r.defaultAuthor, err = NewSignature(author); err != nil {
		return nil, err
	}
	committer, err := r.git.Output("var", "GIT_COMMITTER_IDENT")
	if err != nil {
		return nil, err
	}
	if r.defaultCommitter, err = NewSignature(committer); err != nil {
		return nil, err
	}

	if r.cfg, err = config.LoadForRepo(r.Gitdir); err != nil {
		return nil, xerrors.Errorf("could not load config: %w", err)
	}
	r.signCommits, _ = r.cfg.GpgSign()

	if r.odb, err = gitbackend.New(r.git); err != nil {
		return nil, err
	}

	indexFile, err := r.GitPath("index")
	if err != nil {
		r.Close() //nolint:errcheck // the path error is the one that matters
		return nil, err
	}
	r.index = r.newIndex(indexFile)

	return r, nil
}

// Close terminates the retrieval subprocess and deletes the temp
// directory
func (r *Repository) Close() error {
	var err error
	if r.odb != nil {
		err = r.odb.Close()
		r.odb = nil
	}
	if r.tempdir != "" {
		if rmErr := os.RemoveAll(r.tempdir); err == nil {
			err = rmErr
		}
		r.tempdir = ""
	}
	return err
}

// Config returns the aggregated configuration of the repository
func (r *Repository) Config() *config.FileAggregate {
	return r.cfg
}

// DefaultAuthor returns the author used for new commits
func (r *Repository) DefaultAuthor() Signature {
	return r.defaultAuthor
}

// DefaultCommitter returns the committer used for new commits
func (r *Repository) DefaultCommitter() Signature {
	return r.defaultCommitter
}

// Index returns the handle on the repository's primary index file
func (r *Repository) Index() *Index {
	return r.index
}

// Tempdir returns a temporary directory to use for modifications to
// this repository, creating it on first use. It lives inside the
// gitdir so that files in it can be renamed into place atomically
func (r *Repository) Tempdir() (string, error) {
	if r.tempdir == "" {
		dir, err := os.MkdirTemp(r.Gitdir, "revise.")
		if err != nil {
			return "", xerrors.Errorf("could not create temp directory: %w", err)
		}
		r.tempdir = dir
	}
	return r.tempdir, nil
}

// GitPath returns the path to a file in the .git directory,
// respecting the environment
func (r *Repository) GitPath(path string) (string, error) {
	out, err := r.git.Output("rev-parse", "--git-path", path)
	if err != nil {
		return "", err
	}
	p := string(out)
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.Workdir, p)
	}
	return p, nil
}

// cached returns the in-memory object with the given oid, if any
func (r *Repository) cached(oid githash.Oid) (Object, bool) {
	shard, ok := r.objects[oid[0]]
	if !ok {
		return nil, false
	}
	obj, ok := shard[oid]
	return obj, ok
}

// cache inserts an object into the cache. The caller must have
// checked the oid isn't cached yet
func (r *Repository) cache(obj Object) {
	oid := obj.Oid()
	shard, ok := r.objects[oid[0]]
	if !ok {
		shard = map[githash.Oid]Object{}
		r.objects[oid[0]] = shard
	}
	shard[oid] = obj
}

// GetObject returns the object the given textual reference resolves
// to: a ref name, a hex oid, or an abbreviated hex oid. Abbreviated
// oids may also name in-memory objects that were never persisted
func (r *Repository) GetObject(ref string) (Object, error) {
	if oid, err := githash.NewOidFromStr(ref); err == nil {
		if obj, ok := r.cached(oid); ok {
			return obj, nil
		}
	}

	// A repository without a backend only serves in-memory objects
	if r.odb == nil {
		if obj, ok := r.findCachedPrefix(ref); ok {
			return obj, nil
		}
		return nil, xerrors.Errorf("%s: %w", ref, ErrObjectMissing)
	}

	oid, kind, body, err := r.odb.Object(ref)
	if err != nil {
		if xerrors.Is(err, gitbackend.ErrObjectMissing) {
			if obj, ok := r.findCachedPrefix(ref); ok {
				return obj, nil
			}
			return nil, xerrors.Errorf("%s: %w", ref, ErrObjectMissing)
		}
		if xerrors.Is(err, gitbackend.ErrCorrupted) {
			return nil, xerrors.Errorf("%v: %w", err, ErrCorrupted)
		}
		return nil, err
	}

	obj, err := r.objectFromBody(kind, body)
	if err != nil {
		return nil, err
	}
	if obj.Oid() != oid {
		return nil, xerrors.Errorf("miscomputed oid for %s (got %s, odb says %s): %w",
			ref, obj.Oid(), oid, ErrCorrupted)
	}
	obj.envelope().persisted = true
	return obj, nil
}

func (r *Repository) objectFromBody(kind string, body []byte) (Object, error) {
	k, err := kindFromString(kind)
	if err != nil {
		return nil, err
	}
	switch k {
	case KindCommit:
		return r.newCommitFromBody(body)
	case KindTree:
		return r.newTreeFromBody(body)
	case KindBlob:
		return r.NewBlob(body), nil
	default:
		return nil, xerrors.Errorf("object kind %q: %w", kind, ErrUnexpectedKind)
	}
}

// findCachedPrefix scans the cache shard selected by the first byte
// of an abbreviated hex oid for entries starting with the prefix.
// The match is only returned when it is unique
func (r *Repository) findCachedPrefix(ref string) (Object, bool) {
	if len(ref) < 2 || len(ref) > githash.OidSize*2 || len(ref)%2 != 0 {
		return nil, false
	}
	abbrev, err := hex.DecodeString(ref)
	if err != nil {
		return nil, false
	}

	var found Object
	for oid, obj := range r.objects[abbrev[0]] {
		if strings.HasPrefix(oid.String(), ref) {
			if found != nil {
				return nil, false
			}
			found = obj
		}
	}
	return found, found != nil
}

// GetObjectOid is like GetObject for an already-parsed identifier
func (r *Repository) GetObjectOid(oid githash.Oid) (Object, error) {
	if obj, ok := r.cached(oid); ok {
		return obj, nil
	}
	return r.GetObject(oid.String())
}

// GetCommit is like GetObject, but fails with ErrUnexpectedKind when
// the object isn't a commit
func (r *Repository) GetCommit(ref string) (*Commit, error) {
	obj, err := r.GetObject(ref)
	if err != nil {
		return nil, err
	}
	commit, ok := obj.(*Commit)
	if !ok {
		return nil, xerrors.Errorf("%s %s is not a commit: %w", obj.Kind(), ref, ErrUnexpectedKind)
	}
	return commit, nil
}

// GetCommitOid is like GetCommit for an already-parsed identifier
func (r *Repository) GetCommitOid(oid githash.Oid) (*Commit, error) {
	return r.GetCommit(oid.String())
}

// GetTree is like GetObject, but fails with ErrUnexpectedKind when
// the object isn't a tree
func (r *Repository) GetTree(ref string) (*Tree, error) {
	obj, err := r.GetObject(ref)
	if err != nil {
		return nil, err
	}
	tree, ok := obj.(*Tree)
	if !ok {
		return nil, xerrors.Errorf("%s %s is not a tree: %w", obj.Kind(), ref, ErrUnexpectedKind)
	}
	return tree, nil
}

// GetTreeOid is like GetTree for an already-parsed identifier
func (r *Repository) GetTreeOid(oid githash.Oid) (*Tree, error) {
	return r.GetTree(oid.String())
}

// GetBlob is like GetObject, but fails with ErrUnexpectedKind when
// the object isn't a blob
func (r *Repository) GetBlob(ref string) (*Blob, error) {
	obj, err := r.GetObject(ref)
	if err != nil {
		return nil, err
	}
	blob, ok := obj.(*Blob)
	if !ok {
		return nil, xerrors.Errorf("%s %s is not a blob: %w", obj.Kind(), ref, ErrUnexpectedKind)
	}
	return blob, nil
}

// GetBlobOid is like GetBlob for an already-parsed identifier
func (r *Repository) GetBlobOid(oid githash.Oid) (*Blob, error) {
	return r.GetBlob(oid.String())
}
