package revise

import (
	"bytes"
	"errors"
	"strings"

	"github.com/mystor/git-revise/ginternals/githash"
	"github.com/mystor/git-revise/internal/readutil"
	"golang.org/x/xerrors"
)

// ErrCommitInvalid represents an error thrown when parsing an invalid
// commit object
var ErrCommitInvalid = errors.New("invalid commit")

// Commit represents a commit object.
//
// The parsed fields are projections of the raw body; the body itself
// is the identity of the object, so headers this package doesn't know
// about survive verbatim
type Commit struct {
	meta

	treeOid    githash.Oid
	parentOids []githash.Oid
	author     Signature
	committer  Signature
	// gpgSig holds the signature header value with continuation
	// lines re-joined; nil when the commit is unsigned
	gpgSig  []byte
	message []byte
}

// newCommitFromBody returns the in-memory commit with the given body,
// creating (and parsing) it if needed
//
// A commit has the following format:
//
// tree {sha}
// parent {sha}
// author {author_name} <{author_email}> {author_date_seconds} {author_date_timezone}
// committer {committer_name} <{committer_email}> {committer_date_seconds} {committer_date_timezone}
// gpgsig -----BEGIN PGP SIGNATURE-----
//  {signature payload over multiple continuation lines}
//  -----END PGP SIGNATURE-----
// {a blank line}
// {commit message}
//
// Note:
// - A commit can have 0, 1, or many parent lines
// - The gpgsig is optional, and sits between committer and the blank
//   line when present
// - Header continuation lines begin with a single space
func (r *Repository) newCommitFromBody(body []byte) (*Commit, error) {
	oid := githash.Sum(KindCommit.String(), body)
	if obj, ok := r.cached(oid); ok {
		return obj.(*Commit), nil
	}

	c := &Commit{meta: meta{repo: r, body: body, oid: oid}}

	sep := bytes.Index(body, []byte("\n\n"))
	if sep < 0 {
		return nil, xerrors.Errorf("commit %s has no header separator: %w", oid, ErrCommitInvalid)
	}
	c.message = body[sep+2:]

	var err error
	for _, hdr := range splitHeaders(body[:sep]) {
		kv := bytes.SplitN(hdr, []byte{' '}, 2)
		if len(kv) != 2 {
			return nil, xerrors.Errorf("commit %s has malformed header %q: %w", oid, hdr, ErrCommitInvalid)
		}
		value := bytes.ReplaceAll(kv[1], []byte("\n "), []byte("\n"))

		switch string(kv[0]) {
		case "tree":
			c.treeOid, err = githash.NewOidFromChars(value)
			if err != nil {
				return nil, xerrors.Errorf("could not parse tree id %q: %w", value, ErrCommitInvalid)
			}
		case "parent":
			oid, err := githash.NewOidFromChars(value)
			if err != nil {
				return nil, xerrors.Errorf("could not parse parent id %q: %w", value, ErrCommitInvalid)
			}
			c.parentOids = append(c.parentOids, oid)
		case "author":
			c.author, err = NewSignature(value)
			if err != nil {
				return nil, xerrors.Errorf("could not parse author: %w", err)
			}
		case "committer":
			c.committer, err = NewSignature(value)
			if err != nil {
				return nil, xerrors.Errorf("could not parse committer: %w", err)
			}
		case "gpgsig":
			c.gpgSig = value
		}
	}

	if c.author.IsZero() {
		return nil, xerrors.Errorf("commit %s has no author: %w", oid, ErrCommitInvalid)
	}
	if c.committer.IsZero() {
		return nil, xerrors.Errorf("commit %s has no committer: %w", oid, ErrCommitInvalid)
	}
	if c.treeOid.IsZero() {
		return nil, xerrors.Errorf("commit %s has no tree: %w", oid, ErrCommitInvalid)
	}

	r.cache(c)
	return c, nil
}

// splitHeaders splits a commit header block into one []byte per
// header, keeping continuation lines (lines starting with a single
// space) attached to the header they continue
func splitHeaders(block []byte) [][]byte {
	var headers [][]byte
	rest := block
	for len(rest) > 0 {
		line, next := readutil.ReadLine(rest)
		if len(line) > 0 && line[0] == ' ' && len(headers) > 0 {
			last := headers[len(headers)-1]
			headers[len(headers)-1] = append(append(last, '\n'), line...)
		} else {
			// copy so continuation appends can't clobber the body
			headers = append(headers, append([]byte(nil), line...))
		}
		rest = next
	}
	return headers
}

// NewCommit directly creates an in-memory commit object, without
// persisting it. If a commit object with these properties already
// exists, it is returned instead.
//
// A nil author or committer falls back to the repository defaults.
// When commit signing is enabled for the repository, the body is
// signed before the commit is created
func (r *Repository) NewCommit(tree *Tree, parents []*Commit, message []byte, author, committer *Signature) (*Commit, error) {
	if author == nil {
		a := r.defaultAuthor
		author = &a
	}
	if committer == nil {
		c := r.defaultCommitter
		committer = &c
	}

	buf := new(bytes.Buffer)
	buf.WriteString("tree ")
	buf.WriteString(tree.Oid().String())
	buf.WriteByte('\n')
	for _, p := range parents {
		buf.WriteString("parent ")
		buf.WriteString(p.Oid().String())
		buf.WriteByte('\n')
	}
	buf.WriteString("author ")
	buf.Write(author.Raw())
	buf.WriteByte('\n')
	buf.WriteString("committer ")
	buf.Write(committer.Raw())
	buf.WriteByte('\n')

	if r.signCommits {
		unsigned := append([]byte(nil), buf.Bytes()...)
		unsigned = append(unsigned, '\n')
		unsigned = append(unsigned, message...)
		sig, err := r.signBuffer(unsigned)
		if err != nil {
			return nil, err
		}
		buf.WriteString("gpgsig ")
		buf.Write(bytes.ReplaceAll(sig, []byte("\n"), []byte("\n ")))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.Write(message)
	return r.newCommitFromBody(buf.Bytes())
}

// Kind returns the variant tag of the object
func (c *Commit) Kind() Kind {
	return KindCommit
}

// Persist writes the commit, its tree, and its parents to the
// on-disk store
func (c *Commit) Persist() (githash.Oid, error) {
	if c.persisted {
		return c.oid, nil
	}
	tree, err := c.Tree()
	if err != nil {
		return githash.NullOid, err
	}
	if _, err = tree.Persist(); err != nil {
		return githash.NullOid, err
	}
	parents, err := c.Parents()
	if err != nil {
		return githash.NullOid, err
	}
	for _, p := range parents {
		if _, err = p.Persist(); err != nil {
			return githash.NullOid, err
		}
	}
	return c.repo.persistBody(&c.meta, KindCommit)
}

// TreeOid returns the identifier of this commit's tree
func (c *Commit) TreeOid() githash.Oid {
	return c.treeOid
}

// ParentOids returns the identifiers of this commit's parents
func (c *Commit) ParentOids() []githash.Oid {
	out := make([]githash.Oid, len(c.parentOids))
	copy(out, c.parentOids)
	return out
}

// Author returns the Signature of the person that made the changes
func (c *Commit) Author() Signature {
	return c.author
}

// Committer returns the Signature of the person that created the
// commit
func (c *Commit) Committer() Signature {
	return c.committer
}

// GpgSig returns the signature header value, or nil for unsigned
// commits
func (c *Commit) GpgSig() []byte {
	return c.gpgSig
}

// Message returns the commit message
func (c *Commit) Message() []byte {
	return c.message
}

// Summary returns the first line of the commit message
func (c *Commit) Summary() string {
	summary, _ := readutil.ReadLine(c.message)
	return strings.ToValidUTF8(string(summary), "�")
}

// Tree returns the tree object of this commit
func (c *Commit) Tree() (*Tree, error) {
	return c.repo.GetTreeOid(c.treeOid)
}

// Parents returns the parent commits
func (c *Commit) Parents() ([]*Commit, error) {
	parents := make([]*Commit, 0, len(c.parentOids))
	for _, oid := range c.parentOids {
		p, err := c.repo.GetCommitOid(oid)
		if err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}
	return parents, nil
}

// Parent returns the single parent of this commit, or an error when
// the commit doesn't have exactly one parent
func (c *Commit) Parent() (*Commit, error) {
	if len(c.parentOids) != 1 {
		return nil, xerrors.Errorf("commit %s has %d parents", c.oid, len(c.parentOids))
	}
	return c.repo.GetCommitOid(c.parentOids[0])
}

// IsRoot returns whether this commit has no parents
func (c *Commit) IsRoot() bool {
	return len(c.parentOids) == 0
}

// CommitUpdate describes the properties Update replaces on a commit.
// Nil fields keep the current value
type CommitUpdate struct {
	Tree    *Tree
	Parents []*Commit
	Message []byte
	Author  *Signature
}

// Update creates a new commit with specific properties updated or
// replaced. When nothing would change, the commit is returned as-is
// so that a committer-only difference doesn't create a new object
func (c *Commit) Update(up CommitUpdate) (*Commit, error) {
	tree := up.Tree
	if tree == nil {
		var err error
		if tree, err = c.Tree(); err != nil {
			return nil, err
		}
	}
	parents := up.Parents
	if parents == nil {
		var err error
		if parents, err = c.Parents(); err != nil {
			return nil, err
		}
	}
	message := up.Message
	if message == nil {
		message = c.message
	}
	author := up.Author
	if author == nil {
		a := c.author
		author = &a
	}

	unchanged := tree.Oid() == c.treeOid &&
		sameParents(parents, c.parentOids) &&
		bytes.Equal(message, c.message) &&
		author.Equal(c.author)
	if unchanged {
		return c, nil
	}
	return c.repo.NewCommit(tree, parents, message, author, nil)
}

func sameParents(parents []*Commit, oids []githash.Oid) bool {
	if len(parents) != len(oids) {
		return false
	}
	for i, p := range parents {
		if p.Oid() != oids[i] {
			return false
		}
	}
	return true
}
