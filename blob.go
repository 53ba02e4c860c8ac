package revise

import "github.com/mystor/git-revise/ginternals/githash"

// Blob represents a blob object: opaque bytes
type Blob struct {
	meta
}

// Kind returns the variant tag of the object
func (b *Blob) Kind() Kind {
	return KindBlob
}

// Persist writes the blob to the on-disk store
func (b *Blob) Persist() (githash.Oid, error) {
	return b.repo.persistBody(&b.meta, KindBlob)
}

// NewBlob returns the in-memory blob with the given content,
// creating it if needed
func (r *Repository) NewBlob(body []byte) *Blob {
	oid := githash.Sum(KindBlob.String(), body)
	if obj, ok := r.cached(oid); ok {
		return obj.(*Blob)
	}
	b := &Blob{meta: meta{repo: r, body: body, oid: oid}}
	r.cache(b)
	return b
}
