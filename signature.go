package revise

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/xerrors"
)

// ErrSignatureInvalid is an error thrown when an author or committer
// signature couldn't be parsed
var ErrSignatureInvalid = errors.New("signature is invalid")

// sigRe matches the wire form of a signature:
// NAME<EMAIL> TIMESTAMP[ OFFSET]
var sigRe = regexp.MustCompile(`^(?P<name>[^<>]+)<(?P<email>[^<>]+)> (?P<timestamp>[0-9]+)(?: (?P<offset>[+-][0-9]+))?$`)

// Signature represents the author or committer of a commit.
//
// The raw bytes are kept verbatim so that re-serializing a parsed
// signature is byte-identical to its input
type Signature struct {
	raw []byte

	name      string
	email     string
	timestamp string
	offset    string
}

// NewSignature parses the wire form of a signature
func NewSignature(raw []byte) (Signature, error) {
	m := sigRe.FindSubmatch(raw)
	if m == nil {
		return Signature{}, xerrors.Errorf("could not parse signature [%s]: %w", raw, ErrSignatureInvalid)
	}
	return Signature{
		raw:       raw,
		name:      strings.TrimSpace(string(m[1])),
		email:     strings.TrimSpace(string(m[2])),
		timestamp: string(m[3]),
		offset:    string(m[4]),
	}, nil
}

// Raw returns the signature exactly as it appeared on the wire
func (s Signature) Raw() []byte {
	return s.raw
}

// String returns the wire form of the signature
func (s Signature) String() string {
	return string(s.raw)
}

// IsZero returns whether the signature has the zero value
func (s Signature) IsZero() bool {
	return s.raw == nil
}

// Equal returns whether two signatures have the same wire form
func (s Signature) Equal(other Signature) bool {
	return string(s.raw) == string(other.raw)
}

// Name returns the user name
func (s Signature) Name() string {
	return s.name
}

// Email returns the user email
func (s Signature) Email() string {
	return s.email
}

// Timestamp returns the unix timestamp, in decimal seconds
func (s Signature) Timestamp() string {
	return s.timestamp
}

// Offset returns the timezone offset from UTC, e.g. "-0500".
// It is empty when the signature carries no timezone
func (s Signature) Offset() string {
	return s.offset
}

// SigningKey returns the default key identifier for this signature,
// in the "Name <email>" form gpg expects
func (s Signature) SigningKey() string {
	return fmt.Sprintf("%s <%s>", s.name, s.email)
}
