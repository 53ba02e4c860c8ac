// Package githash contains the object identifier used to name git
// objects in the object database
package githash

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
)

// ErrInvalidOid is returned when a given value isn't a valid Oid
var ErrInvalidOid = errors.New("invalid Oid")

// OidSize is the length of an oid, in bytes
const OidSize = 20

// NullOid represents an empty Oid (20 zero bytes)
var NullOid = Oid{}

// Oid represents a git Object ID: a 20-byte SHA-1 over the object's
// type tag and body
type Oid [OidSize]byte

// Sum computes the Oid of an object from its type tag and body.
// The hashed bytes are "<tag> <size>\0<body>"
func Sum(tag string, body []byte) Oid {
	h := sha1.New()
	h.Write([]byte(tag))
	h.Write([]byte{' '})
	h.Write([]byte(strconv.Itoa(len(body))))
	h.Write([]byte{0})
	h.Write(body)

	var oid Oid
	copy(oid[:], h.Sum(nil))
	return oid
}

// NewOidFromStr returns an Oid from a hexadecimal string
// For the SHA 9b91da06e69613397b38e0808e0ba5ee6983251b
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromStr(id string) (Oid, error) {
	bytes, err := hex.DecodeString(id)
	if err != nil {
		return NullOid, ErrInvalidOid
	}
	return NewOidFromBytes(bytes)
}

// NewOidFromChars returns an Oid from hexadecimal char bytes
// For the SHA {'9', 'b', '9', '1', 'd', 'a', ...}
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromChars(id []byte) (Oid, error) {
	return NewOidFromStr(string(id))
}

// NewOidFromBytes returns an Oid from the provided byte-encoded oid.
// This basically casts a slice containing an encoded oid into an
// Oid object
func NewOidFromBytes(id []byte) (Oid, error) {
	if len(id) != OidSize {
		return NullOid, ErrInvalidOid
	}
	var oid Oid
	copy(oid[:], id)
	return oid, nil
}

// Bytes returns the raw Oid as []byte.
// This is different than doing []byte(oid.String())
// For the oid 642480605b8b0fd464ab5762e044269cf29a60a3:
// oid.Bytes(): []byte{ 0x64, 0x24, 0x80, ... }
// []byte(oid.String()): []byte{ '6', '4', '2', '4', '8', '0', ... }
func (o Oid) Bytes() []byte {
	return o[:]
}

// String converts an oid to its hexadecimal representation
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// Short returns the first 12 hexadecimal characters of the oid
func (o Oid) Short() string {
	return o.String()[:12]
}

// IsZero returns whether the oid has the zero value (NullOid)
func (o Oid) IsZero() bool {
	return o == NullOid
}
