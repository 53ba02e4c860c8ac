// Package readutil contains methods to simplify parsing byte streams
package readutil

// ReadTo reads from b until to is seen and returns the bytes between the
// start and to, exclusive of to. Returns nil if it's not found
func ReadTo(b []byte, to byte) []byte {
	for i := 0; i < len(b); i++ {
		if b[i] == to {
			return b[0:i]
		}
	}
	return nil
}

// ReadLine returns the first line of b without its trailing newline,
// and the rest of b after the newline. If b contains no newline the
// whole input is returned as the line with an empty rest
func ReadLine(b []byte) (line, rest []byte) {
	for i := 0; i < len(b); i++ {
		if b[i] == '\n' {
			return b[:i], b[i+1:]
		}
	}
	return b, nil
}
