// Package dupkey encodes (key, value) pairs of a duplicate-capable database
// into a single order-preserving composite key. Entries sort by key first,
// then by value, and the encoding of the key alone is a byte prefix of every
// composite carrying that key, which lets backends range-scan duplicates.
package dupkey

import (
	"errors"

	"github.com/google/orderedcode"
)

var errTrailingBytes = errors.New("dupkey: trailing bytes after composite")

// Append encodes key and val into a composite and appends it to buf.
func Append(buf, key, val []byte) ([]byte, error) {
	return orderedcode.Append(buf, string(key), string(val))
}

// Prefix appends the encoding of key alone; every composite for key starts
// with these bytes.
func Prefix(buf, key []byte) ([]byte, error) {
	return orderedcode.Append(buf, string(key))
}

// Split decodes a composite back into its key and value parts.
func Split(composite []byte) (key, val []byte, err error) {
	var k, v string
	rest, err := orderedcode.Parse(string(composite), &k, &v)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, errTrailingBytes
	}
	return []byte(k), []byte(v), nil
}
