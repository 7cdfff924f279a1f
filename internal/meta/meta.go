// Package meta defines the records the engine keeps in its bookkeeping
// database (identifier 0): the environment descriptor and the catalog of
// named databases. Both backends share this layout, so a freelist handle
// reads the same bytes regardless of the engine underneath.
package meta

import (
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is bumped on any incompatible change to the meta layout.
const FormatVersion = 1

const (
	envInfoKey   = "env"
	nextDBIKey   = "cat\x00next"
	namePrefix   = "cat\x00n\x00"
	dbiPrefix    = "cat\x00d\x00"
	FirstUserDBI = 2
)

// EnvInfo is stored once per environment, written on first open.
type EnvInfo struct {
	UUID    string `msgpack:"uuid"`
	Version int    `msgpack:"version"`
}

// DBRecord describes one database in the catalog.
type DBRecord struct {
	Name  string `msgpack:"name"`
	DBI   uint32 `msgpack:"dbi"`
	Flags uint32 `msgpack:"flags"`
}

func EnvInfoKey() []byte { return []byte(envInfoKey) }

func NextDBIKey() []byte { return []byte(nextDBIKey) }

// NameKey is the catalog key indexing a database record by name.
func NameKey(name string) []byte {
	return append([]byte(namePrefix), name...)
}

// DBIKey is the catalog key indexing a database record by identifier.
func DBIKey(dbi uint32) []byte {
	b := make([]byte, len(dbiPrefix)+4)
	copy(b, dbiPrefix)
	binary.BigEndian.PutUint32(b[len(dbiPrefix):], dbi)
	return b
}

func EncodeEnvInfo(info *EnvInfo) ([]byte, error) {
	return msgpack.Marshal(info)
}

func DecodeEnvInfo(data []byte) (*EnvInfo, error) {
	info := &EnvInfo{}
	if err := msgpack.Unmarshal(data, info); err != nil {
		return nil, err
	}
	return info, nil
}

func EncodeDBRecord(rec *DBRecord) ([]byte, error) {
	return msgpack.Marshal(rec)
}

func DecodeDBRecord(data []byte) (*DBRecord, error) {
	rec := &DBRecord{}
	if err := msgpack.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func EncodeDBI(dbi uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, dbi)
	return b
}

func DecodeDBI(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
