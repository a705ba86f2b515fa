package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittorepo/pkg/store/metadata"
)

// Database Key Namespace Design
// ==============================
//
// Data Type          Prefix   Key Format                               Value
// ===========================================================================
// File Record        "f:"     f:<id uint64 BE>                          FileRecord (JSON)
// Path Index         "p:"     p:<repository>\x00<dir>\x00<name>         id (uint64 BE)
// Repository Index   "r:"     r:<repository>\x00<id uint64 BE>          empty
// ID Sequence        "seq:"   seq:file                                  badger.Sequence
//
// IDs are encoded big-endian so that prefix scans over "r:<repository>\x00"
// return records in ID order.

const (
	prefixFile       = "f:"
	prefixPath       = "p:"
	prefixRepository = "r:"

	keySequence = "seq:file"
)

func keyFile(id int64) []byte {
	return appendID([]byte(prefixFile), id)
}

func keyPath(repository, dir, name string) []byte {
	return []byte(prefixPath + repository + "\x00" + metadata.NormalizeRecordDir(dir) + "\x00" + name)
}

func keyRepositoryPrefix(repository string) []byte {
	return []byte(prefixRepository + repository + "\x00")
}

func keyRepository(repository string, id int64) []byte {
	return appendID(keyRepositoryPrefix(repository), id)
}

func appendID(prefix []byte, id int64) []byte {
	return binary.BigEndian.AppendUint64(prefix, uint64(id))
}

func encodeID(id int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

func decodeID(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid id encoding: %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// idFromRepositoryKey extracts the trailing id of an "r:" key.
func idFromRepositoryKey(key []byte) (int64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("invalid repository index key")
	}
	return decodeID(key[len(key)-8:])
}
