package squeeze

import (
	"encoding/binary"
	"fmt"

	"github.com/viant/sqlite-squeeze/row"
)

// Kind classifies a queued change.
type Kind uint8

const (
	KindInsert Kind = iota + 1
	KindUpdateOld
	KindUpdateNew
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdateOld:
		return "update_old"
	case KindUpdateNew:
		return "update_new"
	case KindDelete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// recordHeaderSize covers total length, kind and row length.
const recordHeaderSize = 4 + 1 + 4

// appendRecord appends the encoded record of one change to dst:
//
//	[total length uint32][kind byte][row length uint32][row image]
//
// Lengths are little endian and the total includes the header. The row
// image is flattened, so the record does not depend on decoder memory.
func appendRecord(dst []byte, kind Kind, tup row.Row) ([]byte, error) {
	start := len(dst)
	dst = append(dst, make([]byte, recordHeaderSize)...)
	dst, err := row.Encode(dst, tup)
	if err != nil {
		return nil, err
	}
	total := len(dst) - start
	binary.LittleEndian.PutUint32(dst[start:], uint32(total))
	dst[start+4] = byte(kind)
	binary.LittleEndian.PutUint32(dst[start+5:], uint32(total-recordHeaderSize))
	return dst, nil
}

// parseRecord splits a record into its kind and row image. The kind is not
// validated.
func parseRecord(rec []byte) (Kind, []byte, error) {
	if len(rec) < recordHeaderSize {
		return 0, nil, ConsistencyError.New("record of %d bytes is shorter than its header", len(rec))
	}
	total := binary.LittleEndian.Uint32(rec)
	if int(total) != len(rec) {
		return 0, nil, ConsistencyError.New("record length %d does not match stored length %d", total, len(rec))
	}
	n := binary.LittleEndian.Uint32(rec[5:])
	if int(n) != len(rec)-recordHeaderSize {
		return 0, nil, ConsistencyError.New("row length %d does not match record length %d", n, len(rec))
	}
	return Kind(rec[4]), rec[recordHeaderSize:], nil
}

// recordChange queues one change: the row is flattened into a record that
// is appended to the spill store, and the batch tallies grow by one record
// and its encoded size.
func (r *Replayer) recordChange(kind Kind, tup row.Row) error {
	rec, err := appendRecord(r.scratch[:0], kind, tup)
	if err != nil {
		return DecodeError.New("encode %v change: %v", kind, err)
	}
	r.scratch = rec
	if err := r.store.Append(rec); err != nil {
		return ResourceError.Wrap(err)
	}
	r.batch.count++
	r.batch.size += int64(len(rec))
	changesDecoded.WithLabelValues(kind.String()).Inc()
	pendingBytes.Add(float64(len(rec)))
	return nil
}
