package spill

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the error class for spill store failures.
var Error = errs.Class("spill")

// Options configures a Store.
type Options struct {
	// MemoryLimit is the number of record bytes kept in memory before the
	// store starts writing to disk.
	MemoryLimit int64
	// Dir is the parent directory of the on-disk data; os.TempDir() when empty.
	Dir string
	// FS overrides the filesystem used for on-disk data.
	FS vfs.FS
}

// Store is a FIFO record store. It is not safe for concurrent use.
type Store struct {
	log  *zap.Logger
	opts Options

	mem      [][]byte
	memBytes int64

	db   *pebble.DB
	path string
	next uint64

	count int
	size  int64
}

// New creates an empty store.
func New(log *zap.Logger, opts Options) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.FS == nil {
		opts.FS = vfs.Default
	}
	return &Store{log: log, opts: opts}
}

// Len returns the number of records held.
func (s *Store) Len() int { return s.count }

// Size returns the number of record bytes held.
func (s *Store) Size() int64 { return s.size }

// Spilled reports whether records are being written to disk.
func (s *Store) Spilled() bool { return s.db != nil }

// Append copies rec to the end of the store. Once the memory budget has been
// exceeded every following record goes to disk until Clear.
func (s *Store) Append(rec []byte) error {
	if s.db == nil && s.memBytes+int64(len(rec)) <= s.opts.MemoryLimit {
		s.mem = append(s.mem, append([]byte(nil), rec...))
		s.memBytes += int64(len(rec))
	} else {
		if s.db == nil {
			if err := s.open(); err != nil {
				return err
			}
		}
		key := binary.BigEndian.AppendUint64(nil, s.next)
		if err := s.db.Set(key, rec, pebble.NoSync); err != nil {
			return Error.Wrap(err)
		}
		s.next++
	}
	s.count++
	s.size += int64(len(rec))
	return nil
}

// Drain calls fn for every record in insertion order. The slice passed to fn
// is only valid until fn returns. Drain does not remove records.
func (s *Store) Drain(fn func(rec []byte) error) error {
	for _, rec := range s.mem {
		if err := fn(rec); err != nil {
			return err
		}
	}
	if s.db == nil {
		return nil
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return Error.Wrap(err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return Error.Wrap(errs.Combine(iter.Error(), iter.Close()))
}

// Clear removes every record and releases the on-disk data.
func (s *Store) Clear() error {
	s.mem = nil
	s.memBytes = 0
	s.count = 0
	s.size = 0
	if s.db == nil {
		return nil
	}
	err := errs.Combine(s.db.Close(), s.opts.FS.RemoveAll(s.path))
	s.db = nil
	s.path = ""
	s.next = 0
	return Error.Wrap(err)
}

// Close releases the store.
func (s *Store) Close() error {
	return s.Clear()
}

func (s *Store) open() error {
	path := filepath.Join(s.opts.Dir, "squeeze-spill-"+uuid.NewString())
	db, err := pebble.Open(path, &pebble.Options{
		// scratch data, never recovered
		DisableWAL: true,
		FS:         s.opts.FS,
		Logger:     s.log.Sugar(),
	})
	if err != nil {
		return Error.New("open %s: %v", path, err)
	}
	s.db = db
	s.path = path
	s.log.Info("spilling changes to disk",
		zap.String("path", path),
		zap.Int("records", s.count),
		zap.Int64("bytes", s.size))
	return nil
}
