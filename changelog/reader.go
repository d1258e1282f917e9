package changelog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/viant/sqlite-squeeze/row"
)

type logRecord struct {
	lsn      LSN
	relation string
	op       string
	old      []byte
	new      []byte
}

// Reader decodes the change log in LSN order. It is not safe for concurrent use.
type Reader struct {
	db      *sql.DB
	cfg     Config
	arena   *row.Arena
	pending []logRecord
	next    LSN
	end     LSN
}

// NewReader creates a reader positioned at the slot's confirmed LSN.
func NewReader(db *sql.DB, cfg Config) *Reader {
	cfg = cfg.withDefaults()
	return &Reader{db: db, cfg: cfg, arena: row.NewArena(cfg.InlineLimit * 4)}
}

// Seek positions the reader so the next record read is the first one at or
// after lsn.
func (r *Reader) Seek(lsn LSN) {
	r.next = lsn
	r.end = lsn
	r.pending = r.pending[:0]
}

// EndLSN returns the end position of the last record read, or the position
// passed to Seek before any record was read. An unpositioned reader reports
// its slot's confirmed position once it attempted a read.
func (r *Reader) EndLSN() LSN { return r.end }

// ReadRecord decodes the next committed record and passes its change to h.
// It returns false when no record is available yet. Values h receives by
// reference are released when h returns.
func (r *Reader) ReadRecord(ctx context.Context, h Handler) (bool, error) {
	if len(r.pending) == 0 {
		if err := r.fetch(ctx); err != nil {
			return false, err
		}
		if len(r.pending) == 0 {
			return false, nil
		}
	}
	rec := r.pending[0]
	change, err := r.decode(ctx, rec)
	if err != nil {
		return false, err
	}
	r.pending = r.pending[1:]
	err = h(change)
	r.arena.Reset()
	if err != nil {
		return false, err
	}
	r.next = rec.lsn + 1
	r.end = rec.lsn + 1
	return true, nil
}

// CurrentLSN returns the end of the log: the position the next captured
// change will be written at.
func (r *Reader) CurrentLSN(ctx context.Context) (LSN, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE((SELECT seq FROM sqlite_sequence WHERE name = ?), 0)`, r.cfg.LogTable).Scan(&seq)
	if err != nil {
		return InvalidLSN, Error.Wrap(err)
	}
	return LSN(seq + 1), nil
}

// Confirm persists lsn as the slot's confirmed position. The position never
// moves backwards.
func (r *Reader) Confirm(ctx context.Context, lsn LSN) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO `+quoteIdent(r.cfg.SlotTable)+`(name, confirmed_lsn, updated_at)
    VALUES (?, ?, unixepoch())
    ON CONFLICT(name) DO UPDATE SET confirmed_lsn = excluded.confirmed_lsn, updated_at = excluded.updated_at
    WHERE excluded.confirmed_lsn > confirmed_lsn`, r.cfg.Slot, int64(lsn))
	return Error.Wrap(err)
}

// Slot returns the persisted state of the reader's slot.
func (r *Reader) Slot(ctx context.Context) (Slot, error) {
	s := Slot{Name: r.cfg.Slot}
	var lsn, updated int64
	err := r.db.QueryRowContext(ctx, `SELECT confirmed_lsn, updated_at FROM `+quoteIdent(r.cfg.SlotTable)+` WHERE name = ?`, r.cfg.Slot).Scan(&lsn, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, Error.Wrap(err)
	}
	s.ConfirmedLSN = LSN(lsn)
	s.UpdatedAt = time.Unix(updated, 0)
	return s, nil
}

// Truncate deletes records that end at or before lsn and returns how many were
// removed.
func (r *Reader) Truncate(ctx context.Context, lsn LSN) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+quoteIdent(r.cfg.LogTable)+` WHERE lsn < ?`, int64(lsn))
	if err != nil {
		return 0, Error.Wrap(err)
	}
	n, err := res.RowsAffected()
	return n, Error.Wrap(err)
}

func (r *Reader) fetch(ctx context.Context) error {
	if !r.next.Valid() {
		s, err := r.Slot(ctx)
		if err != nil {
			return err
		}
		r.next = s.ConfirmedLSN
		if !r.next.Valid() {
			r.next = 1
		}
		if !r.end.Valid() {
			r.end = r.next
		}
	}
	rows, err := r.db.QueryContext(ctx, `SELECT lsn, relation, op, old_row, new_row FROM `+quoteIdent(r.cfg.LogTable)+`
    WHERE lsn >= ? ORDER BY lsn LIMIT ?`, int64(r.next), r.cfg.Prefetch)
	if err != nil {
		return Error.Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec logRecord
		var lsn int64
		if err := rows.Scan(&lsn, &rec.relation, &rec.op, &rec.old, &rec.new); err != nil {
			return Error.Wrap(err)
		}
		rec.lsn = LSN(lsn)
		r.pending = append(r.pending, rec)
	}
	return Error.Wrap(rows.Err())
}

func (r *Reader) decode(ctx context.Context, rec logRecord) (*Change, error) {
	desc, err := r.cfg.Cache.Get(ctx, r.db, rec.relation)
	if err != nil {
		return nil, Error.New("record %d: %v", rec.lsn, err)
	}
	c := &Change{LSN: rec.lsn, Relation: rec.relation, Action: Action(rec.op)}
	for _, img := range []struct {
		raw []byte
		dst *row.Row
	}{{rec.old, &c.Old}, {rec.new, &c.New}} {
		if img.raw == nil {
			continue
		}
		tup, err := row.Decode(img.raw)
		if err != nil {
			return nil, Error.New("record %d: %v", rec.lsn, err)
		}
		if len(tup) != len(desc.Columns) {
			return nil, Error.New("record %d: row image has %d columns, %s has %d", rec.lsn, len(tup), rec.relation, len(desc.Columns))
		}
		for i, v := range tup {
			payload, _ := v.Payload()
			if len(payload) > r.cfg.InlineLimit {
				tup[i] = r.arena.External(v.Kind(), v.Codec(), payload)
			}
		}
		*img.dst = tup
	}
	return c, nil
}
