package squeeze

import (
	"context"
	"time"

	"github.com/viant/sqlite-squeeze/changelog"
	"go.uber.org/zap"
)

// decodeBatch reads log records into the spill store until the range has
// been read, the batch reaches the memory ceiling or the deadline passes. It
// returns true when the reader has reached the end of the range. The catalog
// cache is invalidated before and after, also when decoding fails, and the
// position reached is confirmed once its changes are queued.
func (r *Replayer) decodeBatch(ctx context.Context, rng *Range, deadline time.Time) (bool, error) {
	r.inval.Invalidate()
	defer r.inval.Invalidate()

	before := r.batch.count
	for r.moreToRead(rng) && r.batch.size < int64(r.cfg.MemoryCeiling) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if rng.Start.Valid() {
			r.reader.Seek(rng.Start)
			rng.Start = changelog.InvalidLSN
		}
		ok, err := r.reader.ReadRecord(ctx, r.handleChange)
		if err != nil {
			if DecodeError.Has(err) || ResourceError.Has(err) {
				return false, err
			}
			return false, DecodeError.Wrap(err)
		}
		if !ok {
			if err := r.wait(ctx, deadline); err != nil {
				return false, err
			}
		}
		if r.elapsed(deadline) {
			break
		}
	}

	end := r.reader.EndLSN()
	if end.Valid() {
		if err := r.reader.Confirm(ctx, end); err != nil {
			return false, Error.Wrap(err)
		}
	}
	r.log.Debug("decoded concurrent changes",
		zap.Int64("changes", r.batch.count-before),
		zap.Uint64("end_lsn", uint64(end)))
	return caughtUp(rng, end), nil
}

// moreToRead reports whether records before rng.End remain. A reader that
// has neither been positioned nor read anything resumes from its persisted
// position, which is only known after the first read.
func (r *Replayer) moreToRead(rng *Range) bool {
	if rng.Start.Valid() {
		return rng.Start < rng.End
	}
	end := r.reader.EndLSN()
	return !end.Valid() || end < rng.End
}

func caughtUp(rng *Range, end changelog.LSN) bool {
	if rng.Start.Valid() {
		return rng.Start >= rng.End
	}
	return end.Valid() && end >= rng.End
}

// handleChange queues the changes of one decoded record that belong to the
// replayed relation.
func (r *Replayer) handleChange(c *changelog.Change) error {
	if c.Relation != r.relation {
		return nil
	}
	switch c.Action {
	case changelog.ActionInsert:
		if c.New == nil {
			return DecodeError.New("incomplete insert info at %d", c.LSN)
		}
		return r.recordChange(KindInsert, c.New)
	case changelog.ActionUpdate:
		if c.New == nil {
			return DecodeError.New("incomplete update info at %d", c.LSN)
		}
		if c.Old != nil {
			if err := r.recordChange(KindUpdateOld, c.Old); err != nil {
				return err
			}
		}
		return r.recordChange(KindUpdateNew, c.New)
	case changelog.ActionDelete:
		if c.Old == nil {
			return DecodeError.New("incomplete delete info at %d", c.LSN)
		}
		return r.recordChange(KindDelete, c.Old)
	}
	return DecodeError.New("unrecognized action %q at %d", c.Action, c.LSN)
}

func (r *Replayer) wait(ctx context.Context, deadline time.Time) error {
	d := r.cfg.PollInterval
	if !deadline.IsZero() {
		if left := deadline.Sub(r.now()); left < d {
			d = left
		}
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Replayer) elapsed(deadline time.Time) bool {
	return !deadline.IsZero() && !r.now().Before(deadline)
}
