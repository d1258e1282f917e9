package squeeze

import (
	"context"

	"github.com/viant/sqlite-squeeze/row"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ApplyStats tallies the changes applied to the target.
type ApplyStats struct {
	Inserts int64
	Updates int64
	Deletes int64
}

func (s *ApplyStats) add(o ApplyStats) {
	s.Inserts += o.Inserts
	s.Updates += o.Updates
	s.Deletes += o.Deletes
}

// applyBatch replays the queued changes in order and empties the store.
//
// An UPDATE_OLD record only becomes the pending old image; the following
// UPDATE_NEW locates its row by that image, or by its own key when no old
// image was logged. After every other record the command counter advances so
// the next lookup sees the change.
func (r *Replayer) applyBatch(ctx context.Context) (err error) {
	if r.batch.count == 0 {
		return nil
	}
	_, span := r.tracer.Start(ctx, "Replayer.applyBatch", trace.WithAttributes(
		attribute.String("relation", r.relation),
		attribute.Int64("changes", r.batch.count),
		attribute.Int64("bytes", r.batch.size)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	var (
		stats      ApplyStats
		pendingOld row.Row
		target     = r.state.target
	)
	snap := r.cc.Snapshot()
	err = r.store.Drain(func(rec []byte) error {
		kind, image, err := parseRecord(rec)
		if err != nil {
			return err
		}
		tup, err := row.Decode(image)
		if err != nil {
			return ConsistencyError.Wrap(err)
		}

		switch kind {
		case KindUpdateOld:
			if pendingOld != nil {
				return ConsistencyError.New("duplicate old image of an updated row")
			}
			// the record buffer is reused by the store
			pendingOld, err = tup.Flatten()
			return ConsistencyError.Wrap(err)

		case KindInsert:
			if pendingOld != nil {
				return ConsistencyError.New("old image not followed by the new image")
			}
			cid := r.cc.Current(true)
			tid, err := target.Heap.Insert(tup, cid)
			if err != nil {
				return Error.Wrap(err)
			}
			if err := r.state.insertIndexTuples(tup, tid, cid); err != nil {
				return err
			}
			stats.Inserts++

		case KindUpdateNew:
			keyRow := tup
			if pendingOld != nil {
				keyRow = pendingOld
			}
			tid, err := r.state.locate(keyRow, snap)
			if err != nil {
				return err
			}
			cid := r.cc.Current(true)
			newTID, hot, err := target.Heap.Update(tid, tup, cid)
			if err != nil {
				return ConsistencyError.Wrap(err)
			}
			if !hot {
				if err := r.state.insertIndexTuples(tup, newTID, cid); err != nil {
					return err
				}
			}
			pendingOld = nil
			stats.Updates++

		case KindDelete:
			if pendingOld != nil {
				return ConsistencyError.New("old image not followed by the new image")
			}
			tid, err := r.state.locate(tup, snap)
			if err != nil {
				return err
			}
			if err := target.Heap.Delete(tid, r.cc.Current(true)); err != nil {
				return ConsistencyError.Wrap(err)
			}
			stats.Deletes++

		default:
			return ConsistencyError.New("unrecognized change kind %v", kind)
		}

		r.cc.Increment()
		snap = r.cc.Snapshot()
		return nil
	})
	if err != nil {
		return err
	}
	if pendingOld != nil {
		return ConsistencyError.New("batch ended with an unpaired old image")
	}

	r.stats.add(stats)
	changesApplied.WithLabelValues("insert").Add(float64(stats.Inserts))
	changesApplied.WithLabelValues("update").Add(float64(stats.Updates))
	changesApplied.WithLabelValues("delete").Add(float64(stats.Deletes))
	r.log.Debug("concurrent changes applied",
		zap.Int64("inserts", stats.Inserts),
		zap.Int64("updates", stats.Updates),
		zap.Int64("deletes", stats.Deletes))
	return r.resetBatch()
}

func (r *Replayer) resetBatch() error {
	if r.store.Spilled() {
		spilledBatches.Inc()
	}
	pendingBytes.Sub(float64(r.batch.size))
	r.batch = batchState{}
	return ResourceError.Wrap(r.store.Clear())
}
