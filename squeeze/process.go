package squeeze

import (
	"context"
	"time"

	"github.com/viant/sqlite-squeeze/catalog"
	"github.com/viant/sqlite-squeeze/changelog"
	"github.com/viant/sqlite-squeeze/heap"
	"github.com/viant/sqlite-squeeze/spill"
	"github.com/viant/sqlite-squeeze/table"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LogReader decodes the change log. changelog.Reader implements it.
type LogReader interface {
	Seek(lsn changelog.LSN)
	ReadRecord(ctx context.Context, h changelog.Handler) (bool, error)
	EndLSN() changelog.LSN
	Confirm(ctx context.Context, lsn changelog.LSN) error
}

// CatalogChecker fails when the source schema changed in a way the rebuild
// cannot follow. catalog.Checker implements it.
type CatalogChecker interface {
	Check(ctx context.Context, held catalog.LockMode) error
}

// Invalidator drops cached catalog metadata. catalog.Cache implements it.
type Invalidator interface {
	Invalidate() int
}

// Range is the part of the log to replay. Start is consumed by the first
// read and reset to changelog.InvalidLSN, so passing the same Range again
// continues where the reader stopped.
type Range struct {
	Start changelog.LSN
	End   changelog.LSN
}

// Options binds a Replayer to one rebuild.
type Options struct {
	// Relation is the source table whose changes are replayed.
	Relation string
	Reader   LogReader
	// Target is the rebuilt table; Identity names its identity index.
	Target   *table.Table
	Identity IdentityKey
	// Counter is the command counter of the transaction writing Target.
	Counter *heap.CommandCounter
	// Invalidator defaults to catalog.Shared.
	Invalidator Invalidator
}

type batchState struct {
	count int64
	size  int64
}

// Replayer applies concurrent changes of one relation to its rebuilt copy.
// It is not safe for concurrent use.
type Replayer struct {
	log      *zap.Logger
	cfg      Config
	relation string
	reader   LogReader
	inval    Invalidator
	store    *spill.Store
	state    *IndexInsertState
	cc       *heap.CommandCounter
	tracer   trace.Tracer
	now      func() time.Time

	batch   batchState
	scratch []byte
	stats   ApplyStats
}

// New creates a Replayer.
func New(log *zap.Logger, cfg Config, opts Options) (*Replayer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Reader == nil || opts.Target == nil || opts.Counter == nil {
		return nil, Error.New("reader, target and command counter are required")
	}
	state, err := NewIndexInsertState(opts.Target, opts.Identity)
	if err != nil {
		return nil, err
	}
	inval := opts.Invalidator
	if inval == nil {
		inval = catalog.Shared
	}
	log = log.With(zap.String("relation", opts.Relation))
	return &Replayer{
		log:      log,
		cfg:      cfg,
		relation: opts.Relation,
		reader:   opts.Reader,
		inval:    inval,
		store:    spill.New(log, spill.Options{MemoryLimit: int64(cfg.SpillMemoryLimit), Dir: cfg.SpillDir}),
		state:    state,
		cc:       opts.Counter,
		tracer:   otel.Tracer("github.com/viant/sqlite-squeeze/squeeze"),
		now:      time.Now,
	}, nil
}

// Process decodes and applies the changes in rng batch by batch. Before each
// batch is applied check is consulted with the caller's lock mode; a nil
// check skips the consultation. A zero deadline means no deadline.
//
// Process returns true when every change up to rng.End has been applied. It
// returns false without an error when the deadline passed; the batch decoded
// last is then left un-applied for the caller (see ApplyPending).
func (r *Replayer) Process(ctx context.Context, rng *Range, check CatalogChecker, held catalog.LockMode, deadline time.Time) (_ bool, err error) {
	ctx, span := r.tracer.Start(ctx, "Replayer.Process", trace.WithAttributes(
		attribute.String("relation", r.relation),
		attribute.Int64("range.start", int64(rng.Start)),
		attribute.Int64("range.end", int64(rng.End)),
		attribute.String("lock", held.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for done := false; !done; {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if done, err = r.decodeBatch(ctx, rng, deadline); err != nil {
			return false, err
		}
		if r.elapsed(deadline) {
			r.log.Debug("deadline reached before applying batch",
				zap.Int64("changes", r.batch.count),
				zap.Int64("bytes", r.batch.size))
			return false, nil
		}
		if r.batch.count == 0 {
			continue
		}
		if check != nil {
			if err := check.Check(ctx, held); err != nil {
				return false, SchemaDriftError.Wrap(err)
			}
		}
		if err := r.applyBatch(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ApplyPending applies the changes decoded but not applied by the last
// Process call.
func (r *Replayer) ApplyPending(ctx context.Context) error {
	return r.applyBatch(ctx)
}

// Pending returns the number and encoded size of decoded changes not yet
// applied.
func (r *Replayer) Pending() (int64, int64) {
	return r.batch.count, r.batch.size
}

// Stats returns the changes applied so far.
func (r *Replayer) Stats() ApplyStats { return r.stats }

// Close releases the spill store, discarding pending changes.
func (r *Replayer) Close() error {
	pendingBytes.Sub(float64(r.batch.size))
	r.batch = batchState{}
	return ResourceError.Wrap(r.store.Close())
}
