package squeeze

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/sqlite-squeeze/catalog"
)

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	InitMetrics(registry)

	decoded := testutil.ToFloat64(changesDecoded.WithLabelValues("update_old"))
	inserted := testutil.ToFloat64(changesApplied.WithLabelValues("insert"))
	updated := testutil.ToFloat64(changesApplied.WithLabelValues("update"))
	spilled := testutil.ToFloat64(spilledBatches)

	reader := newFakeReader(
		insert(t, 1, "a", 0),
		update(mustRow(t, 1, "a", 0), mustRow(t, 2, "a", 0)),
	)
	tbl, cc := newTarget(t)
	cfg := testConfig(t)
	cfg.SpillMemoryLimit = 0
	r := newReplayer(t, cfg, reader, tbl, cc)
	done, err := r.Process(context.Background(), reader.fullRange(), nil, catalog.LockNone, time.Time{})
	require.NoError(t, err)
	require.True(t, done)

	assert.Equal(t, decoded+1, testutil.ToFloat64(changesDecoded.WithLabelValues("update_old")))
	assert.Equal(t, inserted+1, testutil.ToFloat64(changesApplied.WithLabelValues("insert")))
	assert.Equal(t, updated+1, testutil.ToFloat64(changesApplied.WithLabelValues("update")))
	assert.Equal(t, spilled+1, testutil.ToFloat64(spilledBatches))

	n, err := testutil.GatherAndCount(registry, "squeeze_pending_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
