package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycleCounters(t *testing.T) {
	Register()
	Register()

	startedBefore := testutil.ToFloat64(sessionsStarted.WithLabelValues("isbn"))
	activeBefore := testutil.ToFloat64(sessionsActive)

	IncSessionStarted("isbn")
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(sessionsActive))

	IncSessionFinished("success", 120*time.Millisecond)
	assert.Equal(t, activeBefore, testutil.ToFloat64(sessionsActive))
	assert.Equal(t, startedBefore+1, testutil.ToFloat64(sessionsStarted.WithLabelValues("isbn")))
}

func TestAdapterCallCounter(t *testing.T) {
	Register()
	before := testutil.ToFloat64(adapterCalls.WithLabelValues("openlibrary", "timeout"))
	ObserveAdapterCall("openlibrary", "timeout", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(adapterCalls.WithLabelValues("openlibrary", "timeout")))
}

func TestSnapshot(t *testing.T) {
	Register()
	IncThumbnailDeferred()

	snap, err := Snapshot()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap["shelfscout_gallery_thumbnails_deferred_total"], 1.0)
}
