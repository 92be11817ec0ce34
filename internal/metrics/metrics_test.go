package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// install swaps in a fake backend for the duration of a test. Tests using it
// must not run in parallel.
func install(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	prev := SetBackend(fb)
	t.Cleanup(func() { SetBackend(prev) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("jobA", "catalog", nil, 2*time.Second)
	RecordStep("jobB", "write_songplays", errors.New("boom"), 1500*time.Millisecond)

	require.Len(t, fb.callsCounters, 2)
	require.Len(t, fb.callsHistograms, 2)

	assert.Equal(t, counterCall{StepTotal, 1, Labels{"job": "jobA", "step": "catalog", "status": "success"}}, fb.callsCounters[0])
	assert.Equal(t, "failure", fb.callsCounters[1].labels["status"])
	assert.Equal(t, StepDurationSeconds, fb.callsHistograms[1].name)
	assert.InDelta(t, 1.5, fb.callsHistograms[1].value, 1e-9)
}

func TestRecordRowsFilesBatches(t *testing.T) {
	fb := install(t)

	RecordRows("job", "songs", "written", 71)
	RecordRows("job", "songs", "written", 0) // ignored
	RecordFiles("job", "songs", 3)
	RecordFiles("job", "songs", -1) // ignored
	RecordBatches("job", "songplays", 2)

	require.Len(t, fb.callsCounters, 3)
	assert.Equal(t, counterCall{RecordsTotal, 71, Labels{"job": "job", "table": "songs", "kind": "written"}}, fb.callsCounters[0])
	assert.Equal(t, counterCall{FilesTotal, 3, Labels{"job": "job", "table": "songs"}}, fb.callsCounters[1])
	assert.Equal(t, counterCall{BatchesTotal, 2, Labels{"job": "job", "table": "songplays"}}, fb.callsCounters[2])
}

func TestSetBackend_NilKeepsCurrentAndFlushDelegates(t *testing.T) {
	fb := install(t)

	prev := SetBackend(nil)
	assert.Same(t, fb, prev)
	require.NoError(t, Flush())
	assert.Equal(t, 1, fb.flushCount)
}
