package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpPoll, 10*time.Millisecond)
	c.RecordTiming(OpPoll, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Poll)
	assert.Equal(t, int64(2), snap.Poll.Count)
	assert.Equal(t, int64(40), snap.Poll.TotalTimeMs)
	assert.InDelta(t, 20.0, snap.Poll.AvgTimeMs, 0.001)
	assert.Equal(t, int64(10), snap.Poll.MinTimeMs)
	assert.Equal(t, int64(30), snap.Poll.MaxTimeMs)
	assert.Nil(t, snap.Poll.TotalBytes, "polls carry no byte stats")

	assert.Nil(t, snap.Upload)
	assert.Nil(t, snap.Download)
}

func TestRecordTransfer(t *testing.T) {
	c := NewCollector()

	c.RecordTransfer(OpUpload, 100*time.Millisecond, 2048)
	c.RecordTransfer(OpUpload, 300*time.Millisecond, 1024)

	snap := c.Snapshot()
	require.NotNil(t, snap.Upload)
	require.NotNil(t, snap.Upload.TotalBytes)
	assert.Equal(t, int64(3072), *snap.Upload.TotalBytes)
	assert.Equal(t, int64(2048), *snap.Upload.MaxBytes)
}

func TestRecordFailure(t *testing.T) {
	c := NewCollector()

	c.RecordFailure(OpPoll)
	snap := c.Snapshot()
	require.NotNil(t, snap.Poll)
	assert.Equal(t, int64(1), snap.Poll.Count)
	assert.Equal(t, int64(1), snap.Poll.Failures)
	assert.Zero(t, snap.Poll.MinTimeMs, "no sentinel leaks without timed samples")

	c.RecordTiming(OpPoll, 5*time.Millisecond)
	snap = c.Snapshot()
	assert.Equal(t, int64(2), snap.Poll.Count)
	assert.InDelta(t, 5.0, snap.Poll.AvgTimeMs, 0.001)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpPoll, time.Millisecond)
	c.RecordTransfer(OpDownload, time.Millisecond, 1)
	c.RecordFailure(OpUpload)
	assert.Nil(t, c.Snapshot().Poll)
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpPoll, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Snapshot().Poll.Count)
}
