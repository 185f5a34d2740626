package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowerPrintsOnlyChanges(t *testing.T) {
	store := jobs.NewStore(10)
	require.NoError(t, store.Restore(restored("aaaa1111", jobs.RemoveBackground, "cat.png", jobs.PhaseQueued)))

	var out bytes.Buffer
	f := newFollower(store, []jobs.Category{jobs.RemoveBackground}, &out)

	assert.True(t, f.print())
	assert.Contains(t, out.String(), "Waiting to process...")

	out.Reset()
	assert.True(t, f.print())
	assert.Empty(t, out.String(), "unchanged jobs are not repeated")

	claims := store.ClaimPolls(jobs.RemoveBackground)
	require.Len(t, claims, 1)
	_, applied := store.ApplyStatus(claims[0], jobs.Snapshot{
		Phase:     jobs.PhaseSucceeded,
		ResultRef: "task-aaaa1111_out.png",
		ResultURL: "http://svc/result/task-aaaa1111_out.png",
	})
	require.True(t, applied)

	assert.False(t, f.print(), "nothing left in progress")
	assert.Contains(t, out.String(), "aaaa1111")
	assert.Contains(t, out.String(), "Done")
}

func TestFollowerIgnoresOtherCategories(t *testing.T) {
	store := jobs.NewStore(10)
	require.NoError(t, store.Restore(restored("aaaa1111", jobs.Vectorize, "logo.png", jobs.PhaseRunning)))

	var out bytes.Buffer
	f := newFollower(store, []jobs.Category{jobs.RemoveBackground}, &out)

	assert.False(t, f.print())
	assert.Empty(t, out.String())
}

func TestFollowReturnsWhenSettled(t *testing.T) {
	store := jobs.NewStore(10)
	failed := restored("aaaa1111", jobs.RemoveBackground, "cat.png", jobs.PhaseFailed)
	failed.Error = "Upload interrupted"
	require.NoError(t, store.Restore(failed))

	var out bytes.Buffer
	err := follow(context.Background(), store, jobs.Categories(), &out, true)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Upload interrupted")
}

func TestFollowStopsOnCancel(t *testing.T) {
	store := jobs.NewStore(10)
	require.NoError(t, store.Restore(restored("aaaa1111", jobs.RemoveBackground, "cat.png", jobs.PhaseQueued)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := follow(ctx, store, jobs.Categories(), &out, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCategoryArgs(t *testing.T) {
	all, err := categoryArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, jobs.Categories(), all)

	one, err := categoryArgs([]string{"vectorize"})
	require.NoError(t, err)
	assert.Equal(t, []jobs.Category{jobs.Vectorize}, one)

	_, err = categoryArgs([]string{"upscale"})
	assert.ErrorIs(t, err, jobs.ErrUnknownCategory)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short.png", truncate("short.png", 24))
	assert.Equal(t, "a-very-long…", truncate("a-very-long-file-name.png", 12))
	assert.Equal(t, "a…", truncate("abc", 2))
}

func TestFinishMentionsOnlyJobsStillOnTheService(t *testing.T) {
	var out bytes.Buffer
	testSession(t).finish(&out)
	assert.Contains(t, out.String(), "cutout watch", "a running job continues remotely")

	store := jobs.NewStore(10)
	interrupted := restored("aaaa1111", jobs.RemoveBackground, "cat.png", jobs.PhaseUnsubmitted)
	interrupted.Handle = ""
	require.NoError(t, store.Restore(interrupted))
	_, err := store.FailUpload(interrupted.ID, jobs.InterruptedUploadMessage)
	require.NoError(t, err)
	sess := &session{store: store, orch: jobs.NewOrchestrator(store, nil, jobs.Config{})}

	out.Reset()
	sess.finish(&out)
	assert.Empty(t, out.String(), "nothing is left on the service")
}
