package intake_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/cutout/internal/intake"
	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestAllowed(t *testing.T) {
	for _, p := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp"} {
		assert.True(t, intake.Allowed(p), p)
	}
	for _, p := range []string{"a.gif", "b.pdf", "noext", "c.png.tmp"} {
		assert.False(t, intake.Allowed(p), p)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	data := pngBytes(t)
	p := writeFile(t, dir, "logo.png", data)

	f, err := intake.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "logo.png", f.Name)
	assert.Equal(t, p, f.Path)
	assert.Equal(t, int64(len(data)), f.Size)
	assert.Equal(t, "image/png", f.ContentType)
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.png"), 0o755))

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", writeFile(t, dir, "notes.txt", []byte("hello"))},
		{"text named as image", writeFile(t, dir, "fake.jpg", []byte("just some text"))},
		{"directory", filepath.Join(dir, "folder.png")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := intake.Load(tt.path)
			assert.ErrorIs(t, err, intake.ErrUnsupportedType)
		})
	}

	_, err := intake.Load(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyFileIsLeftToStore(t *testing.T) {
	p := writeFile(t, t.TempDir(), "empty.png", nil)

	f, err := intake.Load(p)
	require.NoError(t, err)
	assert.Zero(t, f.Size)

	_, err = jobs.NewStore(10).Add(jobs.RemoveBackground, f, jobs.Options{})
	assert.ErrorIs(t, err, jobs.ErrEmptyFile)
}

// storeSubmitter admits into a store without uploading.
type storeSubmitter struct{ store *jobs.Store }

func (s storeSubmitter) Submit(_ context.Context, c jobs.Category, f jobs.File, o jobs.Options) (jobs.Job, error) {
	return s.store.Add(c, f, o)
}

func TestAdmitStopsAtCapacity(t *testing.T) {
	dir := t.TempDir()
	data := pngBytes(t)
	var paths []string
	for i := 0; i < 4; i++ {
		paths = append(paths, writeFile(t, dir, fmt.Sprintf("img%d.png", i), data))
	}
	paths = append(paths, writeFile(t, dir, "readme.txt", []byte("x")))

	store := jobs.NewStore(3)
	res := intake.Admit(context.Background(), storeSubmitter{store}, jobs.RemoveBackground, paths, jobs.Options{})

	require.Len(t, res.Jobs, 3)
	assert.Equal(t, "img0.png", res.Jobs[0].File.Name, "admitted in order")
	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected[0].Err, jobs.ErrCapacity)
	assert.ErrorIs(t, res.Rejected[1].Err, intake.ErrUnsupportedType)
	assert.Equal(t, 3, store.Len(jobs.RemoveBackground))
}

func TestWatchEmitsNewImages(t *testing.T) {
	dir := t.TempDir()
	existing := writeFile(t, dir, "before.png", pngBytes(t))
	writeFile(t, dir, ".hidden.png", pngBytes(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := intake.Watch(ctx, intake.WatchConfig{Dir: dir, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, existing, next(t, events))

	writeFile(t, dir, "notes.txt", []byte("ignored"))
	created := writeFile(t, dir, "after.jpg", pngBytes(t))
	assert.Equal(t, created, next(t, events))

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-events
		return !open
	}, time.Second, 10*time.Millisecond, "events channel closes after cancel")
}

func TestWatchMissingDir(t *testing.T) {
	_, _, err := intake.Watch(context.Background(), intake.WatchConfig{Dir: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func next(t *testing.T, events <-chan string) string {
	t.Helper()
	select {
	case p := <-events:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return ""
	}
}
