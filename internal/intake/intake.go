// Package intake turns paths on disk into admissible job files.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/cutout/internal/jobs"
)

// ErrUnsupportedType means the file is not one of the accepted image formats.
var ErrUnsupportedType = errors.New("unsupported file type")

// Allowed extensions (lowercase, without '.').
var allowedExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// Allowed reports whether path has an accepted image extension.
func Allowed(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := allowedExts[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// Load stats and sniffs path. Size limits are enforced by the job store.
func Load(path string) (jobs.File, error) {
	if !Allowed(path) {
		return jobs.File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(path))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return jobs.File{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	f, err := os.Open(abs)
	if err != nil {
		return jobs.File{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return jobs.File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return jobs.File{}, fmt.Errorf("%w: %s is a directory", ErrUnsupportedType, path)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return jobs.File{}, fmt.Errorf("read %s: %w", path, err)
	}

	contentType := "application/octet-stream"
	if n > 0 {
		contentType = http.DetectContentType(head[:n])
		if !strings.HasPrefix(contentType, "image/") {
			return jobs.File{}, fmt.Errorf("%w: %s looks like %s", ErrUnsupportedType, filepath.Base(path), contentType)
		}
	}

	return jobs.File{
		Name:        filepath.Base(abs),
		Path:        abs,
		Size:        info.Size(),
		ContentType: contentType,
	}, nil
}

// Submitter admits and uploads a file. *jobs.Orchestrator implements it.
type Submitter interface {
	Submit(ctx context.Context, category jobs.Category, file jobs.File, opts jobs.Options) (jobs.Job, error)
}

// Rejection records why a path was not admitted.
type Rejection struct {
	Path string
	Err  error
}

// Result is the outcome of admitting a batch of paths.
type Result struct {
	Jobs     []jobs.Job
	Rejected []Rejection
}

// Admit loads and submits each path in order. A failure for one path never
// stops the rest; once the category is full the remaining paths are rejected.
func Admit(ctx context.Context, sub Submitter, category jobs.Category, paths []string, opts jobs.Options) Result {
	var res Result
	for _, path := range paths {
		file, err := Load(path)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Path: path, Err: err})
			continue
		}
		job, err := sub.Submit(ctx, category, file, opts)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Path: path, Err: err})
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	return res
}
