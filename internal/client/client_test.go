package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/cutout/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedUpload holds the multipart fields the fake service received.
type capturedUpload struct {
	fields   map[string]string
	fileName string
	fileType string
	fileData []byte
}

func uploadServer(t *testing.T, status int, body string, got *capturedUpload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)

		if got != nil {
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				return
			}
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			f, hdr, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				return
			}
			defer f.Close()
			got.fileName = hdr.Filename
			got.fileType = hdr.Header.Get("Content-Type")
			got.fileData, _ = io.ReadAll(f)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploadRemoveBackground(t *testing.T) {
	var got capturedUpload
	srv := uploadServer(t, http.StatusOK,
		`{"task_id":"t1","filename":"t1_in.jpg","output_filename":"t1_out.png"}`, &got)

	c := client.New(srv.URL, time.Second)
	resp, err := c.Upload(context.Background(), client.UploadRequest{
		TaskType:    client.TaskRemoveBackground,
		FileName:    "cat.jpg",
		ContentType: "image/jpeg",
		Body:        bytes.NewReader([]byte("jpeg-bytes")),
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", resp.TaskID)
	assert.Equal(t, "t1_in.jpg", resp.Filename)
	assert.Equal(t, "t1_out.png", resp.OutputFilename)

	assert.Equal(t, "remove_background", got.fields["task_type"])
	assert.NotContains(t, got.fields, "scale", "options are only sent when set")
	assert.NotContains(t, got.fields, "enhance_before")
	assert.Equal(t, "cat.jpg", got.fileName)
	assert.Equal(t, "image/jpeg", got.fileType)
	assert.Equal(t, []byte("jpeg-bytes"), got.fileData)
}

func TestUploadVectorizeOptions(t *testing.T) {
	var got capturedUpload
	srv := uploadServer(t, http.StatusOK,
		`{"task_id":"v1","filename":"v1_in.png","output_filename":"v1_out.svg","task_type":"vectorize"}`, &got)

	scale, enhance := 4, true
	c := client.New(srv.URL, time.Second)
	_, err := c.Upload(context.Background(), client.UploadRequest{
		TaskType:      client.TaskVectorize,
		FileName:      "logo.png",
		Body:          strings.NewReader("png"),
		Scale:         &scale,
		EnhanceBefore: &enhance,
	})
	require.NoError(t, err)

	assert.Equal(t, "vectorize", got.fields["task_type"])
	assert.Equal(t, "4", got.fields["scale"])
	assert.Equal(t, "true", got.fields["enhance_before"])
	assert.Equal(t, "application/octet-stream", got.fileType)
}

func TestUploadErrorDetail(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail string", http.StatusBadRequest, `{"detail":"File too large. Maximum size: 100.0MB"}`, "File too large. Maximum size: 100.0MB"},
		{"detail list", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"}]}`, client.GenericUploadMessage},
		{"no json", http.StatusInternalServerError, `Internal Server Error`, client.GenericUploadMessage},
		{"malformed success", http.StatusOK, `{"filename":"x.jpg"}`, client.GenericUploadMessage},
		{"empty task id", http.StatusOK, `{"task_id":"","filename":"x.jpg"}`, client.GenericUploadMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := uploadServer(t, tt.status, tt.body, nil)
			c := client.New(srv.URL, time.Second)

			_, err := c.Upload(context.Background(), client.UploadRequest{
				TaskType: client.TaskRemoveBackground,
				FileName: "a.jpg",
				Body:     strings.NewReader("x"),
			})
			require.Error(t, err)

			var upErr *client.UploadError
			require.True(t, errors.As(err, &upErr), "should be an UploadError")
			assert.Equal(t, tt.message, upErr.Message)
			assert.Equal(t, tt.status, upErr.StatusCode)
		})
	}
}

func TestUploadNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := client.New(url, time.Second)
	_, err := c.Upload(context.Background(), client.UploadRequest{
		TaskType: client.TaskRemoveBackground,
		FileName: "a.jpg",
		Body:     strings.NewReader("x"),
	})

	var upErr *client.UploadError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, client.GenericUploadMessage, upErr.Message)
	assert.Zero(t, upErr.StatusCode)
}

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status/t1", r.URL.Path)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusProcessing(t *testing.T) {
	srv := statusServer(t, http.StatusOK, `{"status":"PROCESSING","result":42}`)
	c := client.New(srv.URL, time.Second)

	resp, err := c.Status(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, client.StateProcessing, resp.Status)
	pct, ok := resp.Progress()
	assert.True(t, ok)
	assert.Equal(t, 42, pct)
	_, ok = resp.ResultRef()
	assert.False(t, ok)
}

func TestStatusSuccess(t *testing.T) {
	srv := statusServer(t, http.StatusOK, `{"status":"SUCCESS","result":"t1_out.png"}`)
	c := client.New(srv.URL, time.Second)

	resp, err := c.Status(context.Background(), "t1")
	require.NoError(t, err)

	ref, ok := resp.ResultRef()
	assert.True(t, ok)
	assert.Equal(t, "t1_out.png", ref)
}

func TestStatusPendingNullResult(t *testing.T) {
	srv := statusServer(t, http.StatusOK, `{"status":"PENDING","result":null}`)
	c := client.New(srv.URL, time.Second)

	resp, err := c.Status(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, client.StatePending, resp.Status)
	_, ok := resp.Progress()
	assert.False(t, ok)
}

func TestStatusResultValues(t *testing.T) {
	tests := []struct {
		name     string
		result   string
		progress int
		hasPct   bool
		ref      string
		hasRef   bool
	}{
		{"null", `null`, 0, false, "", false},
		{"missing", ``, 0, false, "", false},
		{"number", `42`, 42, true, "", false},
		{"fraction", `42.9`, 42, true, "", false},
		{"huge", `1e300`, 100, true, "", false},
		{"negative", `-5`, 0, true, "", false},
		{"string", `"t1_out.svg"`, 0, false, "t1_out.svg", true},
		{"empty string", `""`, 0, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := client.StatusResponse{Status: client.StateProcessing, Result: json.RawMessage(tt.result)}

			pct, ok := resp.Progress()
			assert.Equal(t, tt.hasPct, ok)
			assert.Equal(t, tt.progress, pct)

			ref, ok := resp.ResultRef()
			assert.Equal(t, tt.hasRef, ok)
			assert.Equal(t, tt.ref, ref)
		})
	}
}

func TestStatusTransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"detail":"Not Found"}`},
		{"server error", http.StatusBadGateway, ``},
		{"bad json", http.StatusOK, `{"status":`},
		{"unknown status", http.StatusOK, `{"status":"RETRY","result":null}`},
		{"bad result type", http.StatusOK, `{"status":"PROCESSING","result":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := statusServer(t, tt.status, tt.body)
			c := client.New(srv.URL, time.Second)

			_, err := c.Status(context.Background(), "t1")
			var pollErr *client.PollError
			require.True(t, errors.As(err, &pollErr), "should be a PollError, got %v", err)
			assert.Equal(t, "t1", pollErr.TaskID)
		})
	}
}

func TestStatusTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := client.New(srv.URL, 50*time.Millisecond)
	_, err := c.Status(context.Background(), "t3")

	var pollErr *client.PollError
	require.True(t, errors.As(err, &pollErr))
	assert.Equal(t, "t3", pollErr.TaskID)
}

func TestLocations(t *testing.T) {
	c := client.New("http://svc:8000/", time.Second)

	assert.Equal(t, "http://svc:8000", c.BaseURL())
	assert.Equal(t, "http://svc:8000/original/t1_in.jpg", c.OriginalURL("t1_in.jpg"))
	assert.Equal(t, "http://svc:8000/result/t1_out.png", c.ResultURL("t1_out.png"))
	assert.Equal(t, "http://svc:8000/result/a%20b.png", c.ResultURL("a b.png"))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/result/ok.png" {
			_, _ = io.WriteString(w, "png-bytes")
			return
		}
		http.Error(w, `{"detail":"File not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := client.New(srv.URL, time.Second)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), c.ResultURL("ok.png"), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, "png-bytes", buf.String())

	_, err = c.Download(context.Background(), c.ResultURL("missing.png"), &buf)
	assert.ErrorContains(t, err, "404")
}
