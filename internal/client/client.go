// Package client provides an HTTP client for the remote image-processing service.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to the processing service. It holds no job state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new service client.
// If baseURL is empty, uses CUTOUT_API_URL env var or defaults to localhost:8000.
// A zero timeout means 5 minutes, long enough for large uploads.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CUTOUT_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the service root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// TYPES (matching the service contract)
// =============================================================================

// TaskType is the wire name of a processing kind.
type TaskType string

const (
	TaskRemoveBackground TaskType = "remove_background"
	TaskVectorize        TaskType = "vectorize"
)

// TaskState is the status reported by GET /status/{task_id}.
type TaskState string

const (
	StatePending    TaskState = "PENDING"
	StateProcessing TaskState = "PROCESSING"
	StateSuccess    TaskState = "SUCCESS"
	StateFailure    TaskState = "FAILURE"
)

// UploadRequest describes one submission.
// Scale and EnhanceBefore are sent only when non-nil.
type UploadRequest struct {
	TaskType      TaskType
	FileName      string
	ContentType   string
	Body          io.Reader
	Scale         *int
	EnhanceBefore *bool
}

// UploadResponse is the 2xx body of POST /upload.
type UploadResponse struct {
	TaskID         string `json:"task_id"`
	Filename       string `json:"filename"`
	OutputFilename string `json:"output_filename"`
	TaskType       string `json:"task_type,omitempty"`
}

// StatusResponse is the body of GET /status/{task_id}.
// Result is a progress number while PROCESSING and an artifact id on SUCCESS.
type StatusResponse struct {
	Status TaskState       `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Progress returns the reported percentage, clamped to [0,100], when Result
// is a number. A missing or null Result reports nothing.
func (s StatusResponse) Progress() (int, bool) {
	var f *float64
	if len(s.Result) == 0 || json.Unmarshal(s.Result, &f) != nil || f == nil {
		return 0, false
	}
	return int(min(max(*f, 0), 100)), true
}

// ResultRef returns the artifact id when Result is a non-empty string.
func (s StatusResponse) ResultRef() (string, bool) {
	var ref *string
	if len(s.Result) == 0 || json.Unmarshal(s.Result, &ref) != nil || ref == nil || *ref == "" {
		return "", false
	}
	return *ref, true
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Upload submits one file. It issues exactly one request and never retries.
// Every failure is returned as *UploadError.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error) {
	if req.Body == nil {
		return nil, &UploadError{Message: GenericUploadMessage, Err: fmt.Errorf("no file body")}
	}

	pr, pw := io.Pipe()
	defer pr.Close() // unblocks the writer if the server answers before reading the body
	mw := multipart.NewWriter(pw)

	// Stream the multipart body so large images are not buffered in memory.
	go func() {
		pw.CloseWithError(writeUploadForm(mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return nil, &UploadError{Message: GenericUploadMessage, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UploadError{Message: GenericUploadMessage, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UploadError{StatusCode: resp.StatusCode, Message: GenericUploadMessage, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UploadError{
			StatusCode: resp.StatusCode,
			Message:    detailMessage(body),
			Err:        fmt.Errorf("server error: %s", resp.Status),
		}
	}

	if err := validateUploadResponse(body); err != nil {
		return nil, &UploadError{StatusCode: resp.StatusCode, Message: GenericUploadMessage, Err: err}
	}

	var out UploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &UploadError{StatusCode: resp.StatusCode, Message: GenericUploadMessage, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return &out, nil
}

// Status performs one status check. Every failure is returned as *PollError.
func (c *Client) Status(ctx context.Context, taskID string) (*StatusResponse, error) {
	if taskID == "" {
		return nil, &PollError{Err: fmt.Errorf("empty task id")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, &PollError{TaskID: taskID, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &PollError{TaskID: taskID, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PollError{TaskID: taskID, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &PollError{TaskID: taskID, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error: %s", resp.Status)}
	}

	if err := validateStatusResponse(body); err != nil {
		return nil, &PollError{TaskID: taskID, StatusCode: resp.StatusCode, Err: err}
	}

	var out StatusResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &PollError{TaskID: taskID, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return &out, nil
}

// OriginalURL returns the byte-serving URL of an uploaded source file.
func (c *Client) OriginalURL(filename string) string {
	return c.baseURL + "/original/" + url.PathEscape(filename)
}

// ResultURL returns the byte-serving URL of a processed artifact.
func (c *Client) ResultURL(outputID string) string {
	return c.baseURL + "/result/" + url.PathEscape(outputID)
}

// Download streams the resource at rawURL into w and returns the byte count.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server error: %s", resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// writeUploadForm writes the multipart fields in service order: file, task_type, options.
func writeUploadForm(mw *multipart.Writer, req UploadRequest) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.FileName)))
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, req.Body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}

	if err := mw.WriteField("task_type", string(req.TaskType)); err != nil {
		return err
	}
	if req.Scale != nil {
		if err := mw.WriteField("scale", strconv.Itoa(*req.Scale)); err != nil {
			return err
		}
	}
	if req.EnhanceBefore != nil {
		if err := mw.WriteField("enhance_before", strconv.FormatBool(*req.EnhanceBefore)); err != nil {
			return err
		}
	}
	return mw.Close()
}

// detailMessage extracts a string "detail" field, falling back to the generic message.
func detailMessage(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return GenericUploadMessage
	}
	if s, ok := payload.Detail.(string); ok && s != "" {
		return s
	}
	return GenericUploadMessage
}
