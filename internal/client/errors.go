package client

import "fmt"

// GenericUploadMessage is shown when the service gives no usable detail.
const GenericUploadMessage = "Error uploading file"

// UploadError is a rejected or unreachable submission.
// Message is safe to display; Err carries the underlying cause.
type UploadError struct {
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PollError is a transport-level status-check failure: network error,
// non-2xx response or malformed body. It never means the job itself failed.
type PollError struct {
	TaskID     string
	StatusCode int
	Err        error
}

func (e *PollError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("poll %s (HTTP %d): %v", e.TaskID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("poll %s: %v", e.TaskID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }
