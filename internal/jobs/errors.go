package jobs

import "errors"

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrCapacity        = errors.New("category is at capacity")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrInvalidScale    = errors.New("invalid scale")

	// ErrNotFound means the job was removed or never existed.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateHandle means the service issued a handle another job already holds.
	ErrDuplicateHandle = errors.New("duplicate handle")

	// ErrInvalidTransition means the event does not apply in the job's current phase.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrMalformedStatus means a status response could not be interpreted; the poll is retried.
	ErrMalformedStatus = errors.New("malformed status")
)

// Display messages attached to failed jobs.
const (
	ProcessingFailedMessage = "Error processing image"
	DuplicateHandleMessage  = "Service returned a task id already in use"

	// InterruptedUploadMessage marks an upload cut off by cancellation or
	// shutdown. The service never saw the file.
	InterruptedUploadMessage = "Upload interrupted"
)
