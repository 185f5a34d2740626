package jobs

import (
	"fmt"

	"github.com/raphaelgruber/cutout/internal/client"
)

// normalize maps a service status report to a Snapshot. resolve turns an
// artifact id into its byte-serving URL.
func normalize(resp *client.StatusResponse, resolve func(string) string) (Snapshot, error) {
	if resp == nil {
		return Snapshot{}, fmt.Errorf("%w: empty response", ErrMalformedStatus)
	}

	switch resp.Status {
	case client.StatePending:
		return Snapshot{Phase: PhaseQueued}, nil

	case client.StateProcessing:
		snap := Snapshot{Phase: PhaseRunning}
		if pct, ok := resp.Progress(); ok {
			snap.Progress = &pct
		}
		return snap, nil

	case client.StateSuccess:
		ref, ok := resp.ResultRef()
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: SUCCESS without result reference", ErrMalformedStatus)
		}
		return Snapshot{Phase: PhaseSucceeded, ResultRef: ref, ResultURL: resolve(ref)}, nil

	case client.StateFailure:
		return Snapshot{Phase: PhaseFailed}, nil

	default:
		return Snapshot{}, fmt.Errorf("%w: status %q", ErrMalformedStatus, resp.Status)
	}
}
