package api

import (
	"context"

	"plcmotion/pkg/errors"
)

type trackResult struct {
	outcome string
	code    errors.Code
}

// tracker is an axis.Caller that reports the end of one command. Its
// callbacks run on the tick goroutine and never block.
type tracker struct {
	result chan trackResult
}

func newTracker() *tracker {
	return &tracker{result: make(chan trackResult, 1)}
}

func (t *tracker) finish(r trackResult) {
	select {
	case t.result <- r:
	default:
	}
}

func (t *tracker) OnOperationActive(customID int32) {}

func (t *tracker) OnOperationAborted(customID int32) {
	t.finish(trackResult{outcome: "aborted"})
}

func (t *tracker) OnOperationDone(customID int32) {
	t.finish(trackResult{outcome: "done"})
}

func (t *tracker) OnOperationError(code errors.Code, customID int32) {
	t.finish(trackResult{outcome: "error", code: code})
}

func (t *tracker) wait(ctx context.Context) (trackResult, error) {
	select {
	case r := <-t.result:
		return r, nil
	case <-ctx.Done():
		return trackResult{}, ctx.Err()
	}
}
