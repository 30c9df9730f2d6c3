// Package rt prepares the process for running the tick loop.
package rt

import (
	"go.uber.org/multierr"

	"plcmotion/pkg/log"
)

// Options selects the process tuning applied before the tick loop starts.
type Options struct {
	// LockMemory pins current and future pages so the tick loop never
	// takes a page fault.
	LockMemory bool
	// Nice is the scheduling priority, -20 to 19. Zero leaves it alone.
	Nice int
}

// Applied reports what Apply changed.
type Applied struct {
	MemoryLocked bool
	Nice         int
	NiceSet      bool
}

// Apply tunes the process. Each step that fails is logged and skipped;
// the returned error joins every failure.
func Apply(opts Options) (Applied, error) {
	logger := log.GetLogger("rt")
	var res Applied
	var err error

	if opts.LockMemory {
		if lerr := lockMemory(); lerr != nil {
			logger.Warn("memory lock failed: %v", lerr)
			err = multierr.Append(err, lerr)
		} else {
			res.MemoryLocked = true
			logger.Info("memory locked")
		}
	}
	if opts.Nice != 0 {
		if nerr := setNice(opts.Nice); nerr != nil {
			logger.Warn("set priority %d failed: %v", opts.Nice, nerr)
			err = multierr.Append(err, nerr)
		} else {
			res.Nice, res.NiceSet = opts.Nice, true
			logger.Info("priority set to %d", opts.Nice)
		}
	}
	return res, err
}

// Release undoes the memory lock taken by Apply.
func Release(res Applied) error {
	if !res.MemoryLocked {
		return nil
	}
	return unlockMemory()
}
