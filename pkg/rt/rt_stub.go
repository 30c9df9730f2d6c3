//go:build !linux

package rt

import stderrors "errors"

var errUnsupported = stderrors.New("rt: not supported on this platform")

func lockMemory() error { return errUnsupported }

func unlockMemory() error { return nil }

func setNice(nice int) error { return errUnsupported }

// Nice returns the current scheduling priority of the process.
func Nice() (int, error) { return 0, errUnsupported }
