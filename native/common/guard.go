package common

import coreerrors "pegcore/core/errors"

// PauseView reports whether a module currently refuses mutations. The store
// pauses all modules together through the global bucket.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrPaused when module is paused in p. A nil view or an
// unnamed module is never paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" || !p.IsPaused(module) {
		return nil
	}
	return coreerrors.ErrPaused
}
