package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the operational pause switches maintained by governance.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails fast when the named module's pause switch is engaged. A nil
// view means no pause infrastructure is wired and the call is allowed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
