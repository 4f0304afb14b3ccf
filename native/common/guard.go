package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects state-changing entry points while the module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a static PauseView backed by a set of module names, typically
// built from service configuration.
type PauseSet map[string]bool

func (s PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s[module]
}
