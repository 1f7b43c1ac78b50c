package beatkey

import "fmt"

// ErrNotReady is returned by operations that require a model to be loaded
// first (e.g. warming up before Load*Model has succeeded).
type ErrNotReady struct {
	Component string
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("beatkey: %s not loaded", e.Component)
}

func errNotReady(component string) error {
	return &ErrNotReady{Component: component}
}
