package domain

import (
	"errors"
	"fmt"
)

// ErrMarkerNotFound is returned by marker mutations on an unknown id.
var ErrMarkerNotFound = errors.New("marker not found")

// ErrNoActiveRenderer is returned when an operation needs a mounted
// renderer and none is active.
var ErrNoActiveRenderer = errors.New("no active renderer")

// MountError reports a renderer that failed to attach to its container.
// Engine state stays valid; mounting can be retried with a good container.
type MountError struct {
	Renderer string
	Err      error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount renderer %s: %v", e.Renderer, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// PersistenceError reports a failed durable write. The in-memory mutation
// is not rolled back; persistence is best-effort and the durable copy may
// lag behind the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist markers (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
