package domain

import "errors"

// ErrSourceUnavailable is returned by a graph source that has been detached
// from its editor. Captures reading it are abandoned.
var ErrSourceUnavailable = errors.New("graph source unavailable")

// ErrSessionNotFound is returned when a session ID is not registered.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when creating a session whose ID is taken.
var ErrSessionExists = errors.New("session already exists")

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrDuplicateNode = errors.New("node already exists")
	ErrInvalidEdge   = errors.New("invalid edge")
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)
