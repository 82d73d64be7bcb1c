// Package http exposes editing sessions over a chi router: session
// management, event recording, history listing, undo/redo and an SSE stream
// of appended history entries.
package http
