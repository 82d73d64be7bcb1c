/*
Package history implements the edit history of a workflow editor.

A Recorder receives editor events, drops the ones that only change UI state,
and coalesces bursts of worthy events with a trailing-edge debounce: one
snapshot of the live graph is appended per quiet window, tagged with the last
event of the burst and read when the window elapses.

A Cursor layers undo/redo positions, rooted at the seed graph, on top of the
append-only log, and Default returns the process-wide store used when no
session registry is involved.
*/
package history
