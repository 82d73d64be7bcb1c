// Package mcp exposes editing sessions as Model Context Protocol tools, so an
// agent can record editor events, read the history and undo or redo.
package mcp
