/*
Package domain contains the core models of the Tapestry edit history.

It defines the closed taxonomy of history-worthy graph mutations, the node
and edge model of a workflow canvas, and the Snapshot value recorded into
history. This package is kept pure and free of I/O, following the same
hexagonal split as the ports and adapters packages.

# Key Entities

  - EventKind: closed tag identifying a category of graph mutation.
  - Graph: nodes and edges of a workflow, with deep-copy support.
  - Snapshot: an immutable copy of a Graph plus the triggering EventKind.
  - NodeData: typed view over the common fields of a node's free-form data.
*/
package domain
