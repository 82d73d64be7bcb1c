/*
Package ports defines the driven ports (interfaces) of the Tapestry history.

These interfaces decouple the recorder from the live canvas, from the storage
backend and from the clock, so each can be replaced by an adapter or a fake.

# Key Interfaces

  - GraphSource: read accessor for the current nodes and edges of an editor.
  - HistoryStore: append-only log of snapshots (memory or Redis).
  - Scheduler: arms the debounce timer (wall clock or manual).
  - DistributedLocker: serializes access to a session across replicas.
*/
package ports
