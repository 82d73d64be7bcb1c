package domain

// EventKind identifies a category of graph mutation.
// The set of history-worthy kinds is closed: anything not listed below is a
// UI-only signal and never reaches the history store.
type EventKind string

const (
	EventNodeTitleChange          EventKind = "NodeTitleChange"
	EventNodeDescriptionChange    EventKind = "NodeDescriptionChange"
	EventNodeDragStop             EventKind = "NodeDragStop"
	EventNodeChange               EventKind = "NodeChange"
	EventNodeConnect              EventKind = "NodeConnect"
	EventNodePaste                EventKind = "NodePaste"
	EventNodeDelete               EventKind = "NodeDelete"
	EventEdgeDelete               EventKind = "EdgeDelete"
	EventEdgeDeleteByDeleteBranch EventKind = "EdgeDeleteByDeleteBranch"
	EventNodeAdd                  EventKind = "NodeAdd"
)

// UnknownEventLabel is returned by LabelFor for kinds outside the enumeration.
const UnknownEventLabel = "Unknown Event"

// AllEventKinds returns the enumeration in declaration order.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventNodeTitleChange,
		EventNodeDescriptionChange,
		EventNodeDragStop,
		EventNodeChange,
		EventNodeConnect,
		EventNodePaste,
		EventNodeDelete,
		EventEdgeDelete,
		EventEdgeDeleteByDeleteBranch,
		EventNodeAdd,
	}
}

// IsHistoryWorthy reports whether kind may produce a history entry.
// Canvas-local changes such as selecting a node fall through to false.
func IsHistoryWorthy(kind EventKind) bool {
	switch kind {
	case EventNodeTitleChange,
		EventNodeDescriptionChange,
		EventNodeDragStop,
		EventNodeChange,
		EventNodeConnect,
		EventNodePaste,
		EventNodeDelete,
		EventEdgeDelete,
		EventEdgeDeleteByDeleteBranch,
		EventNodeAdd:
		return true
	default:
		return false
	}
}

// LabelFor returns the human-readable label of kind.
// It never fails: unrecognized kinds map to UnknownEventLabel.
func LabelFor(kind EventKind) string {
	switch kind {
	case EventNodeTitleChange:
		return "Node Title Change"
	case EventNodeDescriptionChange:
		return "Node Description Change"
	case EventNodeDragStop:
		return "Node Drag"
	case EventNodeChange:
		return "Node Change"
	case EventNodeConnect:
		return "Node Connect"
	case EventNodeAdd:
		return "Node Add"
	case EventNodePaste:
		return "Node Paste"
	case EventNodeDelete:
		return "Node Delete"
	case EventEdgeDelete:
		return "Edge Delete"
	case EventEdgeDeleteByDeleteBranch:
		return "Edge Delete (by other action)"
	default:
		return UnknownEventLabel
	}
}

// Label is a shorthand for LabelFor(k).
func (k EventKind) Label() string {
	return LabelFor(k)
}

// ParseEventKind converts a wire identifier into an EventKind.
// The boolean is false when s is outside the enumeration; the returned kind
// is still usable (it will simply be ignored by the recorder).
func ParseEventKind(s string) (EventKind, bool) {
	kind := EventKind(s)
	return kind, IsHistoryWorthy(kind)
}
