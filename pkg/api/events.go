package api

// SyncEventType distinguishes the two kinds of group boundaries.
type SyncEventType int

const (
	// StartInput marks the beginning of a logical group of objects.
	StartInput SyncEventType = iota
	// EndInput marks the end of a logical group. An EndInput event for a
	// group is delivered only when the group and all of its strict children
	// have reached their boundaries.
	EndInput
)

func (t SyncEventType) String() string {
	if t == StartInput {
		return "start"
	}
	return "end"
}

// SyncEvent informs an operation that an input group reached a boundary.
// Depth is the start/end nesting level of the group after the event: a
// StartInput on a previously flat group has depth 1, the matching EndInput
// has depth 0.
type SyncEvent struct {
	Type    SyncEventType
	GroupID int
	Depth   int
}
