package flow

// PacketKind distinguishes data objects from the markers that flow through
// the same port queues.
type PacketKind int

const (
	// KindObject is a data object produced by an upstream round.
	KindObject PacketKind = iota
	// KindStartGroup marks the beginning of a logical group.
	KindStartGroup
	// KindEndGroup marks the end of a logical group.
	KindEndGroup
	// KindPause is a pause boundary propagated by an upstream operation.
	KindPause
	// KindStop is a stop boundary propagated by an upstream operation.
	KindStop
)

func (k PacketKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindStartGroup:
		return "start-group"
	case KindEndGroup:
		return "end-group"
	case KindPause:
		return "pause"
	case KindStop:
		return "stop"
	}
	return "unknown"
}

// Boundary reports whether the packet is a group boundary marker.
func (k PacketKind) Boundary() bool {
	return k == KindStartGroup || k == KindEndGroup
}

// Control reports whether the packet is a lifecycle control marker.
func (k PacketKind) Control() bool {
	return k == KindPause || k == KindStop
}

// Packet is one entry in an input port's queue: either a data object or a
// marker. Markers carry no value.
type Packet struct {
	Kind  PacketKind
	Value any
}

// Object wraps a data value in a packet.
func Object(v any) Packet { return Packet{Kind: KindObject, Value: v} }

// Marker creates a valueless marker packet.
func Marker(kind PacketKind) Packet { return Packet{Kind: kind} }

// Input is the flow controller's view of one connected input port. All
// methods are called with the owning operation's delivery mutex held.
type Input interface {
	Name() string
	GroupID() int

	// Head peeks at the oldest queued packet.
	Head() (Packet, bool)

	// Pop removes and returns the oldest queued packet.
	Pop() (Packet, bool)

	// Len returns the number of queued packets.
	Len() int
}
