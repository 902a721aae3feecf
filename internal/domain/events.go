package domain

// EventKind classifies a change-feed event.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is broadcast after every successful order mutation. Delivery
// is at-least-once and unordered; consumers merge by Order.ID and rely on
// the periodic refresh to repair anything missed.
type ChangeEvent struct {
	Kind  EventKind `json:"kind"`
	Order Order     `json:"order"`
}
