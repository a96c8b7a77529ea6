package domain

type EventKind string

const (
	EventConnected   EventKind = "connected"
	EventPollCreated EventKind = "pollCreated"
	EventPollUpdated EventKind = "pollUpdated"
	EventPollLiked   EventKind = "pollLiked"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventConnected, EventPollCreated, EventPollUpdated, EventPollLiked:
		return true
	}
	return false
}

// Event is never stored; subscribers that are not connected when it is
// broadcast never see it.
type Event struct {
	Kind EventKind `json:"kind"`
	Poll *Poll     `json:"poll"`
}
