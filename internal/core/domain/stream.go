package domain

type EventKind int

const (
	EventSnapshot EventKind = iota
	EventKeepAlive
	EventError
)

type StreamEvent struct {
	Kind EventKind
	Poll *Poll
	Err  error
}
