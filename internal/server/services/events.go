package services

import "context"

// EventKind names the outward events of an ingestion run.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is relayed by the caller to interested clients. Percent is set for
// progress, RecordID for completed and Reason for failed.
type Event struct {
	Kind     EventKind
	RunID    string
	Percent  int
	RecordID string
	Reason   string
}

// Notifier receives the events of one run. It may be called from several
// goroutines, one event at a time.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) {
	f(ctx, e)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}
