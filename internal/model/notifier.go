package model

// Notifier defines a generic interface for sending notifications.
type Notifier interface {
	Send(subject, body string) error
}

// Publisher defines a generic interface for announcing finished runs.
type Publisher interface {
	PublishSnapshot(snapshot *Snapshot) error
}
