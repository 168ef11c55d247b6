package testutil

import (
	"sync"

	"storysync/internal/story"
)

// Notification is one recorded Notify call.
type Notification struct {
	Kind    story.Kind
	Message string
}

// RecordingNotifier records notifications. Safe for concurrent use.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(kind story.Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Kind: kind, Message: message})
}

// All returns a copy of every notification so far.
func (n *RecordingNotifier) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Count returns how many notifications of kind were sent.
func (n *RecordingNotifier) Count(kind story.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			count++
		}
	}
	return count
}
