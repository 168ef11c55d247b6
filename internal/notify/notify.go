// Package notify provides story.Notifier implementations.
package notify

import (
	"fmt"
	"io"
	"sync"

	"storysync/internal/story"
)

// Log records notifications in the structured log.
type Log struct {
	logger story.Logger
}

var _ story.Notifier = (*Log)(nil)

func NewLog(logger story.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(kind story.Kind, message string) {
	switch kind {
	case story.KindError, story.KindSessionExpired:
		l.logger.Warn("notification", "kind", string(kind), "message", message)
	default:
		l.logger.Info("notification", "kind", string(kind), "message", message)
	}
}

// Writer prints notifications for a person at a terminal.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ story.Notifier = (*Writer)(nil)

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Notify(kind story.Kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s %s\n", prefix(kind), message)
}

func prefix(kind story.Kind) string {
	switch kind {
	case story.KindSuccess:
		return "[ok]"
	case story.KindError:
		return "[error]"
	case story.KindSessionExpired:
		return "[session]"
	default:
		return "[info]"
	}
}

// Multi fans a notification out to every notifier in order.
type Multi []story.Notifier

func (m Multi) Notify(kind story.Kind, message string) {
	for _, n := range m {
		n.Notify(kind, message)
	}
}
