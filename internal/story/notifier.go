package story

// Kind classifies a user-facing notification.
type Kind string

const (
	KindInfo           Kind = "info"
	KindSuccess        Kind = "success"
	KindError          Kind = "error"
	KindSessionExpired Kind = "session_expired"
)

// Notifier delivers short user-facing messages. Implementations must be
// safe for concurrent use.
type Notifier interface {
	Notify(kind Kind, message string)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(Kind, string) {}
