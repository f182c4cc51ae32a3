package notify

import "github.com/hochfrequenz/claude-session-monitor/internal/domain"

// Kind classifies what happened to an alert
type Kind int

const (
	KindCreated Kind = iota
	KindEscalated
	KindResolved
)

// Notification represents an alert lifecycle change to announce
type Notification struct {
	Kind           Kind
	Title          string
	Message        string
	RepositoryID   string
	RepositoryName string
	Reason         domain.StuckReason
	Severity       domain.Severity
}

// FromAlert builds a notification for an alert transition.
func FromAlert(kind Kind, alert *domain.StuckAlert) Notification {
	n := Notification{
		Kind:           kind,
		RepositoryID:   alert.RepositoryID,
		RepositoryName: alert.RepositoryName,
		Reason:         alert.Reason,
		Severity:       alert.Severity,
		Message:        alert.Description,
	}
	switch kind {
	case KindCreated:
		n.Title = alert.RepositoryName + " is stuck"
	case KindEscalated:
		n.Title = alert.RepositoryName + " escalated to " + string(alert.Severity)
	case KindResolved:
		n.Title = alert.RepositoryName + " recovered"
		n.Message = ""
	}
	return n
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
