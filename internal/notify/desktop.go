package notify

import (
	"os/exec"
	"runtime"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// DesktopNotifier sends desktop toast notifications
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil // Unsupported
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + n.Message + `" with title "` + n.Title + `"`
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	cmd := exec.Command("notify-send", "--urgency", urgencyFor(n.Severity), "--icon", iconFor(n.Kind), n.Title, n.Message)
	return cmd.Run()
}

func urgencyFor(s domain.Severity) string {
	switch s {
	case domain.SeverityHigh, domain.SeverityCritical:
		return "critical"
	case domain.SeverityMedium:
		return "normal"
	default:
		return "low"
	}
}

func iconFor(k Kind) string {
	switch k {
	case KindResolved:
		return "dialog-positive"
	case KindEscalated:
		return "dialog-error"
	default:
		return "dialog-warning"
	}
}
