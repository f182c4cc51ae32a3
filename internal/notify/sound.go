package notify

import (
	"os/exec"
	"runtime"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// SoundNotifier plays an audible alert for new and escalated stuck
// alerts. Resolutions stay silent.
type SoundNotifier struct {
	enabled bool
}

// NewSoundNotifier creates a new sound notifier
func NewSoundNotifier(enabled bool) *SoundNotifier {
	return &SoundNotifier{enabled: enabled}
}

// Send plays the alert sound
func (s *SoundNotifier) Send(n Notification) error {
	if !s.enabled || n.Kind == KindResolved {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		name := "Ping"
		if n.Severity == domain.SeverityCritical {
			name = "Sosumi"
		}
		return exec.Command("afplay", "/System/Library/Sounds/"+name+".aiff").Run()
	case "linux":
		return exec.Command("paplay", "/usr/share/sounds/freedesktop/stereo/bell.oga").Run()
	default:
		return nil // Unsupported
	}
}
