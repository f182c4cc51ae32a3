package stuck

import (
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// Fixed internal thresholds. The configurable knobs cover the common
// cases; these two are deliberately not user-tunable.
const (
	// qaBlockedThresholdSeconds is how long a task may sit behind a QA
	// gate before it counts as stuck.
	qaBlockedThresholdSeconds = 300

	// sessionTimeoutSeconds is the total session duration past which
	// continued inactivity is reported as timeout instead of no_output.
	sessionTimeoutSeconds = 2 * 60 * 60
)

// Evaluate inspects one repository's state and returns its active stuck
// condition, or nil when the repository is healthy. It is a pure
// function of its inputs: the caller supplies now so evaluation is
// reproducible with synthetic timestamps.
//
// Rules are checked in fixed precedence; a repository is never flagged
// for two reasons at once:
//
//  1. repeated_failures
//  2. qa_gate_blocked
//  3. waiting_input
//  4. no_output / timeout
func Evaluate(state *domain.RepoSessionState, cfg Config, now time.Time) *domain.StuckCondition {
	if !cfg.Enabled {
		return nil
	}
	mult := cfg.SensitivityLevel.Multiplier()

	// 1. Consecutive task failures. The condition exists as soon as
	// the count is reached; time only drives escalation.
	if state.ConsecutiveFailures >= cfg.RepeatedFailureCount {
		since := state.LastFailureAt
		elapsed := now.Sub(since)
		sev := severityFor(elapsed, scale(cfg.NoOutputThresholdSeconds, mult))
		if state.ConsecutiveFailures >= 2*cfg.RepeatedFailureCount {
			// Runaway failure loop, skip the usual ramp.
			sev = domain.SeverityCritical
		}
		return condition(domain.ReasonRepeatedFailures, sev, since, elapsed)
	}

	// 2. QA gate blocked continuously.
	if !state.QABlockedSince.IsZero() {
		threshold := scale(qaBlockedThresholdSeconds, mult)
		if elapsed := now.Sub(state.QABlockedSince); elapsed >= threshold {
			return condition(domain.ReasonQAGateBlocked, severityFor(elapsed, threshold), state.QABlockedSince, elapsed)
		}
	}

	// 3. Waiting for user input.
	if state.ClaudeStatus == domain.ClaudeWaitingInput && !state.WaitingInputSince.IsZero() {
		threshold := scale(cfg.WaitingInputThresholdSeconds, mult)
		if elapsed := now.Sub(state.WaitingInputSince); elapsed >= threshold {
			return condition(domain.ReasonWaitingInput, severityFor(elapsed, threshold), state.WaitingInputSince, elapsed)
		}
	}

	// 4. No activity while the session is supposed to be working.
	if state.SessionStatus == domain.SessionActive {
		threshold := scale(cfg.NoOutputThresholdSeconds, mult)
		if elapsed := now.Sub(state.LastActivity); elapsed >= threshold {
			reason := domain.ReasonNoOutput
			if state.TimeElapsed >= scale(sessionTimeoutSeconds, mult) {
				reason = domain.ReasonTimeout
			}
			return condition(reason, severityFor(elapsed, threshold), state.LastActivity, elapsed)
		}
	}

	return nil
}

func condition(reason domain.StuckReason, sev domain.Severity, since time.Time, elapsed time.Duration) *domain.StuckCondition {
	if elapsed < 0 {
		elapsed = 0
	}
	return &domain.StuckCondition{
		Reason:         reason,
		Severity:       sev,
		Since:          since,
		ElapsedSeconds: int(elapsed / time.Second),
	}
}

// severityFor is the monotonic step function over elapsed time:
// low at threshold, medium at 2x, high at 4x, critical at 8x.
func severityFor(elapsed, threshold time.Duration) domain.Severity {
	switch {
	case elapsed >= 8*threshold:
		return domain.SeverityCritical
	case elapsed >= 4*threshold:
		return domain.SeverityHigh
	case elapsed >= 2*threshold:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func scale(seconds int, mult float64) time.Duration {
	return time.Duration(float64(seconds) * mult * float64(time.Second))
}
