// Package dashboard wires the monitoring core together: stream events
// flow through the repo state store, the stuck detector, and the alert
// manager, while user intents go out through the mutation client with
// optimistic tracking. One Session per dashboard; construct explicitly
// and dispose by cancelling Run's context.
package dashboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/claude-session-monitor/internal/alerthistory"
	"github.com/hochfrequenz/claude-session-monitor/internal/config"
	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
	"github.com/hochfrequenz/claude-session-monitor/internal/intents"
	"github.com/hochfrequenz/claude-session-monitor/internal/notify"
	"github.com/hochfrequenz/claude-session-monitor/internal/optimistic"
	"github.com/hochfrequenz/claude-session-monitor/internal/repostate"
	"github.com/hochfrequenz/claude-session-monitor/internal/stream"
	"github.com/hochfrequenz/claude-session-monitor/internal/streamprotocol"
	"github.com/hochfrequenz/claude-session-monitor/internal/stuck"
)

// AlertListener observes alert lifecycle transitions
// (created/escalated/resolved), used by the API layer to rebroadcast.
type AlertListener func(transition string, alert *domain.StuckAlert)

// StateListener observes repository state changes.
type StateListener func(state *domain.RepoSessionState)

// ConnListener observes transport status changes.
type ConnListener func(status stream.Status)

// Options configures optional session collaborators.
type Options struct {
	History  *alerthistory.Store // nil disables persistence
	Notifier notify.Notifier     // nil disables notifications
	OnAlert  AlertListener
	OnState  StateListener
	OnConn   ConnListener
}

// Session is one dashboard's reconciliation engine.
type Session struct {
	store     *repostate.Store
	manager   *stuck.Manager
	tracker   *optimistic.Tracker
	stream    *stream.Client
	mutations *intents.Client
	cron      *cron.Cron

	history  *alerthistory.Store
	notifier notify.Notifier
	onAlert  AlertListener
	onState  StateListener
	onConn   ConnListener

	retention time.Duration

	detectionMu sync.RWMutex
	detection   stuck.Config

	connMu sync.RWMutex
	conn   stream.Status
}

// New builds a session from configuration. Nothing runs until Run is
// called.
func New(cfg *config.Config, opts Options) *Session {
	s := &Session{
		store:     repostate.New(),
		manager:   stuck.NewManager(),
		tracker:   optimistic.NewTracker(),
		mutations: intents.NewClient(cfg.Monitor.MutationAPIURL),
		cron:      cron.New(),
		history:   opts.History,
		notifier:  opts.Notifier,
		onAlert:   opts.OnAlert,
		onState:   opts.OnState,
		onConn:    opts.OnConn,
		retention: time.Duration(cfg.Monitor.HistoryRetentionDays) * 24 * time.Hour,
		detection: cfg.Detection,
	}
	if s.notifier == nil {
		s.notifier = notify.NoopNotifier{}
	}

	s.stream = stream.NewClient(cfg.Monitor.StreamURL, s.HandleEvent, s.handleConnStatus)

	s.cron.AddFunc("@every 10s", func() { s.Sweep(time.Now()) })
	s.cron.AddFunc("@every 10s", s.cleanupStaleOperations)
	if s.history != nil && s.retention > 0 {
		s.cron.AddFunc("@every 1h", s.pruneHistory)
	}
	return s
}

// Run drives the session until ctx is cancelled. Transport failures are
// recovered internally; Run only returns on cancellation.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.stream.Run(ctx)
	})

	g.Go(func() error {
		s.cron.Start()
		<-ctx.Done()
		// Wait for in-flight jobs so timers never fire against a
		// disposed session.
		<-s.cron.Stop().Done()
		return nil
	})

	err := g.Wait()
	s.store.Close()
	return err
}

// HandleEvent is the single ingestion point for stream events: apply to
// the store, then reconcile alerts against the fresh state. Evaluation
// uses the event's own timestamp so the engine stays free of wall-clock
// coupling. The stream client feeds this; tests and replay tooling may
// call it directly.
func (s *Session) HandleEvent(ev streamprotocol.Event) {
	state := s.store.Apply(ev)
	if state == nil {
		return // stale or unattached event, dropped
	}

	if s.onState != nil {
		s.onState(state)
	}

	s.evaluate(state, ev.EventTime())
}

// Sweep re-evaluates every repository against the clock. Events refresh
// activity timestamps, so the conditions that matter most are the ones
// where nothing arrives; the sweep is what surfaces those.
func (s *Session) Sweep(now time.Time) {
	for _, state := range s.store.GetAll() {
		s.evaluate(state, now)
	}
}

func (s *Session) evaluate(state *domain.RepoSessionState, now time.Time) {
	cfg := s.Detection()
	if !cfg.Enabled {
		// Detection off: existing alerts freeze, neither cleared nor
		// escalated.
		return
	}

	cond := stuck.Evaluate(state, cfg, now)
	res := s.manager.Reconcile(state, cond, now)

	if res.Resolved != nil {
		s.announce(alerthistory.TransitionResolved, notify.KindResolved, res.Resolved, cfg)
	}
	if res.Created != nil {
		s.announce(alerthistory.TransitionCreated, notify.KindCreated, res.Created, cfg)
	}
	if res.Escalated != nil {
		s.announce(alerthistory.TransitionEscalated, notify.KindEscalated, res.Escalated, cfg)
	}
}

func (s *Session) announce(transition string, kind notify.Kind, alert *domain.StuckAlert, cfg stuck.Config) {
	if s.history != nil {
		if err := s.history.Record(transition, alert); err != nil {
			log.Printf("dashboard: recording alert history: %v", err)
		}
	}

	if s.onAlert != nil {
		s.onAlert(transition, alert)
	}

	// Acknowledged alerts escalate quietly; the operator already knows.
	if kind == notify.KindEscalated && alert.Acknowledged {
		return
	}
	if !cfg.EnableToastNotifications && !cfg.EnableSoundAlerts {
		return
	}
	if err := s.notifier.Send(notify.FromAlert(kind, alert)); err != nil {
		log.Printf("dashboard: notification failed: %v", err)
	}
}

func (s *Session) handleConnStatus(status stream.Status) {
	s.connMu.Lock()
	s.conn = status
	s.connMu.Unlock()

	if s.onConn != nil {
		s.onConn(status)
	}
}

// Connection reports the current transport status. Repo state is
// retained across disconnects; consumers keep showing last-known data.
func (s *Session) Connection() stream.Status {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

// Reconnect forces an immediate stream retry.
func (s *Session) Reconnect() {
	s.stream.Reconnect()
}

// Repos returns a snapshot of all monitored repositories.
func (s *Session) Repos() []*domain.RepoSessionState {
	return s.store.GetAll()
}

// Repo returns one repository's state.
func (s *Session) Repo(repoID string) (*domain.RepoSessionState, bool) {
	return s.store.Get(repoID)
}

// Status returns the derived alert view.
func (s *Session) Status() domain.StuckStatus {
	return s.manager.Status()
}

// Detection returns the active detection config.
func (s *Session) Detection() stuck.Config {
	s.detectionMu.RLock()
	defer s.detectionMu.RUnlock()
	return s.detection
}

// ApplyDetection swaps the local detection config after validation,
// used by the config hot-reload path.
func (s *Session) ApplyDetection(cfg stuck.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.detectionMu.Lock()
	s.detection = cfg
	s.detectionMu.Unlock()
	return nil
}

// PauseSession optimistically pauses a repository's session and
// reconciles against the mutation API's verdict.
func (s *Session) PauseSession(ctx context.Context, repoID string) error {
	return s.sessionIntent(ctx, repoID, domain.SessionPaused, s.mutations.PauseSession)
}

// ResumeSession optimistically resumes a paused session.
func (s *Session) ResumeSession(ctx context.Context, repoID string) error {
	return s.sessionIntent(ctx, repoID, domain.SessionActive, s.mutations.ResumeSession)
}

func (s *Session) sessionIntent(ctx context.Context, repoID string, want domain.SessionStatus,
	send func(context.Context, string, string, string) error) error {

	state, ok := s.store.Get(repoID)
	if !ok {
		return fmt.Errorf("unknown repository %q", repoID)
	}
	if state.SessionID == "" {
		return fmt.Errorf("repository %q has no active session", repoID)
	}

	op := s.tracker.Register(domain.PendingOperation{
		OperationID:     uuid.NewString(),
		EntityType:      domain.EntitySession,
		EntityID:        state.SessionID,
		OptimisticState: want,
		OriginalState:   state.SessionStatus,
		StartedAt:       time.Now(),
	})

	if err := send(ctx, repoID, state.SessionID, op.OperationID); err != nil {
		// Rollback for the same operation only; a newer intent must
		// not be disturbed by this failure.
		s.tracker.Rollback(domain.EntitySession, state.SessionID, op.OperationID)
		return err
	}

	s.tracker.Confirm(domain.EntitySession, state.SessionID, op.OperationID)
	return nil
}

// AcknowledgeAlert marks a repository's active alert as seen, locally
// first for immediate feedback, then server-side. The local flag is
// authoritative for alert lifecycle purposes; a server rejection is
// surfaced but does not un-acknowledge.
func (s *Session) AcknowledgeAlert(ctx context.Context, repoID string) error {
	if !s.manager.Acknowledge(repoID) {
		return fmt.Errorf("repository %q has no active alert", repoID)
	}

	op := s.tracker.Register(domain.PendingOperation{
		OperationID:     uuid.NewString(),
		EntityType:      domain.EntityTask,
		EntityID:        "ack:" + repoID,
		OptimisticState: true,
		StartedAt:       time.Now(),
	})

	if err := s.mutations.AcknowledgeAlert(ctx, repoID, op.OperationID); err != nil {
		s.tracker.Rollback(domain.EntityTask, "ack:"+repoID, op.OperationID)
		return err
	}
	s.tracker.Confirm(domain.EntityTask, "ack:"+repoID, op.OperationID)
	return nil
}

// UpdateDetectionConfig applies a new detection config optimistically
// and pushes it to the mutation API; on rejection the prior config is
// restored.
func (s *Session) UpdateDetectionConfig(ctx context.Context, cfg stuck.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.detectionMu.Lock()
	prev := s.detection
	s.detection = cfg
	s.detectionMu.Unlock()

	if err := s.mutations.UpdateDetectionConfig(ctx, cfg); err != nil {
		s.detectionMu.Lock()
		s.detection = prev
		s.detectionMu.Unlock()
		return err
	}
	return nil
}

// ResetDetectionConfig restores defaults locally and server-side.
func (s *Session) ResetDetectionConfig(ctx context.Context) error {
	s.detectionMu.Lock()
	prev := s.detection
	s.detection = stuck.DefaultConfig()
	s.detectionMu.Unlock()

	if err := s.mutations.ResetDetectionConfig(ctx); err != nil {
		s.detectionMu.Lock()
		s.detection = prev
		s.detectionMu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe stops monitoring a repository: state, alert, and pending
// operations are cleared synchronously, in that order, so nothing
// dangles in the alert or tracker maps.
func (s *Session) Unsubscribe(repoID string) {
	state, _ := s.store.Get(repoID)

	s.store.Remove(repoID)
	s.manager.Remove(repoID)
	s.tracker.RemoveMatching(func(op domain.PendingOperation) bool {
		if state != nil && state.SessionID != "" && op.EntityID == state.SessionID {
			return true
		}
		return op.EntityID == "ack:"+repoID || op.EntityID == repoID
	})
}

// PendingOperations reports how many intents await confirmation.
func (s *Session) PendingOperations() int {
	return s.tracker.Len()
}

func (s *Session) cleanupStaleOperations() {
	dropped := s.tracker.CleanupStale(time.Now())
	for _, op := range dropped {
		log.Printf("dashboard: dropping stale %s operation %s for %s", op.EntityType, op.OperationID, op.EntityID)
	}
}

func (s *Session) pruneHistory() {
	n, err := s.history.Prune(time.Now().Add(-s.retention))
	if err != nil {
		log.Printf("dashboard: pruning alert history: %v", err)
		return
	}
	if n > 0 {
		log.Printf("dashboard: pruned %d alert history entries", n)
	}
}
