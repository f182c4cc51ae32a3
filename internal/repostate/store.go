// Package repostate keeps the in-memory live state of every monitored
// repository. The store is the only writer of RepoSessionState; stream
// events are applied through it and everything downstream works on
// copies.
package repostate

import (
	"sort"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
	"github.com/hochfrequenz/claude-session-monitor/internal/streamprotocol"
)

// Store maps repository id to current session state. Events are applied
// last-writer-wins by event timestamp: a frame older than the
// repository's recorded last activity is dropped, so network reordering
// cannot roll state backwards.
type Store struct {
	mu      sync.RWMutex
	repos   map[string]*domain.RepoSessionState
	subs    map[int64]chan *domain.RepoSessionState
	nextSub int64
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		repos: make(map[string]*domain.RepoSessionState),
		subs:  make(map[int64]chan *domain.RepoSessionState),
	}
}

// Apply applies one stream event and returns a copy of the updated
// state. It returns nil when the event was dropped: stale timestamp, or
// a non-snapshot event referencing a repository we have never seen.
func (s *Store) Apply(ev streamprotocol.Event) *domain.RepoSessionState {
	s.mu.Lock()

	state, known := s.repos[ev.Repository()]
	if !known {
		// Only a full snapshot may introduce a repository. Task and
		// stuck events without prior state have nothing to attach to.
		if _, ok := ev.(*streamprotocol.RepoStateEvent); !ok {
			s.mu.Unlock()
			return nil
		}
		state = &domain.RepoSessionState{
			RepositoryID: ev.Repository(),
			ClaudeStatus: domain.ClaudeIdle,
		}
		s.repos[ev.Repository()] = state
	}

	if known && ev.EventTime().Before(state.LastActivity) {
		// Stale frame, already superseded. Handled silently.
		s.mu.Unlock()
		return nil
	}

	apply(state, ev)
	state.LastActivity = ev.EventTime()

	out := state.Clone()
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- out.Clone():
		default:
			// Slow subscriber keeps only what it already has.
		}
	}
	return out
}

// apply mutates state according to one event. Caller holds the lock.
func apply(state *domain.RepoSessionState, ev streamprotocol.Event) {
	switch e := ev.(type) {
	case *streamprotocol.RepoStateEvent:
		if e.RepositoryName != "" {
			state.RepositoryName = e.RepositoryName
		}
		state.ClaudeStatus = e.ClaudeStatus
		state.SessionID = e.SessionID
		state.SessionStatus = e.SessionStatus
		state.TimeElapsed = msToDuration(e.TimeElapsedMs)
		state.NeedsAttention = e.NeedsAttention
		setTask(state, taskFromPayload(e.CurrentTask), e)

	case *streamprotocol.TaskUpdateEvent:
		task := taskFromPayload(&e.Task)
		setTask(state, task, e)

	case *streamprotocol.TaskOutputEvent:
		// Output is activity; LastActivity advances below.

	case *streamprotocol.StuckDetectedEvent:
		state.NeedsAttention = true
		state.ClaudeStatus = domain.ClaudeStuck

	case *streamprotocol.StuckEscalatedEvent:
		state.NeedsAttention = true

	case *streamprotocol.StuckResolvedEvent:
		state.NeedsAttention = false
		if state.ClaudeStatus == domain.ClaudeStuck {
			state.ClaudeStatus = domain.ClaudeIdle
		}
	}

	// Waiting-input bookkeeping follows the resulting status.
	if state.ClaudeStatus == domain.ClaudeWaitingInput {
		if state.WaitingInputSince.IsZero() {
			state.WaitingInputSince = ev.EventTime()
		}
	} else {
		state.WaitingInputSince = time.Time{}
	}

	// QA bookkeeping follows the resulting task.
	if state.CurrentTask != nil && state.CurrentTask.Status == domain.TaskQABlocked {
		if state.QABlockedSince.IsZero() {
			state.QABlockedSince = ev.EventTime()
		}
	} else {
		state.QABlockedSince = time.Time{}
	}
}

// setTask replaces the current task and maintains the consecutive
// failure counter: a transition into failed increments, any completion
// resets.
func setTask(state *domain.RepoSessionState, task *domain.TaskInfo, ev streamprotocol.Event) {
	prev := state.CurrentTask
	state.CurrentTask = task

	if task == nil {
		return
	}

	switch task.Status {
	case domain.TaskFailed:
		alreadyFailed := prev != nil && prev.ID == task.ID && prev.Status == domain.TaskFailed
		if !alreadyFailed {
			state.ConsecutiveFailures++
			state.LastFailureAt = ev.EventTime()
		}
	case domain.TaskCompleted:
		state.ConsecutiveFailures = 0
		state.LastFailureAt = time.Time{}
	}
}

func taskFromPayload(p *streamprotocol.TaskPayload) *domain.TaskInfo {
	if p == nil {
		return nil
	}
	task := &domain.TaskInfo{
		ID:     p.ID,
		Prompt: p.Prompt,
		Status: p.Status,
	}
	if p.Progress != nil {
		progress := *p.Progress
		task.Progress = &progress
	}
	return task
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Get returns a copy of one repository's state.
func (s *Store) Get(repoID string) (*domain.RepoSessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.repos[repoID]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// GetAll returns copies of every repository's state, ordered by
// repository name for stable presentation.
func (s *Store) GetAll() []*domain.RepoSessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RepoSessionState, 0, len(s.repos))
	for _, state := range s.repos {
		out = append(out, state.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RepositoryName != out[j].RepositoryName {
			return out[i].RepositoryName < out[j].RepositoryName
		}
		return out[i].RepositoryID < out[j].RepositoryID
	})
	return out
}

// Subscribe registers for state change notifications. The returned
// cancel func must be called to release the subscription.
func (s *Store) Subscribe(buffer int) (<-chan *domain.RepoSessionState, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *domain.RepoSessionState, buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Remove deletes a repository's state. Alert and pending-operation
// teardown is the caller's job and must happen after this returns.
func (s *Store) Remove(repoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.repos[repoID]; !ok {
		return false
	}
	delete(s.repos, repoID)
	return true
}

// Close releases all subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) snapshotSubs() []chan *domain.RepoSessionState {
	out := make([]chan *domain.RepoSessionState, 0, len(s.subs))
	for _, ch := range s.subs {
		out = append(out, ch)
	}
	return out
}
