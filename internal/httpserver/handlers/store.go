package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relicta-tech/installkit/internal/httpserver/dto"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = time.Hour

// installWizard is what every wizard flow offers.
type installWizard interface {
	Step() domain.Step
	OnStep(app.Listener)
	Closed() bool
	IsInstalling() bool
	CanInstall() bool
	Title() string
	Retry() bool
	Cancel()
}

type singleInstaller interface {
	Install(ctx context.Context, opts ...app.AttemptOption) app.AttemptOutcome
}

type bundleInstaller interface {
	InstallBundle(ctx context.Context, opts ...app.AttemptOption) app.BundleOutcome
}

// session is one wizard driven over HTTP.
type session struct {
	id      string
	flow    domain.Flow
	wizard  installWizard
	created time.Time

	mu      sync.Mutex
	touched time.Time
	running bool
	cancel  context.CancelFunc
	outcome *dto.OutcomeDTO
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.touched = now
	s.mu.Unlock()
}

// startRun marks an install as running. It returns false when one already is.
func (s *session) startRun(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.cancel = cancel
	return true
}

func (s *session) finishRun(outcome *dto.OutcomeDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running, s.cancel = false, nil
	s.outcome = outcome
	s.touched = outcome.FinishedAt
}

// close cancels the wizard and any running install.
func (s *session) close() {
	s.wizard.Cancel()
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// install runs one attempt, dispatching bundles to the bundle installer.
func (s *session) install(ctx context.Context, opts ...app.AttemptOption) *dto.OutcomeDTO {
	if st, ok := s.wizard.Step().(domain.ReadyToInstallStep); ok && st.IsBundle() {
		if b, ok := s.wizard.(bundleInstaller); ok {
			out := b.InstallBundle(ctx, opts...)
			return dto.FromBundle(out, time.Now().UTC())
		}
	}
	if i, ok := s.wizard.(singleInstaller); ok {
		out := i.Install(ctx, opts...)
		return dto.FromAttempt(out, time.Now().UTC())
	}
	return dto.FromAttempt(app.AttemptOutcome{Status: app.AttemptIgnored}, time.Now().UTC())
}

func (s *session) dto() dto.SessionDTO {
	s.mu.Lock()
	running, outcome := s.running, s.outcome
	s.mu.Unlock()

	out := dto.SessionDTO{
		ID:          s.id,
		Flow:        string(s.flow),
		Title:       s.wizard.Title(),
		Step:        dto.FromStep(s.wizard.Step()),
		Installing:  running || s.wizard.IsInstalling(),
		CanInstall:  !running && s.wizard.CanInstall(),
		Closed:      s.wizard.Closed(),
		LastOutcome: outcome,
		CreatedAt:   s.created,
	}
	if g, ok := s.wizard.(*app.GitHubWizard); ok {
		out.InstalledVersion = g.InstalledVersion()
	}
	return out
}

// SessionStore holds the live sessions.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionStore creates a store expiring sessions idle for longer than ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (st *SessionStore) add(flow domain.Flow, w installWizard) *session {
	now := st.now().UTC()
	s := &session{
		id:      uuid.NewString(),
		flow:    flow,
		wizard:  w,
		created: now,
		touched: now,
	}
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

func (st *SessionStore) get(id string) (*session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		s.touch(st.now().UTC())
	}
	return s, ok
}

func (st *SessionStore) remove(id string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	return s, ok
}

// list returns the sessions, oldest first.
func (st *SessionStore) list() []*session {
	st.mu.RLock()
	out := make([]*session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].created.Before(out[j].created) })
	return out
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	if st == nil {
		return 0
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Prune closes and removes idle sessions that are not installing and
// returns their ids.
func (st *SessionStore) Prune() []string {
	cutoff := st.now().UTC().Add(-st.ttl)

	st.mu.Lock()
	var expired []*session
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := !s.running && s.touched.Before(cutoff)
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		s.close()
		ids = append(ids, s.id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every session.
func (st *SessionStore) Close() {
	st.mu.Lock()
	all := st.sessions
	st.sessions = make(map[string]*session)
	st.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}
