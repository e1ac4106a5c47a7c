package recipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/inspector"
	"tinking/backend/internal/models"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/store"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("recipe: session not found")

const draftTimeout = 5 * time.Second

// ManagerObserver extends Observer with session and draft bookkeeping.
type ManagerObserver interface {
	Observer
	SessionsActive(n int)
	DraftSaved(err error)
}

type nopManagerObserver struct{ nopObserver }

func (nopManagerObserver) SessionsActive(int) {}
func (nopManagerObserver) DraftSaved(error)   {}

// Session is one editing session: an editor bound to a page.
type Session struct {
	ID        string
	Editor    *Editor
	Relay     *Relay
	CreatedAt time.Time

	// Page and local are set when the page is inspected in process.
	Page  *dom.Page
	local *Local

	mu      sync.Mutex
	closers []func()
}

// Local reports whether the page is inspected in process.
func (s *Session) Local() bool {
	return s.local != nil
}

// Host returns the in-process inspector, or nil for remote sessions.
func (s *Session) Host() *inspector.Host {
	if s.local == nil {
		return nil
	}
	return s.local.Host()
}

// OnClose registers fn to run after the session is closed.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

func (s *Session) close() {
	if err := s.Editor.Close(); err != nil && !errors.Is(err, ErrRelayClosed) {
		s.Editor.logger.Debug("close commands not delivered", "recipe", s.ID, "error", err)
	}
	if s.local != nil {
		s.local.Close()
	}
	s.Relay.Close()

	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()
	for _, fn := range closers {
		fn()
	}
}

// fanout sends each command to every sender, stopping at nothing.
type fanout []Sender

func (f fanout) Send(cmd protocol.Command) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ManagerConfig struct {
	Drafts         store.DraftStore
	DebounceWindow time.Duration
	Observer       ManagerObserver
	Logger         *slog.Logger
}

// Manager is the registry of editing sessions.
type Manager struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
	drafts   store.DraftStore
	window   time.Duration
	observer ManagerObserver
	logger   *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		drafts:   cfg.Drafts,
		window:   cfg.DebounceWindow,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
	if m.observer == nil {
		m.observer = nopManagerObserver{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Create opens a session on pageURL. With a page the inspector runs in
// process; without one, commands go to remote pages through the relay.
func (m *Manager) Create(ctx context.Context, pageURL string, page *dom.Page) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.build(uuid.New().String(), pageURL, nil, page)

	m.mutex.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mutex.Unlock()

	m.observer.SessionsActive(n)
	m.logger.Info("recipe session created", "recipe", s.ID, "url", pageURL, "local", s.Local())
	return s, nil
}

func (m *Manager) build(id, pageURL string, steps []models.Step, page *dom.Page) *Session {
	s := &Session{
		ID:        id,
		Relay:     NewRelay(m.logger),
		CreatedAt: time.Now(),
		Page:      page,
	}
	var sender Sender = s.Relay
	var editorPage Page
	if page != nil {
		s.local = NewLocal(page, m.logger.With("recipe", id))
		sender = fanout{s.local, s.Relay}
		editorPage = page
	}

	cfg := Config{
		ID:             id,
		StartURL:       pageURL,
		Steps:          steps,
		Page:           editorPage,
		Sender:         sender,
		DebounceWindow: m.window,
		Observer:       m.observer,
		Logger:         m.logger,
	}
	if m.drafts != nil {
		cfg.SaveDraft = m.saveDraft(id)
	}
	s.Editor = NewEditor(cfg)

	if s.local != nil {
		s.local.Bind(func(ev protocol.Event) {
			if _, err := s.Editor.HandleEvent(ev); err != nil {
				m.logger.Warn("page event rejected", "recipe", id, "event", ev.EventType(), "error", err)
			}
		})
	}
	return s
}

func (m *Manager) saveDraft(id string) func([]models.Step) {
	return func(steps []models.Step) {
		ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
		defer cancel()
		err := m.drafts.SaveDraft(ctx, id, steps)
		m.observer.DraftSaved(err)
		if err != nil {
			m.logger.Error("draft save failed", "recipe", id, "error", err)
		}
	}
}

// Get returns a live session. A session that expired but left a draft is
// reopened in remote mode.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mutex.RLock()
	s, ok := m.sessions[id]
	m.mutex.RUnlock()
	if ok {
		return s, nil
	}
	if m.drafts == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	steps, err := m.drafts.LoadDraft(ctx, id)
	if errors.Is(err, store.ErrDraftNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("recipe: restore %s: %w", id, err)
	}
	if err := models.ValidateSteps(steps); err != nil {
		return nil, fmt.Errorf("recipe: restore %s: %w", id, err)
	}

	m.mutex.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mutex.Unlock()
		return existing, nil
	}
	s = m.build(id, models.StartURL(steps), steps, nil)
	m.sessions[id] = s
	n := len(m.sessions)
	m.mutex.Unlock()

	m.observer.SessionsActive(n)
	m.logger.Info("recipe session restored from draft", "recipe", id)
	return s, nil
}

// Delete closes a session and removes its draft.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mutex.Unlock()

	if ok {
		s.close()
		m.observer.SessionsActive(n)
	}
	if m.drafts == nil {
		if !ok {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil
	}
	if !ok {
		if _, err := m.drafts.LoadDraft(ctx, id); errors.Is(err, store.ErrDraftNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
	}
	if err := m.drafts.DeleteDraft(ctx, id); err != nil {
		return fmt.Errorf("recipe: delete draft %s: %w", id, err)
	}
	return nil
}

// Expire closes sessions idle for longer than ttl. Their drafts are kept,
// so Get can bring them back.
func (m *Manager) Expire(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)
	var expired []*Session

	m.mutex.Lock()
	for id, s := range m.sessions {
		if s.Editor.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mutex.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		s.close()
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	if len(expired) > 0 {
		m.observer.SessionsActive(n)
		m.logger.Info("idle recipe sessions expired", "count", len(expired))
	}
	return ids
}

// IDs lists the live sessions.
func (m *Manager) IDs() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session, flushing drafts.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.close()
	}
	m.observer.SessionsActive(0)
}
