package server

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"commentdedup/session"
)

// RegistryOptions ограничения реестра. Ограничения касаются только
// завершенных сессий: выполняющиеся сессии не удаляются.
type RegistryOptions struct {
	// TTL сколько хранится завершенная сессия, 0 - без ограничения
	TTL time.Duration
	// MaxSessions сколько сессий хранится, 0 - без ограничения
	MaxSessions int
	Logger      *slog.Logger
}

// SessionRegistry хранит сессии, запущенные через API
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	opts     RegistryOptions
	now      func() time.Time
}

// NewSessionRegistry создает пустой реестр
func NewSessionRegistry(opts RegistryOptions) *SessionRegistry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SessionRegistry{
		sessions: make(map[string]*session.Session),
		opts:     opts,
		now:      time.Now,
	}
}

// Add регистрирует сессию, предварительно удаляя устаревшие
func (r *SessionRegistry) Add(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.evictLocked()
}

// Get возвращает сессию по ID
func (r *SessionRegistry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List возвращает сессии в порядке запуска
func (r *SessionRegistry) List() []*session.Session {
	r.mu.RLock()
	list := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].StartedAt().Before(list[j].StartedAt())
	})
	return list
}

// Evict удаляет завершенные сессии старше TTL, затем самые давно
// завершенные, пока сессий больше MaxSessions. Возвращает число удаленных.
func (r *SessionRegistry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked()
}

func (r *SessionRegistry) evictLocked() int {
	var finished []*session.Session
	for _, s := range r.sessions {
		if !s.FinishedAt().IsZero() {
			finished = append(finished, s)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt().Before(finished[j].FinishedAt())
	})

	evicted := 0
	now := r.now()
	for _, s := range finished {
		expired := r.opts.TTL > 0 && now.Sub(s.FinishedAt()) > r.opts.TTL
		overflow := r.opts.MaxSessions > 0 && len(r.sessions) > r.opts.MaxSessions
		if !expired && !overflow {
			// Остальные завершились позже: не старше и не лишние
			break
		}
		delete(r.sessions, s.ID)
		if err := s.Close(); err != nil {
			r.opts.Logger.Warn("[Registry] failed to release session", "session_id", s.ID, "error", err)
		}
		evicted++
	}
	if evicted > 0 {
		r.opts.Logger.Info("[Registry] sessions evicted", "evicted", evicted, "remaining", len(r.sessions))
	}
	return evicted
}

// Run периодически удаляет устаревшие сессии до отмены done
func (r *SessionRegistry) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}

// CancelAll отменяет все незавершенные сессии
func (r *SessionRegistry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Cancel()
	}
}
