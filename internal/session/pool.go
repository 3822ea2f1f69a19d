// Package session manages the bounded set of browser identities used by the
// crawl. Each session pairs a proxy endpoint with usage and error counters;
// capping both limits the blast radius of a burnt identity and spreads
// request volume, the primary lever against volume-based bot detection.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hireloop/jobharvester/internal/proxy"
)

// ErrPoolExhausted indicates the pool is at capacity with every session
// mid-use. The orchestrator keeps concurrency at or below pool capacity, so
// callers treat this as a configuration fault rather than a wait condition.
var ErrPoolExhausted = errors.New("session pool exhausted")

// Outcome reports how a task that used a session ended.
type Outcome string

// Release outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Session is one identity/proxy pairing. Counters only ever increase; the
// pool retires the session once either cap is crossed.
type Session struct {
	ID    string
	Proxy proxy.Handle

	usageCount int
	errorScore int
	inUse      bool
	warmedUp   bool
}

// UsageCount returns how many tasks have released this session.
func (s *Session) UsageCount() int { return s.usageCount }

// ErrorScore returns how many of those releases reported an error.
func (s *Session) ErrorScore() int { return s.errorScore }

// WarmedUp reports whether the warm-up visit already ran for this session.
func (s *Session) WarmedUp() bool { return s.warmedUp }

// MarkWarmedUp records that the warm-up visit completed.
func (s *Session) MarkWarmedUp() { s.warmedUp = true }

// Config bounds the pool.
type Config struct {
	Capacity int // max concurrent identities (default 10)
	UsageCap int // tasks per identity before retirement (default 5)
	ErrorCap int // errors per identity before retirement (default 3)
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 10
	}
	if c.UsageCap <= 0 {
		c.UsageCap = 5
	}
	if c.ErrorCap <= 0 {
		c.ErrorCap = 3
	}
	return c
}

// Pool owns the active session set. All methods are safe for concurrent use.
type Pool struct {
	cfg     Config
	proxies proxy.Provider
	logger  *zap.Logger

	mu     sync.Mutex
	active []*Session

	created int
	retired int
}

// NewPool builds a pool that draws proxy handles from the provider.
func NewPool(cfg Config, proxies proxy.Provider, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:     cfg.withDefaults(),
		proxies: proxies,
		logger:  logger,
	}
}

// Acquire returns an idle active session, creating a fresh one when the pool
// has free capacity. It fails with ErrPoolExhausted when every slot is
// mid-use; it never blocks.
func (p *Pool) Acquire() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.active {
		if !s.inUse {
			s.inUse = true
			return s, nil
		}
	}
	if len(p.active) >= p.cfg.Capacity {
		return nil, ErrPoolExhausted
	}

	s := &Session{ID: uuid.NewString(), inUse: true}
	if p.proxies != nil {
		s.Proxy = p.proxies.Next()
	}
	p.active = append(p.active, s)
	p.created++
	p.logger.Debug("session created",
		zap.String("session_id", s.ID),
		zap.String("proxy", s.Proxy.Server),
		zap.Int("active", len(p.active)),
	)
	return s, nil
}

// Release returns a session to the pool, bumping its counters per the
// outcome. Crossing either cap retires the session so a future Acquire binds
// a replacement to a fresh identity.
func (p *Pool) Release(s *Session, outcome Outcome) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s.inUse = false
	s.usageCount++
	if outcome == OutcomeError {
		s.errorScore++
	}
	if s.usageCount >= p.cfg.UsageCap || s.errorScore >= p.cfg.ErrorCap {
		p.retire(s)
	}
}

// Retire removes a session from the active set immediately, regardless of
// its counters. Used when a session is known burnt (e.g. challenge timeout).
func (p *Pool) Retire(s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s.inUse = false
	p.retire(s)
}

func (p *Pool) retire(s *Session) {
	for i, candidate := range p.active {
		if candidate == s {
			p.active = append(p.active[:i], p.active[i+1:]...)
			p.retired++
			p.logger.Debug("session retired",
				zap.String("session_id", s.ID),
				zap.Int("usage_count", s.usageCount),
				zap.Int("error_score", s.errorScore),
				zap.Int("active", len(p.active)),
			)
			return
		}
	}
}

// ActiveCount reports the number of sessions currently in the active set.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Stats returns lifetime created/retired counts.
func (p *Pool) Stats() (created, retired int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, p.retired
}
