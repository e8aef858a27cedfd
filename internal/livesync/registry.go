package livesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

type sessionKey struct {
	condominiumID snowflake.ID
	year          int
}

type registryEntry struct {
	refs    int
	ready   chan struct{}
	session *Session
	err     error
}

// Registry shares one Session per condominium and year between all viewers.
// The session is closed when its last viewer releases it.
type Registry struct {
	ctrl *Controller
	log  *zap.Logger

	mu      sync.Mutex
	entries map[sessionKey]*registryEntry
	closed  bool
}

func NewRegistry(ctrl *Controller) *Registry {
	return &Registry{
		ctrl:    ctrl,
		log:     ctrl.log.Named("registry"),
		entries: make(map[sessionKey]*registryEntry),
	}
}

// Acquire returns the shared session for condominiumID and year, activating
// it on first use. The returned release func must be called exactly once
// per successful Acquire; extra calls are ignored.
func (r *Registry) Acquire(ctx context.Context, condominiumID snowflake.ID, year int) (*Session, func(), error) {
	key := sessionKey{condominiumID: condominiumID, year: year}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrSessionClosed
	}
	entry, ok := r.entries[key]
	if ok {
		entry.refs++
		r.mu.Unlock()

		select {
		case <-entry.ready:
		case <-ctx.Done():
			r.release(key, entry)
			return nil, nil, ctx.Err()
		}
		if entry.err != nil {
			r.release(key, entry)
			return nil, nil, entry.err
		}
		return entry.session, r.releaseFunc(key, entry), nil
	}

	entry = &registryEntry{refs: 1, ready: make(chan struct{})}
	r.entries[key] = entry
	r.mu.Unlock()

	session, err := r.ctrl.Activate(ctx, condominiumID, year)
	if err != nil {
		err = fmt.Errorf("activate live session: %w", err)
	}
	entry.session, entry.err = session, err
	close(entry.ready)

	if err != nil {
		r.release(key, entry)
		return nil, nil, err
	}
	return session, r.releaseFunc(key, entry), nil
}

func (r *Registry) releaseFunc(key sessionKey, entry *registryEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, entry) })
	}
}

func (r *Registry) release(key sessionKey, entry *registryEntry) {
	r.mu.Lock()
	entry.refs--
	last := entry.refs == 0
	if last && r.entries[key] == entry {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if last && entry.session != nil {
		_ = entry.session.Close()
	}
}

// Active reports how many sessions are currently running.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close shuts down every session regardless of outstanding references.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[sessionKey]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		<-entry.ready
		if entry.session != nil {
			_ = entry.session.Close()
		}
	}
	r.log.Info("live sessions closed", zap.Int("count", len(entries)))
	return nil
}
