package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/metrics"
	"github.com/thatsimonsguy/intersection-view/internal/view"
)

type entry struct {
	session *Session
	refs    int
}

// Hub keeps one session per road for as long as anyone holds it.
type Hub struct {
	ctx  context.Context
	opts Options

	mu      sync.Mutex
	entries map[int]*entry
	closed  bool
}

func NewHub(ctx context.Context, opts Options) *Hub {
	return &Hub{ctx: ctx, opts: opts, entries: make(map[int]*entry)}
}

// Acquire returns the session for roadID, opening it on first use. Each Acquire needs a
// matching Release. The registry is read without holding the hub lock.
func (h *Hub) Acquire(ctx context.Context, roadID int) (*Session, error) {
	if s, ok := h.hold(roadID); ok {
		return s, nil
	}

	if h.opts.Roads == nil {
		return nil, errNoRegistry
	}
	road, err := h.opts.Roads.GetRoad(ctx, roadID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	// Another caller may have opened the road while the registry was read.
	if e, ok := h.entries[roadID]; ok {
		e.refs++
		return e.session, nil
	}

	s := Open(h.ctx, road, h.opts)
	h.entries[roadID] = &entry{session: s, refs: 1}
	metrics.SetActiveSessions(len(h.entries))
	return s, nil
}

func (h *Hub) hold(roadID int) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[roadID]
	if !ok {
		return nil, false
	}
	e.refs++
	return e.session, true
}

// Release drops one hold on roadID and closes the session when none remain. It reports
// whether roadID was held.
func (h *Hub) Release(roadID int) bool {
	h.mu.Lock()
	e, ok := h.entries[roadID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	e.refs--
	if e.refs > 0 {
		h.mu.Unlock()
		return true
	}
	delete(h.entries, roadID)
	metrics.SetActiveSessions(len(h.entries))
	h.mu.Unlock()

	e.session.Close()
	return true
}

func (h *Hub) Get(roadID int) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[roadID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// List projects every active session, ordered by road id.
func (h *Hub) List() []view.Intersection {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.entries))
	for _, e := range h.entries {
		sessions = append(sessions, e.session)
	}
	h.mu.Unlock()

	out := make([]view.Intersection, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoadID < out[j].RoadID })
	return out
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[int]*entry)
	h.closed = true
	metrics.SetActiveSessions(0)
	h.mu.Unlock()

	for roadID, e := range entries {
		e.session.Close()
		log.Debug().Int("road_id", roadID).Msg("Closed view at shutdown")
	}
}
