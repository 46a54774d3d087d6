package stream

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

type BridgeEndpoint struct {
	ID  model.GroupID
	URL string
}

type Options struct {
	// AnalyticsURL may contain {road}, replaced by the road id. Empty disables the feed.
	AnalyticsURL string
	Bridges      []BridgeEndpoint
	Strategy     Strategy
	Dialer       Dialer
}

// Manager opens the feeds of one intersection as a single scope.
type Manager struct {
	opts Options
}

func NewManager(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Strategy == nil {
		opts.Strategy = NoReconnect{}
	}
	return &Manager{opts: opts}
}

// Endpoints lists the feeds a scope for roadID holds, analytics first.
func (m *Manager) Endpoints(roadID int) []Endpoint {
	var eps []Endpoint
	if m.opts.AnalyticsURL != "" {
		eps = append(eps, Endpoint{
			Source: Analytics,
			URL:    strings.ReplaceAll(m.opts.AnalyticsURL, "{road}", strconv.Itoa(roadID)),
		})
	}
	for _, b := range m.opts.Bridges {
		eps = append(eps, Endpoint{Source: Bridge(b.ID), URL: b.URL})
	}
	return eps
}

// Open starts one feed per endpoint. The returned scope must be closed on every exit path.
func (m *Manager) Open(ctx context.Context, roadID int, h Handler) *Scope {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scope{cancel: cancel}

	for _, ep := range m.Endpoints(roadID) {
		feed := NewFeed(ep, m.opts.Dialer, m.opts.Strategy, h)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			feed.Run(ctx)
		}()
	}

	log.Debug().Int("road_id", roadID).Int("feeds", len(m.Endpoints(roadID))).Msg("Opened feed scope")
	return s
}

type Scope struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Close cancels every feed and waits until none of them can call the handler again.
func (s *Scope) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
