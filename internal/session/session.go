package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/stream"
	"github.com/thatsimonsguy/intersection-view/internal/telemetry"
	"github.com/thatsimonsguy/intersection-view/internal/topology"
	"github.com/thatsimonsguy/intersection-view/internal/view"
)

var ErrClosed = errors.New("session closed")

// Streams opens the live feeds of one road. *stream.Manager satisfies it.
type Streams interface {
	Open(ctx context.Context, roadID int, h stream.Handler) *stream.Scope
}

// Commander sends operator commands. *control.Dispatcher satisfies it.
type Commander interface {
	SetMode(ctx context.Context, roadID int, mode model.Mode) error
	SetCycle(ctx context.Context, roadID int, c control.Cycle) error
}

// RoadLoader reads one road with its devices from the registry.
type RoadLoader interface {
	GetRoad(ctx context.Context, roadID int) (model.Road, error)
}

type Options struct {
	Streams      Streams
	Commander    Commander
	Roads        RoadLoader
	Groups       topology.GroupTable
	Fields       view.Fields
	PrimaryGroup model.GroupID
}

const eventBuffer = 256

// Session is the live view of one intersection. Every mutation runs on the loop goroutine;
// readers take a snapshot under mu.
type Session struct {
	id     string
	roadID int
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}
	scope  *stream.Scope
	cmds   sync.WaitGroup

	mu    sync.RWMutex
	road  model.Road
	mode  model.Mode
	rec   *telemetry.Reconciler
	index topology.Index
	feeds map[stream.Source]stream.State
	cycle control.CycleForm

	subMu   sync.Mutex
	subs    map[int]chan view.Intersection
	nextID  int
	stopped bool
}

// Open starts the event loop for road and opens its feeds.
func Open(ctx context.Context, road model.Road, opts Options) *Session {
	if opts.Groups == nil {
		opts.Groups = topology.DefaultGroups()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		roadID: road.ID,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
		road:   road,
		mode:   initialMode(road.Mode),
		rec:    telemetry.NewReconciler(road.ID),
		index:  topology.Build(road.Devices, opts.Groups),
		feeds:  make(map[stream.Source]stream.State),
		subs:   make(map[int]chan view.Intersection),
	}

	go s.loop()
	if opts.Streams != nil {
		s.scope = opts.Streams.Open(ctx, road.ID, s)
	}

	log.Info().
		Str("session_id", s.id).
		Int("road_id", road.ID).
		Int("cameras", len(s.index.Cameras)).
		Int("lights", len(s.index.Lights)).
		Msg("Opened intersection view")

	return s
}

func initialMode(m model.Mode) model.Mode {
	if m.Valid() {
		return m
	}
	return model.ModeAuto
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RoadID() int {
	return s.roadID
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if s.ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			changed := ev.apply(s)
			s.mu.Unlock()
			if changed {
				s.publish()
			}
		}
	}
}

// post hands ev to the loop. Events posted after Close are discarded.
func (s *Session) post(ev event) error {
	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case <-s.ctx.Done():
		return ErrClosed
	case s.events <- ev:
		return nil
	}
}

// Close cancels the feeds and the loop and waits for both. No state changes after it returns.
func (s *Session) Close() {
	s.cancel()
	if s.scope != nil {
		s.scope.Close()
	}
	<-s.done
	s.cmds.Wait()

	s.subMu.Lock()
	s.stopped = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()

	log.Info().Str("session_id", s.id).Int("road_id", s.roadID).Msg("Closed intersection view")
}

// View projects the current state.
func (s *Session) View() view.Intersection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectLocked()
}

func (s *Session) projectLocked() view.Intersection {
	feeds := make(map[stream.Source]stream.State, len(s.feeds))
	for src, st := range s.feeds {
		feeds[src] = st
	}
	return view.Project(view.Input{
		Road:         s.road,
		Mode:         s.mode,
		Frame:        s.rec.Frame(),
		Index:        s.index,
		Signals:      s.rec.Signals(),
		Feeds:        feeds,
		Cycle:        s.cycle,
		Fields:       s.opts.Fields,
		PrimaryGroup: s.opts.PrimaryGroup,
	})
}

// Subscribe returns a channel carrying the projection after every applied event. Only the
// latest projection is kept for a slow reader. The channel closes with the session.
func (s *Session) Subscribe() (<-chan view.Intersection, func()) {
	ch := make(chan view.Intersection, 1)

	// The snapshot is taken under subMu so a concurrent publish either lands after it or
	// is already reflected in it.
	s.subMu.Lock()
	ch <- s.View()
	if s.stopped {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, unsubscribe
}

func (s *Session) publish() {
	v := s.View()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Deliver implements stream.Handler.
func (s *Session) Deliver(src stream.Source, data []byte) {
	_ = s.post(messageEvent{source: src, data: data})
}

// StateChanged implements stream.Handler.
func (s *Session) StateChanged(src stream.Source, st stream.State, err error) {
	_ = s.post(feedStateEvent{source: src, state: st, err: err})
}
