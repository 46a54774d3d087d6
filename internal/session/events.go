package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/metrics"
	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/notifications"
	"github.com/thatsimonsguy/intersection-view/internal/stream"
	"github.com/thatsimonsguy/intersection-view/internal/topology"
)

var errNoCommander = errors.New("no command endpoint configured")

// event is one discrete input to a session. apply runs on the loop goroutine with mu held and
// reports whether the projection may have changed.
type event interface {
	apply(s *Session) bool
}

type messageEvent struct {
	source stream.Source
	data   []byte
}

func (e messageEvent) apply(s *Session) bool {
	src := string(e.source)
	logger := s.logger().With().Str("source", src).Logger()

	if e.source == stream.Analytics {
		if err := s.rec.ApplyAnalytics(e.data); err != nil {
			logger.Warn().Err(err).Msg("Analytics payload partly unusable")
			metrics.FeedMessage(src, "parse_error")
		} else {
			metrics.FeedMessage(src, "applied")
		}
		return true
	}

	group, ok := e.source.Group()
	if !ok {
		logger.Warn().Msg("Message from unknown source ignored")
		return false
	}

	res, err := s.rec.ApplySignals(group, e.data)
	metrics.DroppedEntries(src, res.Dropped)
	if err != nil {
		logger.Warn().
			Err(err).
			Int("applied", res.Applied).
			Int("dropped", res.Dropped).
			Msg("Signal batch partly unusable")
	}

	switch {
	case res.Applied > 0:
		metrics.FeedMessage(src, "applied")
	case err != nil:
		metrics.FeedMessage(src, "parse_error")
	default:
		metrics.FeedMessage(src, "ignored")
	}
	return res.Applied > 0
}

type feedStateEvent struct {
	source stream.Source
	state  stream.State
	err    error
}

func (e feedStateEvent) apply(s *Session) bool {
	s.feeds[e.source] = e.state
	metrics.FeedState(string(e.source), string(e.state))

	if e.source == stream.Analytics {
		switch e.state {
		case stream.StateOpen:
			s.rec.AnalyticsOpened()
		case stream.StateError:
			s.rec.AnalyticsFailed()
		case stream.StateDisconnected:
			s.rec.AnalyticsClosed()
		}
	}

	logger := s.logger()
	switch e.state {
	case stream.StateError, stream.StateDisconnected:
		logger.Warn().Err(e.err).Str("source", string(e.source)).Str("state", string(e.state)).Msg("Feed degraded")
	default:
		logger.Debug().Str("source", string(e.source)).Str("state", string(e.state)).Msg("Feed state changed")
	}
	return true
}

// setModeEvent flips the mode before the command is sent. A failed command is logged and the
// flip stays.
type setModeEvent struct {
	mode model.Mode
}

func (e setModeEvent) apply(s *Session) bool {
	s.mode = e.mode
	road := s.roadID
	s.dispatch(control.KindMode, func(ctx context.Context, c Commander) error {
		return c.SetMode(ctx, road, e.mode)
	})
	return true
}

type cycleInputEvent struct {
	green, red string
}

func (e cycleInputEvent) apply(s *Session) bool {
	s.cycle.Green = e.green
	s.cycle.Red = e.red
	return true
}

type confirmCycleEvent struct {
	result *control.SubmitResult
}

func (e confirmCycleEvent) apply(s *Session) bool {
	c, res := s.cycle.Submit()
	*e.result = res

	switch res {
	case control.Invalid:
		s.logger().Debug().Str("green", s.cycle.Green).Str("red", s.cycle.Red).Msg("Cycle input rejected")
		return false
	case control.Busy:
		s.logger().Info().Msg("Cycle update already pending")
		return false
	}

	road := s.roadID
	s.dispatch(control.KindCycle, func(ctx context.Context, cmd Commander) error {
		return cmd.SetCycle(ctx, road, c)
	})
	return true
}

type commandSettledEvent struct {
	kind control.Kind
}

func (e commandSettledEvent) apply(s *Session) bool {
	if e.kind != control.KindCycle {
		return false
	}
	s.cycle.Settle()
	return true
}

type refreshEvent struct {
	road model.Road
}

func (e refreshEvent) apply(s *Session) bool {
	e.road.ID = s.roadID
	s.road = e.road
	s.index = topology.Build(e.road.Devices, s.opts.Groups)
	if e.road.Mode.Valid() {
		s.mode = e.road.Mode
	}
	s.logger().Info().
		Int("cameras", len(s.index.Cameras)).
		Int("lights", len(s.index.Lights)).
		Str("mode", string(s.mode)).
		Msg("Refreshed road from registry")
	return true
}

// applied wraps an event so the caller can wait until the loop has run it.
type applied struct {
	event
	done chan struct{}
}

func (e applied) apply(s *Session) bool {
	defer close(e.done)
	return e.event.apply(s)
}

// dispatch sends a command off the loop. Its completion comes back as a commandSettledEvent.
// Closing the session does not cancel a command already sent; the commander's own timeout
// bounds it.
func (s *Session) dispatch(kind control.Kind, send func(context.Context, Commander) error) {
	ctx := context.WithoutCancel(s.ctx)
	s.cmds.Add(1)
	go func() {
		defer s.cmds.Done()

		err := errNoCommander
		if s.opts.Commander != nil {
			err = send(ctx, s.opts.Commander)
		}

		if err != nil {
			s.logger().Error().Err(err).Str("command", string(kind)).Msg("Command failed")
			metrics.Command(string(kind), "failed")
			notifications.Alert("Command failed", fmt.Sprintf("%s for road %d: %v", kind, s.roadID, err))
		} else {
			s.logger().Info().Str("command", string(kind)).Msg("Command sent")
			metrics.Command(string(kind), "ok")
		}

		_ = s.post(commandSettledEvent{kind: kind})
	}()
}

func (s *Session) logger() *zerolog.Logger {
	l := log.With().Str("session_id", s.id).Int("road_id", s.roadID).Logger()
	return &l
}
