package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/model"
)

var ErrInvalidMode = errors.New("mode must be auto or manual")

var errNoRegistry = errors.New("no road registry configured")

// call posts ev and waits until the loop has applied it.
func (s *Session) call(ev event) error {
	done := make(chan struct{})
	if err := s.post(applied{event: ev, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.done:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// SetMode switches the local mode immediately and sends the command in the background.
func (s *Session) SetMode(mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return s.call(setModeEvent{mode: mode})
}

// SetCycleInput replaces the operator's green/red input fields.
func (s *Session) SetCycleInput(green, red string) error {
	return s.call(cycleInputEvent{green: green, red: red})
}

// ConfirmCycle submits the current cycle inputs. Invalid input sends nothing.
func (s *Session) ConfirmCycle() (control.SubmitResult, error) {
	var res control.SubmitResult
	if err := s.call(confirmCycleEvent{result: &res}); err != nil {
		return "", err
	}
	return res, nil
}

// Refresh re-reads the road from the registry and recomputes the topology.
func (s *Session) Refresh(ctx context.Context) error {
	if s.opts.Roads == nil {
		return errNoRegistry
	}
	road, err := s.opts.Roads.GetRoad(ctx, s.roadID)
	if err != nil {
		return fmt.Errorf("failed to refresh road %d: %w", s.roadID, err)
	}
	return s.call(refreshEvent{road: road})
}
