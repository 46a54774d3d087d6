package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/stream"
	"github.com/thatsimonsguy/intersection-view/internal/view"
)

type fakeCommander struct {
	mu     sync.Mutex
	modes  []model.Mode
	cycles []control.Cycle
	err    error
	gate   chan struct{}
}

func (f *fakeCommander) SetMode(ctx context.Context, roadID int, mode model.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	return f.err
}

func (f *fakeCommander) SetCycle(ctx context.Context, roadID int, c control.Cycle) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, c)
	return f.err
}

func (f *fakeCommander) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modes), len(f.cycles)
}

type fakeRoads struct {
	mu    sync.Mutex
	roads map[int]model.Road
	reads int
}

func (f *fakeRoads) GetRoad(ctx context.Context, roadID int) (model.Road, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	r, ok := f.roads[roadID]
	if !ok {
		return model.Road{}, fmt.Errorf("road %d not found", roadID)
	}
	return r, nil
}

func testRoad() model.Road {
	return model.Road{
		ID:   1,
		Name: "Thanh Thai",
		Devices: []model.Device{
			{DeviceID: "cam-n", Type: model.DeviceCamera, RoadID: 1, DirectionFrom: model.North},
			{DeviceID: "cam-e", Type: model.DeviceCamera, RoadID: 1, DirectionFrom: model.East},
			{DeviceID: "light-1", Type: model.DeviceLight, RoadID: 1},
		},
	}
}

func openTestSession(t *testing.T, cmd Commander) *Session {
	t.Helper()
	s := Open(context.Background(), testRoad(), Options{
		Commander:    cmd,
		Fields:       view.AllFields(),
		PrimaryGroup: "A",
	})
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, s *Session, cond func(v view.Intersection) bool) view.Intersection {
	t.Helper()
	var last view.Intersection
	require.Eventually(t, func() bool {
		last = s.View()
		return cond(last)
	}, time.Second, 5*time.Millisecond)
	return last
}

func totalIs(want string) func(view.Intersection) bool {
	return func(v view.Intersection) bool { return v.TotalDown != nil && *v.TotalDown == want }
}

func TestSession_AnalyticsScenario(t *testing.T) {
	s := openTestSession(t, &fakeCommander{})

	s.Deliver(stream.Analytics, []byte(`{"total_down":12,"fps":29.97}`))

	v := waitFor(t, s, totalIs("12"))
	require.NotNil(t, v.FPS)
	assert.Equal(t, "30.0", *v.FPS)
	assert.Equal(t, []view.ClassRow{{Label: view.ClassesUnavailable}}, v.DownByClass)
}

func TestSession_BridgeSignalScenario(t *testing.T) {
	s := openTestSession(t, &fakeCommander{})

	s.Deliver(stream.Bridge("A"), []byte(`{"messages":[{"road":"1","color":"GREEN","content":7}]}`))

	v := waitFor(t, s, func(v view.Intersection) bool { return v.Cameras[0].Signal != nil })
	assert.Equal(t, view.SignalView{Color: "GREEN", Countdown: 7, Green: true}, *v.Cameras[0].Signal)
	assert.Nil(t, v.Cameras[1].Signal)
	require.NotNil(t, v.Countdown)
	assert.Equal(t, 7, *v.Countdown)
}

func TestSession_UnroutableSignalChangesNothing(t *testing.T) {
	s := openTestSession(t, &fakeCommander{})
	before := s.View()

	s.Deliver(stream.Bridge("A"), []byte(`{"messages":[{"road":"x1","color":"GREEN","content":7}]}`))
	s.Deliver(stream.Bridge("B"), []byte(`not json`))
	s.Deliver(stream.Analytics, []byte(`{"total_down":3}`))

	v := waitFor(t, s, totalIs("3"))
	assert.Equal(t, before.Cameras, v.Cameras)
	assert.Nil(t, v.Countdown)
}

func TestSession_FeedDegraded(t *testing.T) {
	s := openTestSession(t, &fakeCommander{})

	s.StateChanged(stream.Analytics, stream.StateError, errors.New("reset by peer"))
	s.StateChanged(stream.Bridge("B"), stream.StateDisconnected, nil)

	v := waitFor(t, s, func(v view.Intersection) bool { return len(v.Feeds) == 2 })
	assert.Equal(t, view.LabelError, *v.TotalDown)
	assert.Equal(t, []view.ClassRow{{Label: view.ClassesFeedError}}, v.DownByClass)
	assert.Equal(t, []view.FeedView{
		{Source: "analytics", State: "error"},
		{Source: "bridge:B", State: "disconnected"},
	}, v.Feeds)
}

func TestSession_SetModeFailureKeepsFlip(t *testing.T) {
	cmd := &fakeCommander{err: control.ErrCommandFailed}
	s := Open(context.Background(), testRoad(), Options{Commander: cmd})

	require.NoError(t, s.SetMode(model.ModeManual))
	assert.Equal(t, "manual", s.View().Mode)

	require.Eventually(t, func() bool {
		modes, _ := cmd.calls()
		return modes == 1
	}, time.Second, 5*time.Millisecond)

	s.Close()
	assert.Equal(t, "manual", s.View().Mode)
}

func TestSession_SetModeInvalid(t *testing.T) {
	cmd := &fakeCommander{}
	s := openTestSession(t, cmd)

	err := s.SetMode("turbo")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, "auto", s.View().Mode)
}

func TestSession_InvalidCycleNeverPending(t *testing.T) {
	cmd := &fakeCommander{}
	s := openTestSession(t, cmd)

	require.NoError(t, s.SetCycleInput("5", "0"))
	res, err := s.ConfirmCycle()
	require.NoError(t, err)
	assert.Equal(t, control.Invalid, res)

	v := s.View()
	assert.False(t, v.Cycle.Pending)
	assert.Equal(t, view.CycleView{Green: "5", Red: "0"}, v.Cycle)
	_, cycles := cmd.calls()
	assert.Zero(t, cycles)
}

func TestSession_CycleSettlesOnFailure(t *testing.T) {
	cmd := &fakeCommander{err: errors.New("offline"), gate: make(chan struct{})}
	s := openTestSession(t, cmd)

	require.NoError(t, s.SetCycleInput("30", "45"))
	res, err := s.ConfirmCycle()
	require.NoError(t, err)
	assert.Equal(t, control.Submitted, res)
	assert.True(t, s.View().Cycle.Pending)

	res, err = s.ConfirmCycle()
	require.NoError(t, err)
	assert.Equal(t, control.Busy, res)

	close(cmd.gate)
	v := waitFor(t, s, func(v view.Intersection) bool { return !v.Cycle.Pending })
	assert.Equal(t, view.CycleView{}, v.Cycle)

	_, cycles := cmd.calls()
	assert.Equal(t, 1, cycles)
	assert.Equal(t, control.Cycle{Green: 30, Red: 45}, cmd.cycles[0])
}

func TestSession_Refresh(t *testing.T) {
	updated := testRoad()
	updated.Mode = model.ModeManual
	updated.Devices = []model.Device{
		{DeviceID: "cam-w", Type: model.DeviceCamera, RoadID: 1, DirectionFrom: model.West},
	}
	roads := &fakeRoads{roads: map[int]model.Road{1: updated}}

	s := Open(context.Background(), testRoad(), Options{Roads: roads})
	t.Cleanup(s.Close)

	require.NoError(t, s.Refresh(context.Background()))

	v := s.View()
	assert.Equal(t, "manual", v.Mode)
	require.Len(t, v.Cameras, 1)
	assert.Equal(t, "cam-w", v.Cameras[0].DeviceID)
	assert.Equal(t, "B", v.Cameras[0].Group)
	assert.Empty(t, v.Lights)
}

func TestSession_RefreshError(t *testing.T) {
	s := Open(context.Background(), testRoad(), Options{Roads: &fakeRoads{}})
	t.Cleanup(s.Close)

	assert.Error(t, s.Refresh(context.Background()))
	assert.Len(t, s.View().Cameras, 2)
}

func TestSession_CloseDiscardsLaterEvents(t *testing.T) {
	s := Open(context.Background(), testRoad(), Options{Fields: view.AllFields()})

	for i := 0; i < 100; i++ {
		s.Deliver(stream.Analytics, []byte(fmt.Sprintf(`{"total_down":%d}`, i)))
	}
	s.Close()

	after := s.View()
	s.Deliver(stream.Analytics, []byte(`{"total_down":999}`))
	s.StateChanged(stream.Analytics, stream.StateError, nil)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, after, s.View())
	assert.ErrorIs(t, s.SetMode(model.ModeManual), ErrClosed)
	_, err := s.ConfirmCycle()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_Subscribe(t *testing.T) {
	s := Open(context.Background(), testRoad(), Options{Fields: view.AllFields()})

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	initial := <-ch
	assert.Equal(t, view.LabelUnknown, *initial.TotalDown)

	s.Deliver(stream.Analytics, []byte(`{"total_down":12}`))

	deadline := time.After(time.Second)
	for {
		select {
		case v := <-ch:
			if v.TotalDown != nil && *v.TotalDown == "12" {
				s.Close()
				for range ch {
				}
				return
			}
		case <-deadline:
			t.Fatal("no projection with the new total")
		}
	}
}

func TestSession_SubscribeAfterClose(t *testing.T) {
	s := Open(context.Background(), testRoad(), Options{})
	s.Close()

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	_, ok := <-ch
	assert.True(t, ok)
	_, ok = <-ch
	assert.False(t, ok)
}

// slowCommander holds each mode command briefly and records whether its context was
// cancelled by the time it finished.
type slowCommander struct {
	started chan struct{}
	mu      sync.Mutex
	errs    []error
}

func (c *slowCommander) SetMode(ctx context.Context, roadID int, mode model.Mode) error {
	close(c.started)
	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, ctx.Err())
	return ctx.Err()
}

func (c *slowCommander) SetCycle(ctx context.Context, roadID int, cy control.Cycle) error {
	return nil
}

func TestSession_CloseLetsInFlightCommandFinish(t *testing.T) {
	cmd := &slowCommander{started: make(chan struct{})}
	s := Open(context.Background(), testRoad(), Options{Commander: cmd})

	require.NoError(t, s.SetMode(model.ModeManual))
	<-cmd.started
	s.Close()

	cmd.mu.Lock()
	defer cmd.mu.Unlock()
	require.Len(t, cmd.errs, 1)
	assert.NoError(t, cmd.errs[0])
}

func TestSession_SubscribeSeesEventsRacingRegistration(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := Open(context.Background(), testRoad(), Options{Fields: view.AllFields()})

		want := fmt.Sprintf("%d", i+1)
		go s.Deliver(stream.Analytics, []byte(`{"total_down":`+want+`}`))
		ch, unsubscribe := s.Subscribe()
		waitFor(t, s, totalIs(want))

		var last view.Intersection
		deadline := time.After(time.Second)
	drain:
		for {
			select {
			case v := <-ch:
				last = v
				if v.TotalDown != nil && *v.TotalDown == want {
					break drain
				}
			case <-deadline:
				break drain
			}
		}
		require.NotNil(t, last.TotalDown)
		assert.Equal(t, want, *last.TotalDown)

		unsubscribe()
		s.Close()
	}
}
