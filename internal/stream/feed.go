package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

// Source names one logical feed of an intersection.
type Source string

const Analytics Source = "analytics"

const bridgePrefix = "bridge:"

func Bridge(id model.GroupID) Source {
	return Source(bridgePrefix + string(id))
}

// Group returns the logical group a bridge source reports for.
func (s Source) Group() (model.GroupID, bool) {
	if !strings.HasPrefix(string(s), bridgePrefix) {
		return "", false
	}
	return model.GroupID(strings.TrimPrefix(string(s), bridgePrefix)), true
}

type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

// Handler receives everything a feed produces. Calls come from the feed's goroutine.
type Handler interface {
	Deliver(src Source, data []byte)
	StateChanged(src Source, st State, err error)
}

// Dialer is satisfied by *websocket.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

type Endpoint struct {
	Source Source
	URL    string
}

type Feed struct {
	endpoint Endpoint
	dialer   Dialer
	strategy Strategy
	handler  Handler
}

func NewFeed(ep Endpoint, dialer Dialer, strategy Strategy, handler Handler) *Feed {
	if strategy == nil {
		strategy = NoReconnect{}
	}
	return &Feed{endpoint: ep, dialer: dialer, strategy: strategy, handler: handler}
}

// Run dials and reads until ctx is cancelled or the strategy gives up. It never returns an
// error: failures are reported through Handler.StateChanged.
func (f *Feed) Run(ctx context.Context) {
	src := f.endpoint.Source
	attempt := 0

	for {
		f.handler.StateChanged(src, StateConnecting, nil)

		conn, resp, err := f.dialer.DialContext(ctx, f.endpoint.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}

		if err != nil {
			log.Warn().Err(err).Str("source", string(src)).Str("url", f.endpoint.URL).Msg("Feed connection failed")
			f.handler.StateChanged(src, StateError, err)
		} else {
			attempt = 0
			state, readErr := f.read(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(readErr).Str("source", string(src)).Str("state", string(state)).Msg("Feed stopped")
			f.handler.StateChanged(src, state, readErr)
		}

		delay, ok := f.strategy.Next(attempt)
		if !ok {
			return
		}
		attempt++

		log.Info().Str("source", string(src)).Dur("delay", delay).Int("attempt", attempt).Msg("Reconnecting feed")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Feed) read(ctx context.Context, conn *websocket.Conn) (State, error) {
	stop := make(chan struct{})
	defer close(stop)
	defer conn.Close()

	// unblock ReadMessage on cancel
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	f.handler.StateChanged(f.endpoint.Source, StateOpen, nil)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return StateDisconnected, err
			}
			return StateError, err
		}
		if ctx.Err() != nil {
			return StateDisconnected, ctx.Err()
		}
		f.handler.Deliver(f.endpoint.Source, data)
	}
}
