package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

var ErrCommandFailed = errors.New("command returned non-success status")

type Kind string

const (
	KindMode  Kind = "set_mode"
	KindCycle Kind = "set_cycle"
)

// Cycle is a validated manual green/red duration pair in seconds.
type Cycle struct {
	Green int `json:"green"`
	Red   int `json:"red"`
}

// ParseCycle accepts two strictly positive integers; anything else is rejected.
func ParseCycle(green, red string) (Cycle, bool) {
	g, err := strconv.Atoi(strings.TrimSpace(green))
	if err != nil || g <= 0 {
		return Cycle{}, false
	}
	r, err := strconv.Atoi(strings.TrimSpace(red))
	if err != nil || r <= 0 {
		return Cycle{}, false
	}
	return Cycle{Green: g, Red: r}, true
}

// Dispatcher sends operator commands to the controller. It keeps no local state; the
// session that owns the intersection applies optimistic updates before calling it.
type Dispatcher struct {
	baseURL string
	client  *http.Client
}

func NewDispatcher(baseURL string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SetMode posts to /roads/{id}/auto or /roads/{id}/manual.
func (d *Dispatcher) SetMode(ctx context.Context, roadID int, mode model.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	endpoint := fmt.Sprintf("%s/roads/%d/%s", d.baseURL, roadID, mode)
	return d.post(ctx, KindMode, roadID, endpoint)
}

// SetCycle posts /api/cycle?message={green},{red}. roadID is only used for logging; the
// controller endpoint is not road-scoped.
func (d *Dispatcher) SetCycle(ctx context.Context, roadID int, c Cycle) error {
	endpoint := fmt.Sprintf("%s/api/cycle?message=%d,%d", d.baseURL, c.Green, c.Red)
	return d.post(ctx, KindCycle, roadID, endpoint)
}

func (d *Dispatcher) post(ctx context.Context, kind Kind, roadID int, endpoint string) error {
	commandID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", kind, err)
	}
	req.Header.Set("X-Request-ID", commandID)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", ErrCommandFailed, kind, resp.StatusCode)
	}

	log.Debug().
		Str("command", string(kind)).
		Str("command_id", commandID).
		Int("road_id", roadID).
		Int("status", resp.StatusCode).
		Msg("Command accepted")

	return nil
}
