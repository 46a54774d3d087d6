package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/telemetry"
)

var ErrRoadNotFound = errors.New("road not found")

type wireDevice struct {
	DeviceID      string `json:"device_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	DirectionFrom string `json:"direction_from"`
	DirectionTo   string `json:"direction_to"`
	Status        string `json:"status"`
}

type wireRoad struct {
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name"`
	Location string          `json:"location"`
	District string          `json:"district"`
	City     string          `json:"city"`
	Status   string          `json:"status"`
	Mode     string          `json:"mode"`
	Devices  []wireDevice    `json:"devices"`
}

// Client reads roads from the registry service. It never writes.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ListRoads fetches every road with its devices.
func (c *Client) ListRoads(ctx context.Context) ([]model.Road, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/roads", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned %d", resp.StatusCode)
	}

	var wire []wireRoad
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode road list: %w", err)
	}
	return normalize(wire), nil
}

func (c *Client) GetRoad(ctx context.Context, roadID int) (model.Road, error) {
	roads, err := c.ListRoads(ctx)
	if err != nil {
		return model.Road{}, err
	}
	return find(roads, roadID)
}

func find(roads []model.Road, roadID int) (model.Road, error) {
	for _, r := range roads {
		if r.ID == roadID {
			return r, nil
		}
	}
	return model.Road{}, fmt.Errorf("%w: %d", ErrRoadNotFound, roadID)
}

// normalize converts registry records. Roads without an integer id and devices of an unknown
// type are skipped, so every kept device is either a camera or a light.
func normalize(wire []wireRoad) []model.Road {
	roads := make([]model.Road, 0, len(wire))
	for _, w := range wire {
		id, err := telemetry.ParseRoad(w.ID)
		if err != nil {
			log.Warn().Err(err).Str("name", w.Name).Msg("Skipping road without integer id")
			continue
		}

		mode := model.Mode(strings.ToLower(w.Mode))
		if !mode.Valid() {
			mode = ""
		}

		road := model.Road{
			ID:       id,
			Name:     w.Name,
			Location: w.Location,
			District: w.District,
			City:     w.City,
			Status:   w.Status,
			Mode:     mode,
			Devices:  []model.Device{},
		}
		for _, d := range w.Devices {
			typ, ok := model.ParseDeviceType(d.Type)
			if !ok {
				log.Warn().Int("road_id", id).Str("device_id", d.DeviceID).Str("type", d.Type).Msg("Skipping device of unknown type")
				continue
			}
			dev := model.Device{
				DeviceID: d.DeviceID,
				Name:     d.Name,
				Type:     typ,
				RoadID:   id,
				Status:   d.Status,
			}
			if typ == model.DeviceCamera {
				dev.DirectionFrom = model.ParseDirection(d.DirectionFrom)
				dev.DirectionTo = model.ParseDirection(d.DirectionTo)
			}
			road.Devices = append(road.Devices, dev)
		}
		roads = append(roads, road)
	}
	return roads
}
