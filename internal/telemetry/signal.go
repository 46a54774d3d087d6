package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

var ErrUnroutable = errors.New("road field is not an integer")

type signalBatch struct {
	Messages []json.RawMessage `json:"messages"`
}

type signalEntry struct {
	Road    json.RawMessage `json:"road"`
	Color   json.RawMessage `json:"color"`
	Content json.RawMessage `json:"content"`
}

// SignalResult counts what happened to each entry of one bridge batch.
type SignalResult struct {
	Applied int // entries for this road, including ones stored as error markers
	Ignored int // well-routed entries for other roads
	Dropped int // entries whose road did not parse
}

// ApplySignals reconciles one bridge batch. Entries for this road overwrite the group's last
// signal in arrival order; there is no sequence check. Unroutable entries are dropped without
// touching state.
func (r *Reconciler) ApplySignals(group model.GroupID, data []byte) (SignalResult, error) {
	var res SignalResult

	var batch signalBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return res, fmt.Errorf("decode signal batch: %w", err)
	}

	var errs []error
	for i, raw := range batch.Messages {
		var entry signalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			res.Dropped++
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}

		road, err := ParseRoad(entry.Road)
		if err != nil {
			res.Dropped++
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if road != r.roadID {
			res.Ignored++
			continue
		}

		res.Applied++
		sig, err := decodeSignal(road, entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
		r.signals[group] = sig
	}

	return res, errors.Join(errs...)
}

func decodeSignal(road int, entry signalEntry) (model.Signal, error) {
	marker := model.Signal{RoadID: road, Status: model.StatusError}

	var colorStr string
	if err := json.Unmarshal(entry.Color, &colorStr); err != nil {
		return marker, fmt.Errorf("color: %w", err)
	}
	color, ok := model.ParseColor(colorStr)
	if !ok {
		return marker, fmt.Errorf("unknown color %q", colorStr)
	}

	content, err := parseInteger(entry.Content)
	if err != nil {
		return marker, fmt.Errorf("content: %w", err)
	}

	return model.Signal{RoadID: road, Color: color, Content: content, Status: model.StatusOK}, nil
}

// ParseRoad accepts either a JSON integer or a string holding one.
func ParseRoad(raw json.RawMessage) (int, error) {
	n, err := parseInteger(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnroutable, string(raw))
	}
	return n, nil
}

func parseInteger(raw json.RawMessage) (int, error) {
	if absent(raw) {
		return 0, errors.New("missing")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.Atoi(strings.TrimSpace(s))
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int(f), nil
}
