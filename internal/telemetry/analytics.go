package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

var null = []byte("null")

// ApplyAnalytics decodes one analytics push and commits it as the road's latest frame.
// Fields are decoded independently: an absent field becomes unknown, a field of the wrong
// shape becomes an error marker, and the other fields still take their new values.
// A payload that is not a JSON object only marks down_by_class as errored.
func (r *Reconciler) ApplyAnalytics(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		r.frame.DownByClass = nil
		r.frame.ClassStatus = model.StatusError
		return fmt.Errorf("decode analytics payload: %w", err)
	}

	var errs []error
	var err error

	r.frame.TotalDown, err = decodeMetric(fields["total_down"])
	if err != nil {
		errs = append(errs, fmt.Errorf("total_down: %w", err))
	}

	r.frame.FPS, err = decodeMetric(fields["fps"])
	if err != nil {
		errs = append(errs, fmt.Errorf("fps: %w", err))
	}

	r.frame.DownByClass, r.frame.ClassStatus, err = decodeClasses(fields["down_by_class"])
	if err != nil {
		errs = append(errs, fmt.Errorf("down_by_class: %w", err))
	}

	return errors.Join(errs...)
}

func absent(raw json.RawMessage) bool {
	return raw == nil || bytes.Equal(bytes.TrimSpace(raw), null)
}

func decodeMetric(raw json.RawMessage) (model.Metric, error) {
	if absent(raw) {
		return model.Marker(model.StatusUnknown), nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.Marker(model.StatusError), err
	}
	return model.Known(v), nil
}

func decodeClasses(raw json.RawMessage) ([]model.ClassCount, model.FieldStatus, error) {
	if absent(raw) {
		return nil, model.StatusUnknown, nil
	}
	var byClass map[string]float64
	if err := json.Unmarshal(raw, &byClass); err != nil {
		return nil, model.StatusError, err
	}
	return SortClasses(byClass), model.StatusOK, nil
}

// SortClasses flattens a class→count map into ascending key order.
func SortClasses(byClass map[string]float64) []model.ClassCount {
	out := make([]model.ClassCount, 0, len(byClass))
	for class, count := range byClass {
		out = append(out, model.ClassCount{Class: class, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}
