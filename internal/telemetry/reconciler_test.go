package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

func TestApplyAnalytics_Values(t *testing.T) {
	r := NewReconciler(1)

	err := r.ApplyAnalytics([]byte(`{"total_down":12,"fps":29.97}`))
	require.NoError(t, err)

	f := r.Frame()
	assert.Equal(t, model.Known(12), f.TotalDown)
	assert.Equal(t, model.Known(29.97), f.FPS)
	assert.Equal(t, model.StatusUnknown, f.ClassStatus)
}

func TestApplyAnalytics_MissingFieldsAreUnknown(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		total   model.FieldStatus
		fps     model.FieldStatus
	}{
		{"empty object", `{}`, model.StatusUnknown, model.StatusUnknown},
		{"only total", `{"total_down":3}`, model.StatusOK, model.StatusUnknown},
		{"only fps", `{"fps":10}`, model.StatusUnknown, model.StatusOK},
		{"explicit nulls", `{"total_down":null,"fps":null}`, model.StatusUnknown, model.StatusUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReconciler(1)
			assert.NoError(t, r.ApplyAnalytics([]byte(tc.payload)))
			f := r.Frame()
			assert.Equal(t, tc.total, f.TotalDown.Status)
			assert.Equal(t, tc.fps, f.FPS.Status)
		})
	}
}

func TestApplyAnalytics_ClassesSorted(t *testing.T) {
	r := NewReconciler(1)
	require.NoError(t, r.ApplyAnalytics([]byte(`{"down_by_class":{"truck":2,"bus":1,"car":9,"motorbike":4}}`)))

	f := r.Frame()
	assert.Equal(t, model.StatusOK, f.ClassStatus)
	assert.Equal(t, []model.ClassCount{
		{Class: "bus", Count: 1},
		{Class: "car", Count: 9},
		{Class: "motorbike", Count: 4},
		{Class: "truck", Count: 2},
	}, f.DownByClass)
}

func TestApplyAnalytics_MalformedPayload(t *testing.T) {
	r := NewReconciler(1)
	require.NoError(t, r.ApplyAnalytics([]byte(`{"total_down":5,"fps":30}`)))

	err := r.ApplyAnalytics([]byte(`{not json`))
	assert.Error(t, err)

	f := r.Frame()
	assert.Equal(t, model.StatusError, f.ClassStatus)
	// other fields keep their last known values
	assert.Equal(t, model.Known(5), f.TotalDown)
	assert.Equal(t, model.Known(30), f.FPS)

	// and the next good message is processed normally
	require.NoError(t, r.ApplyAnalytics([]byte(`{"total_down":6,"fps":30,"down_by_class":{}}`)))
	f = r.Frame()
	assert.Equal(t, model.Known(6), f.TotalDown)
	assert.Equal(t, model.StatusOK, f.ClassStatus)
	assert.Empty(t, f.DownByClass)
}

func TestApplyAnalytics_WrongFieldShape(t *testing.T) {
	r := NewReconciler(1)
	err := r.ApplyAnalytics([]byte(`{"total_down":"many","fps":25,"down_by_class":[1,2]}`))
	assert.Error(t, err)

	f := r.Frame()
	assert.Equal(t, model.StatusError, f.TotalDown.Status)
	assert.Equal(t, model.Known(25), f.FPS)
	assert.Equal(t, model.StatusError, f.ClassStatus)
}

func TestAnalyticsFeedMarkers(t *testing.T) {
	r := NewReconciler(1)
	require.NoError(t, r.ApplyAnalytics([]byte(`{"total_down":5,"fps":30,"down_by_class":{"car":1}}`)))

	r.AnalyticsFailed()
	f := r.Frame()
	assert.Equal(t, model.StatusFeedError, f.TotalDown.Status)
	assert.Equal(t, model.StatusFeedError, f.FPS.Status)
	assert.Equal(t, model.StatusFeedError, f.ClassStatus)

	r.AnalyticsClosed()
	f = r.Frame()
	assert.Equal(t, model.StatusDisconnected, f.TotalDown.Status)
	assert.Equal(t, model.StatusUnknown, f.FPS.Status)
	assert.Equal(t, model.StatusDisconnected, f.ClassStatus)

	r.AnalyticsOpened()
	assert.Equal(t, model.StatusOK, r.Frame().ClassStatus)
	assert.Empty(t, r.Frame().DownByClass)
}

func TestApplySignals_RoutesToRoad(t *testing.T) {
	r := NewReconciler(1)

	res, err := r.ApplySignals("A", []byte(`{"messages":[{"road":"1","color":"GREEN","content":7}]}`))
	require.NoError(t, err)
	assert.Equal(t, SignalResult{Applied: 1}, res)

	sig := r.Signals()["A"]
	assert.Equal(t, model.Signal{RoadID: 1, Color: model.Green, Content: 7, Status: model.StatusOK}, sig)
}

func TestApplySignals_LastWriteWins(t *testing.T) {
	r := NewReconciler(2)

	_, err := r.ApplySignals("B", []byte(`{"messages":[
		{"road":2,"color":"RED","content":9},
		{"road":"2","color":"YELLOW","content":3}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, model.Yellow, r.Signals()["B"].Color)

	// an older countdown arriving later still overwrites
	_, err = r.ApplySignals("B", []byte(`{"messages":[{"road":2,"color":"RED","content":20}]}`))
	require.NoError(t, err)
	assert.Equal(t, 20, r.Signals()["B"].Content)
}

func TestApplySignals_UnroutableEntriesDropped(t *testing.T) {
	roads := []string{`"abc"`, `"1.5"`, `null`, `true`, `{}`, `1.5`, `""`}

	for _, road := range roads {
		t.Run(road, func(t *testing.T) {
			r := NewReconciler(1)
			before := r.Signals()
			payload := `{"messages":[{"road":` + road + `,"color":"GREEN","content":7}]}`

			res, err := r.ApplySignals("A", []byte(payload))
			assert.ErrorIs(t, err, ErrUnroutable)
			assert.Equal(t, 1, res.Dropped)
			assert.Equal(t, before, r.Signals())
		})
	}
}

func TestApplySignals_DropDoesNotAffectSiblings(t *testing.T) {
	r := NewReconciler(1)
	res, err := r.ApplySignals("A", []byte(`{"messages":[
		{"road":"x","color":"RED","content":1},
		{"road":"1","color":"GREEN","content":4},
		{"road":"3","color":"RED","content":4}
	]}`))
	assert.Error(t, err)
	assert.Equal(t, SignalResult{Applied: 1, Ignored: 1, Dropped: 1}, res)
	assert.Equal(t, model.Green, r.Signals()["A"].Color)
}

func TestApplySignals_BadEntryFieldsBecomeMarker(t *testing.T) {
	r := NewReconciler(1)
	_, err := r.ApplySignals("A", []byte(`{"messages":[{"road":1,"color":"PURPLE","content":4}]}`))
	assert.Error(t, err)
	assert.Equal(t, model.StatusError, r.Signals()["A"].Status)

	_, err = r.ApplySignals("A", []byte(`{"messages":[{"road":1,"color":"RED","content":"soon"}]}`))
	assert.Error(t, err)
	assert.Equal(t, model.StatusError, r.Signals()["A"].Status)
}

func TestApplySignals_MalformedBatch(t *testing.T) {
	r := NewReconciler(1)
	_, err := r.ApplySignals("A", []byte(`{"messages":[{"road":1,"color":"RED","content":4}]}`))
	require.NoError(t, err)

	_, err = r.ApplySignals("A", []byte(`[[[`))
	assert.Error(t, err)
	assert.Equal(t, model.Red, r.Signals()["A"].Color)

	res, err := r.ApplySignals("A", []byte(`{"type":"mqtt_connection"}`))
	assert.NoError(t, err)
	assert.Equal(t, SignalResult{}, res)
}

func TestParseRoad(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{`1`, 1, true},
		{`"12"`, 12, true},
		{`" 3 "`, 3, true},
		{`2.0`, 2, true},
		{`"1a"`, 0, false},
		{`2.5`, 0, false},
		{`[]`, 0, false},
	}
	for _, tc := range tests {
		got, err := ParseRoad(json.RawMessage(tc.raw))
		if tc.ok {
			assert.NoError(t, err, tc.raw)
			assert.Equal(t, tc.want, got, tc.raw)
		} else {
			assert.Error(t, err, tc.raw)
		}
	}
}
