package view

import (
	"sort"
	"strconv"

	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/stream"
	"github.com/thatsimonsguy/intersection-view/internal/topology"
)

// Labels shown in place of a value.
const (
	LabelUnknown      = "N/A"
	LabelError        = "Error"
	LabelDisconnected = "Disconnected"

	ClassesUnavailable = "Data not available"
	ClassesParseError  = "Error loading data"
	ClassesFeedError   = "WebSocket Error"
	ClassesClosed      = "Connection Closed"

	NoDevices = "no devices connected"
)

// Fields selects which analytics fields a view shows.
type Fields struct {
	TotalDown   bool
	FPS         bool
	DownByClass bool
}

func AllFields() Fields {
	return Fields{TotalDown: true, FPS: true, DownByClass: true}
}

type Input struct {
	Road    model.Road
	Mode    model.Mode
	Frame   model.TelemetryFrame
	Index   topology.Index
	Signals map[model.GroupID]model.Signal
	Feeds   map[stream.Source]stream.State
	Cycle   control.CycleForm
	Fields  Fields
	// PrimaryGroup is the group whose countdown is shown in the info panel.
	PrimaryGroup model.GroupID
}

type ClassRow struct {
	Label string `json:"label"`
	Count *string `json:"count"`
}

type SignalView struct {
	Color     string `json:"color"`
	Countdown int    `json:"countdown"`
	Red       bool   `json:"red"`
	Yellow    bool   `json:"yellow"`
	Green     bool   `json:"green"`
	Error     bool   `json:"error,omitempty"`
}

type CameraView struct {
	DeviceID      string      `json:"device_id"`
	Name          string      `json:"name,omitempty"`
	DirectionFrom string      `json:"direction_from,omitempty"`
	DirectionTo   string      `json:"direction_to,omitempty"`
	Status        string      `json:"status"`
	Group         string      `json:"group,omitempty"`
	Signal        *SignalView `json:"signal,omitempty"`
}

type LightView struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status"`
}

type CycleView struct {
	Green   string `json:"green"`
	Red     string `json:"red"`
	Pending bool   `json:"pending"`
}

type FeedView struct {
	Source string `json:"source"`
	State  string `json:"state"`
}

type Intersection struct {
	RoadID      int          `json:"road_id"`
	Name        string       `json:"name"`
	Location    string       `json:"location"`
	Mode        string       `json:"mode"`
	TotalDown   *string      `json:"total_down,omitempty"`
	FPS         *string      `json:"fps,omitempty"`
	DownByClass []ClassRow   `json:"down_by_class,omitempty"`
	Countdown   *int         `json:"countdown,omitempty"`
	Cameras     []CameraView `json:"cameras"`
	Lights      []LightView  `json:"lights"`
	Notice      string       `json:"notice,omitempty"`
	Cycle       CycleView    `json:"cycle"`
	Feeds       []FeedView   `json:"feeds"`
}

// Project assembles the presentation structure. It reads only its input.
func Project(in Input) Intersection {
	out := Intersection{
		RoadID:   in.Road.ID,
		Name:     in.Road.Name,
		Location: in.Road.Location,
		Mode:     string(in.Mode),
		Cameras:  []CameraView{},
		Lights:   []LightView{},
		Feeds:    []FeedView{},
		Cycle: CycleView{
			Green:   in.Cycle.Green,
			Red:     in.Cycle.Red,
			Pending: in.Cycle.Pending,
		},
	}

	if in.Fields.TotalDown {
		s := renderMetric(in.Frame.TotalDown, formatCount)
		out.TotalDown = &s
	}
	if in.Fields.FPS {
		s := renderMetric(in.Frame.FPS, formatFPS)
		out.FPS = &s
	}
	if in.Fields.DownByClass {
		out.DownByClass = renderClasses(in.Frame)
	}

	if sig, ok := in.Signals[in.PrimaryGroup]; ok && sig.Status == model.StatusOK {
		c := sig.Content
		out.Countdown = &c
	}

	for _, cam := range in.Index.Cameras {
		cv := CameraView{
			DeviceID:      cam.DeviceID,
			Name:          cam.Name,
			DirectionFrom: string(cam.DirectionFrom),
			DirectionTo:   string(cam.DirectionTo),
			Status:        cam.Status,
		}
		if g, ok := in.Index.GroupFor(cam.DeviceID); ok {
			cv.Group = string(g)
			if sig, ok := in.Signals[g]; ok {
				cv.Signal = renderSignal(sig)
			}
		}
		out.Cameras = append(out.Cameras, cv)
	}

	for _, l := range in.Index.Lights {
		out.Lights = append(out.Lights, LightView{DeviceID: l.DeviceID, Name: l.Name, Status: l.Status})
	}

	if in.Index.Empty() {
		out.Notice = NoDevices
	}

	for src, st := range in.Feeds {
		out.Feeds = append(out.Feeds, FeedView{Source: string(src), State: string(st)})
	}
	sort.Slice(out.Feeds, func(i, j int) bool { return out.Feeds[i].Source < out.Feeds[j].Source })

	return out
}

func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFPS(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func renderMetric(m model.Metric, format func(float64) string) string {
	switch m.Status {
	case model.StatusOK:
		return format(m.Value)
	case model.StatusError, model.StatusFeedError:
		return LabelError
	case model.StatusDisconnected:
		return LabelDisconnected
	default:
		return LabelUnknown
	}
}

func renderClasses(f model.TelemetryFrame) []ClassRow {
	switch f.ClassStatus {
	case model.StatusOK:
		rows := make([]ClassRow, 0, len(f.DownByClass))
		for _, c := range f.DownByClass {
			n := formatCount(c.Count)
			rows = append(rows, ClassRow{Label: c.Class, Count: &n})
		}
		return rows
	case model.StatusError:
		return []ClassRow{{Label: ClassesParseError}}
	case model.StatusFeedError:
		return []ClassRow{{Label: ClassesFeedError}}
	case model.StatusDisconnected:
		return []ClassRow{{Label: ClassesClosed}}
	default:
		return []ClassRow{{Label: ClassesUnavailable}}
	}
}

func renderSignal(sig model.Signal) *SignalView {
	if sig.Status != model.StatusOK {
		return &SignalView{Error: true}
	}
	return &SignalView{
		Color:     string(sig.Color),
		Countdown: sig.Content,
		Red:       sig.Color == model.Red,
		Yellow:    sig.Color == model.Yellow,
		Green:     sig.Color == model.Green,
	}
}
