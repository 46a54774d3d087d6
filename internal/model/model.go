package model

import "strings"

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeManual
}

type DeviceType string

const (
	DeviceCamera DeviceType = "camera"
	DeviceLight  DeviceType = "light"
)

// ParseDeviceType accepts the registry spellings for cameras and signal heads.
func ParseDeviceType(s string) (DeviceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "camera":
		return DeviceCamera, true
	case "light", "traffic_light":
		return DeviceLight, true
	default:
		return "", false
	}
}

type Direction string

const (
	North Direction = "North"
	South Direction = "South"
	East  Direction = "East"
	West  Direction = "West"
)

// ParseDirection normalizes case; anything else yields the empty direction.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north":
		return North
	case "south":
		return South
	case "east":
		return East
	case "west":
		return West
	default:
		return ""
	}
}

// GroupID names a logical signal group. Each group is fed by the bridge with the same id.
type GroupID string

type Device struct {
	DeviceID      string     `json:"device_id"`
	Name          string     `json:"name,omitempty"`
	Type          DeviceType `json:"type"`
	RoadID        int        `json:"road_id"`
	DirectionFrom Direction  `json:"direction_from,omitempty"`
	DirectionTo   Direction  `json:"direction_to,omitempty"`
	Status        string     `json:"status"`
}

type Road struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Location string   `json:"location"`
	District string   `json:"district,omitempty"`
	City     string   `json:"city,omitempty"`
	Status   string   `json:"status,omitempty"`
	Mode     Mode     `json:"mode,omitempty"`
	Devices  []Device `json:"devices"`
}

// FieldStatus marks whether a telemetry field carries a value or one of the degraded markers.
type FieldStatus string

const (
	StatusOK           FieldStatus = "ok"
	StatusUnknown      FieldStatus = "unknown"
	StatusError        FieldStatus = "error"
	StatusDisconnected FieldStatus = "disconnected"
	StatusFeedError    FieldStatus = "feed_error"
)

func (s FieldStatus) Degraded() bool {
	return s != StatusOK
}

type Metric struct {
	Value  float64
	Status FieldStatus
}

func Known(v float64) Metric {
	return Metric{Value: v, Status: StatusOK}
}

func Marker(s FieldStatus) Metric {
	return Metric{Status: s}
}

type ClassCount struct {
	Class string  `json:"class"`
	Count float64 `json:"count"`
}

// TelemetryFrame is the latest analytics update for a road. DownByClass is kept sorted by class.
type TelemetryFrame struct {
	TotalDown   Metric
	FPS         Metric
	DownByClass []ClassCount
	ClassStatus FieldStatus
}

func UnknownFrame() TelemetryFrame {
	return TelemetryFrame{
		TotalDown:   Marker(StatusUnknown),
		FPS:         Marker(StatusUnknown),
		ClassStatus: StatusOK,
	}
}

type Color string

const (
	Red    Color = "RED"
	Yellow Color = "YELLOW"
	Green  Color = "GREEN"
)

func ParseColor(s string) (Color, bool) {
	switch Color(strings.ToUpper(strings.TrimSpace(s))) {
	case Red:
		return Red, true
	case Yellow:
		return Yellow, true
	case Green:
		return Green, true
	default:
		return "", false
	}
}

// Signal is the last phase report for one (road, group). Status is StatusError when the
// entry addressed this road but its color or countdown was unusable.
type Signal struct {
	RoadID  int
	Color   Color
	Content int
	Status  FieldStatus
}
