package topology

import (
	"fmt"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

// GroupTable maps a camera's direction_from to the logical signal group that governs it.
type GroupTable map[model.Direction]model.GroupID

func DefaultGroups() GroupTable {
	return GroupTable{
		model.North: "A",
		model.South: "A",
		model.East:  "B",
		model.West:  "B",
	}
}

// ParseTable builds a table from configured direction names. Empty input yields the default.
func ParseTable(raw map[string]string) (GroupTable, error) {
	if len(raw) == 0 {
		return DefaultGroups(), nil
	}
	table := make(GroupTable, len(raw))
	for dir, group := range raw {
		d := model.ParseDirection(dir)
		if d == "" {
			return nil, fmt.Errorf("unknown direction %q", dir)
		}
		if group == "" {
			return nil, fmt.Errorf("direction %s has no group", d)
		}
		table[d] = model.GroupID(group)
	}
	return table, nil
}

type Index struct {
	Cameras []model.Device
	Lights  []model.Device
	groups  map[string]model.GroupID
}

// Build partitions devices into cameras and lights and matches each camera to a group.
// It never reuses a previous index; callers rebuild on every device-list change.
func Build(devices []model.Device, table GroupTable) Index {
	ix := Index{
		Cameras: []model.Device{},
		Lights:  []model.Device{},
		groups:  make(map[string]model.GroupID),
	}

	for _, d := range devices {
		switch d.Type {
		case model.DeviceCamera:
			ix.Cameras = append(ix.Cameras, d)
			if g, ok := table[d.DirectionFrom]; ok && d.DirectionFrom != "" {
				ix.groups[d.DeviceID] = g
			}
		case model.DeviceLight:
			ix.Lights = append(ix.Lights, d)
		}
	}
	return ix
}

// GroupFor returns the camera's matched group. Unmatched cameras render without a signal overlay.
func (ix Index) GroupFor(deviceID string) (model.GroupID, bool) {
	g, ok := ix.groups[deviceID]
	return g, ok
}

func (ix Index) Empty() bool {
	return len(ix.Cameras) == 0 && len(ix.Lights) == 0
}
