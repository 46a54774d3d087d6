package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/intersection-view/internal/model"
)

func camera(id string, from model.Direction) model.Device {
	return model.Device{DeviceID: id, Type: model.DeviceCamera, RoadID: 1, DirectionFrom: from}
}

func light(id string) model.Device {
	return model.Device{DeviceID: id, Type: model.DeviceLight, RoadID: 1}
}

func TestBuild_PartitionsDevices(t *testing.T) {
	devices := []model.Device{camera("cam-1", model.North), light("light-1"), camera("cam-2", model.East), light("light-2")}

	ix := Build(devices, DefaultGroups())

	require.Len(t, ix.Cameras, 2)
	require.Len(t, ix.Lights, 2)
	assert.Equal(t, "cam-1", ix.Cameras[0].DeviceID)
	assert.Equal(t, "cam-2", ix.Cameras[1].DeviceID)
	assert.Equal(t, len(devices), len(ix.Cameras)+len(ix.Lights))
	assert.False(t, ix.Empty())
}

func TestBuild_GroupMatching(t *testing.T) {
	tests := []struct {
		name    string
		from    model.Direction
		want    model.GroupID
		matched bool
	}{
		{"north is A", model.North, "A", true},
		{"south is A", model.South, "A", true},
		{"east is B", model.East, "B", true},
		{"west is B", model.West, "B", true},
		{"missing direction has no group", "", "", false},
		{"unknown direction has no group", model.Direction("Up"), "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ix := Build([]model.Device{camera("cam", tc.from)}, DefaultGroups())
			g, ok := ix.GroupFor("cam")
			assert.Equal(t, tc.matched, ok)
			assert.Equal(t, tc.want, g)
		})
	}
}

func TestBuild_RecomputesOnChange(t *testing.T) {
	first := Build([]model.Device{camera("cam", model.North)}, DefaultGroups())
	g, ok := first.GroupFor("cam")
	require.True(t, ok)
	assert.Equal(t, model.GroupID("A"), g)

	second := Build([]model.Device{camera("cam", model.West)}, DefaultGroups())
	g, ok = second.GroupFor("cam")
	require.True(t, ok)
	assert.Equal(t, model.GroupID("B"), g)

	// the first index is unaffected by the rebuild
	g, _ = first.GroupFor("cam")
	assert.Equal(t, model.GroupID("A"), g)
}

func TestBuild_CustomTable(t *testing.T) {
	table := GroupTable{model.North: "N", model.South: "S", model.East: "E"}
	ix := Build([]model.Device{camera("c1", model.South), camera("c2", model.West)}, table)

	g, ok := ix.GroupFor("c1")
	assert.True(t, ok)
	assert.Equal(t, model.GroupID("S"), g)

	_, ok = ix.GroupFor("c2")
	assert.False(t, ok)
}

func TestBuild_Empty(t *testing.T) {
	ix := Build(nil, DefaultGroups())
	assert.True(t, ix.Empty())
	assert.NotNil(t, ix.Cameras)
	assert.NotNil(t, ix.Lights)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(map[string]string{"north": "A", "South": "A", "EAST": "C"})
	require.NoError(t, err)
	assert.Equal(t, GroupTable{model.North: "A", model.South: "A", model.East: "C"}, table)

	table, err = ParseTable(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGroups(), table)

	_, err = ParseTable(map[string]string{"Up": "A"})
	assert.Error(t, err)

	_, err = ParseTable(map[string]string{"West": ""})
	assert.Error(t, err)
}
