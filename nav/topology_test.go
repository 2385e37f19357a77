package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopologyQuadrantClampsToGrid(t *testing.T) {
	topo := NewTopology(3, 3, 10)
	col, row := topo.Quadrant(-5, 1000)
	assert.Equal(t, 0, col)
	assert.Equal(t, 2, row)
}

func TestTopologyNeighborhoodClipsAtBorders(t *testing.T) {
	topo := NewTopology(3, 3, 10)
	ids := topo.Neighborhood(0, 0)
	assert.Len(t, ids, 4)

	ids = topo.Neighborhood(1, 1)
	assert.Len(t, ids, 9)
}

func TestTopologyRSUIDIsDeterministic(t *testing.T) {
	topo := NewTopology(3, 3, 10)
	assert.Equal(t, int32(4), topo.RSUID(1, 1))
}
