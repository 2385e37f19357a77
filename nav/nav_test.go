package nav

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalkStaysInBounds(t *testing.T) {
	rw := NewRandomWalk(5, 5, 10, 1, 42)
	for i := 0; i < 1000; i++ {
		x, y := rw.Coordinates()
		assert.GreaterOrEqual(t, x, 0.0)
		assert.Less(t, x, 10.0)
		assert.GreaterOrEqual(t, y, 0.0)
		assert.Less(t, y, 10.0)
	}
}

func TestWaypointsCycles(t *testing.T) {
	wp := NewWaypoints([]Coordinate{{X: 1, Y: 1}, {X: 2, Y: 2}})
	x, y := wp.Coordinates()
	assert.Equal(t, Coordinate{1, 1}, Coordinate{x, y})
	x, y = wp.Coordinates()
	assert.Equal(t, Coordinate{2, 2}, Coordinate{x, y})
	x, y = wp.Coordinates()
	assert.Equal(t, Coordinate{1, 1}, Coordinate{x, y})
}

func TestWaypointsRequiresAtLeastOnePoint(t *testing.T) {
	assert.Panics(t, func() { NewWaypoints(nil) })
}

func TestCSVSourceParsesAndCycles(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader("x,y\n1.5,2.5\n3,4\n"))
	require.NoError(t, err)

	x, y := src.Coordinates()
	assert.Equal(t, 1.5, x)
	assert.Equal(t, 2.5, y)

	x, y = src.Coordinates()
	assert.Equal(t, 3.0, x)
	assert.Equal(t, 4.0, y)

	x, y = src.Coordinates()
	assert.Equal(t, 1.5, x)
}

func TestCSVSourceRejectsEmptyInput(t *testing.T) {
	_, err := NewCSVSource(strings.NewReader("a,b\n"))
	assert.Error(t, err)
}

func TestNavigatorQuadrant(t *testing.T) {
	topo := NewTopology(4, 4, 10)
	n := New(NewWaypoints([]Coordinate{{X: 25, Y: 5}}), topo)
	col, row := n.Quadrant()
	assert.Equal(t, 2, col)
	assert.Equal(t, 0, row)
}
