/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package nav implements the position sources a vehicle's coordinates
// come from (random walk, waypoints, CSV playback) and the RSU-grid
// Topology those coordinates are looked up against.
package nav

import (
	"math"
	"math/rand"
	"sync"
)

// Coordinate is a point in the simulated map plane.
type Coordinate struct {
	X, Y float64
}

// LocationSource supplies a vehicle's current simulated position.
type LocationSource interface {
	Coordinates() (x, y float64)
}

// Navigator wraps a LocationSource together with the Topology so the
// protocol layer can stamp outbound frames with coordinates and the
// key layer can resolve the current quadrant.
type Navigator struct {
	source LocationSource
	topo   *Topology
}

// New builds a Navigator over source, resolving quadrants against topo.
func New(source LocationSource, topo *Topology) *Navigator {
	return &Navigator{source: source, topo: topo}
}

// Coordinates satisfies v2xproto.Navigator.
func (n *Navigator) Coordinates() (x, y float64) {
	return n.source.Coordinates()
}

// Quadrant returns this vehicle's current RSU grid cell.
func (n *Navigator) Quadrant() (col, row int) {
	x, y := n.source.Coordinates()
	return n.topo.Quadrant(x, y)
}

// RandomWalk is a LocationSource that perturbs its position by a random
// step on every call, bounded to [0, bound) on each axis.
type RandomWalk struct {
	mu    sync.Mutex
	x, y  float64
	bound float64
	step  float64
	rnd   *rand.Rand
}

// NewRandomWalk seeds a RandomWalk at (x0, y0), confined to [0, bound)
// and moving at most step per call on each axis.
func NewRandomWalk(x0, y0, bound, step float64, seed int64) *RandomWalk {
	return &RandomWalk{x: x0, y: y0, bound: bound, step: step, rnd: rand.New(rand.NewSource(seed))}
}

// Coordinates advances the position by one random step, clamped to the
// configured bound, and returns the new position.
func (r *RandomWalk) Coordinates() (x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.x = clamp(r.x+(r.rnd.Float64()*2-1)*r.step, r.bound)
	r.y = clamp(r.y+(r.rnd.Float64()*2-1)*r.step, r.bound)
	return r.x, r.y
}

func clamp(v, bound float64) float64 {
	if v < 0 {
		return 0
	}
	if v >= bound {
		return math.Nextafter(bound, 0)
	}
	return v
}

// Waypoints is a LocationSource that steps through a fixed ordered route,
// advancing one waypoint per call and wrapping at the end.
type Waypoints struct {
	mu     sync.Mutex
	points []Coordinate
	idx    int
}

// NewWaypoints builds a Waypoints source cycling through points in order.
// A nil or empty points slice is a programmer error; NewWaypoints panics.
func NewWaypoints(points []Coordinate) *Waypoints {
	if len(points) == 0 {
		panic("nav: Waypoints requires at least one point")
	}
	return &Waypoints{points: points}
}

// Coordinates returns the current waypoint and advances to the next one.
func (w *Waypoints) Coordinates() (x, y float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.points[w.idx]
	w.idx = (w.idx + 1) % len(w.points)
	return p.X, p.Y
}
