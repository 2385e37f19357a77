package rsu

// DefaultRenewInterval is how many cycles a key generation lives.
const DefaultRenewInterval = 3

// Group is the shared state of one RSU grid: the Matrix every member
// RSU writes its own slot into, the two barrier phases of the rotation
// cycle, and the id of the single designated RSU (the lowest id,
// selected once at startup).
type Group struct {
	Matrix        *Matrix
	barrier1      *barrier
	barrier2      *barrier
	designated    int32
	renewInterval uint32
}

// NewGroup builds a Group for the RSUs in ids, designating the
// lowest id to advance the shared epoch counter.
func NewGroup(ids []int32, renewInterval uint32) *Group {
	if renewInterval == 0 {
		renewInterval = DefaultRenewInterval
	}
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return &Group{
		Matrix:        NewMatrix(),
		barrier1:      newBarrier(len(ids)),
		barrier2:      newBarrier(len(ids)),
		designated:    min,
		renewInterval: renewInterval,
	}
}

// Designated reports whether id is this group's epoch-advancing RSU.
func (g *Group) Designated(id int32) bool {
	return id == g.designated
}
