package mac

import "github.com/v2xmesh/substrate/nav"

// QuadrantKeeper adapts a KeyKeeper plus a Topology into the
// v2xproto.QuadrantKeyer boundary: given a sender's simulated-plane
// coordinates, resolve the quadrant they fall in and look up the key
// currently assigned to that quadrant's RSU.
type QuadrantKeeper struct {
	kk   *KeyKeeper
	topo *nav.Topology
}

// NewQuadrantKeeper builds a QuadrantKeeper over kk, resolving
// quadrants with topo.
func NewQuadrantKeeper(kk *KeyKeeper, topo *nav.Topology) *QuadrantKeeper {
	return &QuadrantKeeper{kk: kk, topo: topo}
}

// KeyFor resolves the key for the RSU quadrant containing (x, y).
func (q *QuadrantKeeper) KeyFor(x, y float64) (Key, bool) {
	col, row := q.topo.Quadrant(x, y)
	return q.kk.Key(q.topo.RSUID(col, row))
}
