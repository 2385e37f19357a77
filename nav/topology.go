package nav

// Topology maps a simulated-plane coordinate to a quadrant on the RSU
// grid. The grid covers
// Cols x Rows cells, each RSURange wide/tall, anchored at the origin.
type Topology struct {
	Cols, Rows int
	RSURange   float64
}

// NewTopology builds a Topology of cols x rows cells, each side RSURange
// units long.
func NewTopology(cols, rows int, rsuRange float64) *Topology {
	return &Topology{Cols: cols, Rows: rows, RSURange: rsuRange}
}

// Quadrant returns the grid cell (col, row) containing (x, y), clamped
// to the grid's bounds so a vehicle that has wandered past the mapped
// area still resolves to its nearest edge cell rather than an invalid
// one.
func (t *Topology) Quadrant(x, y float64) (col, row int) {
	col = int(x / t.RSURange)
	row = int(y / t.RSURange)
	return t.clampCol(col), t.clampRow(row)
}

func (t *Topology) clampCol(col int) int {
	if col < 0 {
		return 0
	}
	if col >= t.Cols {
		return t.Cols - 1
	}
	return col
}

func (t *Topology) clampRow(row int) int {
	if row < 0 {
		return 0
	}
	if row >= t.Rows {
		return t.Rows - 1
	}
	return row
}

// RSUID assigns a unique, deterministic id to the RSU at (col, row),
// used to index mac.KeyEntry records.
func (t *Topology) RSUID(col, row int) int32 {
	return int32(row*t.Cols + col)
}

// Neighborhood returns the up-to-9 RSU ids of the 3x3 block centred on
// (col, row), clipped at the grid's borders.
func (t *Topology) Neighborhood(col, row int) []int32 {
	var ids []int32
	for dr := -1; dr <= 1; dr++ {
		r := row + dr
		if r < 0 || r >= t.Rows {
			continue
		}
		for dc := -1; dc <= 1; dc++ {
			c := col + dc
			if c < 0 || c >= t.Cols {
				continue
			}
			ids = append(ids, t.RSUID(c, r))
		}
	}
	return ids
}
