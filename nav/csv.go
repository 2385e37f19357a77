package nav

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// CSVSource replays recorded (x, y) pairs from a two-column CSV file,
// cycling back to the first row once exhausted.
type CSVSource struct {
	mu   sync.Mutex
	rows []Coordinate
	idx  int
}

// NewCSVSource parses every row of r as "x,y" float pairs. A header row
// that fails to parse as floats is skipped rather than rejected, since
// CSV exports commonly carry a column-name header.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	var rows []Coordinate
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("nav: reading csv: %w", err)
		}
		x, xerr := strconv.ParseFloat(record[0], 64)
		y, yerr := strconv.ParseFloat(record[1], 64)
		if xerr != nil || yerr != nil {
			continue
		}
		rows = append(rows, Coordinate{X: x, Y: y})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("nav: csv source has no usable rows")
	}
	return &CSVSource{rows: rows}, nil
}

// Coordinates returns the current row and advances to the next one,
// wrapping to the start once the dataset is exhausted.
func (c *CSVSource) Coordinates() (x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.rows[c.idx]
	c.idx = (c.idx + 1) % len(c.rows)
	return p.X, p.Y
}
