package evaluate

import (
	"fmt"

	"nowcast/pkg/contracts/domain"
)

// CellStatus is the lifecycle position of one (quarter, horizon) cell
type CellStatus string

const (
	CellPending   CellStatus = "pending"
	CellSelecting CellStatus = "selecting"
	CellFitting   CellStatus = "fitting"
	CellScored    CellStatus = "scored"
)

// transitions lists the legal moves. Selecting goes straight to Scored
// when there is nothing to fit.
var transitions = map[CellStatus][]CellStatus{
	CellPending:   {CellSelecting},
	CellSelecting: {CellFitting, CellScored},
	CellFitting:   {CellScored},
}

// Cell tracks one evaluation cell
type Cell struct {
	Quarter domain.Quarter
	Horizon domain.Horizon
	Status  CellStatus
	// Baseline is set when the cell was scored without a regression
	Baseline bool
}

// NewCell returns a pending cell
func NewCell(q domain.Quarter, h domain.Horizon) *Cell {
	return &Cell{Quarter: q, Horizon: h, Status: CellPending}
}

// Advance moves the cell to next or fails on an illegal transition
func (c *Cell) Advance(next CellStatus) error {
	for _, allowed := range transitions[c.Status] {
		if allowed == next {
			if c.Status == CellSelecting && next == CellScored {
				c.Baseline = true
			}
			c.Status = next
			return nil
		}
	}
	return fmt.Errorf("cell %s/%s: illegal transition %s -> %s", c.Quarter, c.Horizon.Label, c.Status, next)
}
