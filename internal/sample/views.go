package sample

import (
	"time"

	"nowcast/internal/errors"
	"nowcast/internal/panel"
	"nowcast/pkg/contracts/domain"
)

// Views partitions the panel rows. In holds rows dated up to and including
// NowcastStart, Out the rows after it; together they make up Full.
type Views struct {
	Start        time.Time `json:"start"`
	NowcastStart time.Time `json:"nowcast_start"`
	End          time.Time `json:"end"`
	Full         []int     `json:"full"`
	In           []int     `json:"in"`
	Out          []int     `json:"out"`
}

// ToSampleViews splits the rows of p on start ≤ nowcastStart ≤ end
func ToSampleViews(p *panel.Panel, start, end, nowcastStart time.Time) (Views, error) {
	if start.After(nowcastStart) || nowcastStart.After(end) {
		return Views{}, errors.NewConfigurationError("sample dates must satisfy start ≤ nowcast_start ≤ end",
			map[string]interface{}{
				"start":         start.Format("2006-01-02"),
				"nowcast_start": nowcastStart.Format("2006-01-02"),
				"end":           end.Format("2006-01-02"),
			})
	}
	v := Views{Start: start, NowcastStart: nowcastStart, End: end}
	for _, r := range p.Rows(start, end) {
		v.Full = append(v.Full, r)
		if p.Date(r).After(nowcastStart) {
			v.Out = append(v.Out, r)
		} else {
			v.In = append(v.In, r)
		}
	}
	switch {
	case len(v.Full) == 0:
		return Views{}, errors.NewEmptySampleError("full", start, end)
	case len(v.In) == 0:
		return Views{}, errors.NewEmptySampleError("in", start, nowcastStart)
	case len(v.Out) == 0:
		return Views{}, errors.NewEmptySampleError("out", nowcastStart.AddDate(0, 0, 1), end)
	}
	return v, nil
}

// OutQuarters returns the quarters of the out-of-sample rows
func (v Views) OutQuarters(p *panel.Panel) []domain.Quarter {
	out := make([]domain.Quarter, len(v.Out))
	for i, r := range v.Out {
		out[i] = domain.QuarterOf(p.Date(r))
	}
	return out
}

// InFull reports whether row r belongs to the full sample
func (v Views) InFull(r int) bool {
	if len(v.Full) == 0 {
		return false
	}
	return r >= v.Full[0] && r <= v.Full[len(v.Full)-1]
}
