package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"nowcast/pkg/contracts/domain"
)

// Aggregate adds the pooled periods_avg and periods_mseweight series of
// every (branch, criterion) over the given horizons. The MSE weights of a
// quarter use only records of strictly earlier quarters.
func Aggregate(t *Table, horizons []domain.Horizon, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	type group struct {
		branch    domain.Branch
		criterion domain.Criterion
	}
	var groups []group
	seen := make(map[group]bool)
	for _, k := range t.Keys() {
		g := group{k.Branch, k.Criterion}
		if k.Weighting == domain.WeightingNone && !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}

	for _, g := range groups {
		series := make([][]domain.ResultRecord, 0, len(horizons))
		quarters := make(map[domain.Quarter]bool)
		for _, h := range horizons {
			s := t.Series(domain.ResultKey{Branch: g.branch, Criterion: g.criterion, Weighting: domain.WeightingNone, Horizon: h.Label})
			series = append(series, s)
			for _, r := range s {
				quarters[r.Quarter] = true
			}
		}
		for _, w := range []domain.Weighting{domain.WeightingAverage, domain.WeightingMSE} {
			key := domain.ResultKey{Branch: g.branch, Criterion: g.criterion, Weighting: w, Horizon: domain.HorizonPooled}
			var mse, mseAR RunningMSE
			for _, q := range sortedQuarters(quarters) {
				rec := pool(series, q, w)
				rec.Key = key
				rec.MSE = mse.Add(rec.YActual, rec.YPred)
				rec.MSEAR4 = mseAR.Add(rec.YActual, rec.YPredAR4)
				if err := t.Add(rec); err != nil {
					return fmt.Errorf("aggregate %s: %w", key, err)
				}
			}
		}
		logger.Debug("horizons_pooled",
			slog.String("branch", string(g.branch)),
			slog.String("criterion", string(g.criterion)),
			slog.Int("quarters", len(quarters)))
	}
	return nil
}

// pool combines the horizon records of quarter q
func pool(series [][]domain.ResultRecord, q domain.Quarter, w domain.Weighting) domain.ResultRecord {
	out := domain.ResultRecord{Quarter: q, YActual: math.NaN(), YPred: math.NaN(), YPredAR4: math.NaN()}
	var preds, predsAR []float64
	var prior, priorAR []float64
	for _, s := range series {
		var rec *domain.ResultRecord
		var errs, errsAR []float64
		for i := range s {
			r := s[i]
			if r.Quarter == q {
				rec = &s[i]
				continue
			}
			if r.Quarter.Before(q) && r.HasActual() {
				if !math.IsNaN(r.YPred) {
					errs = append(errs, sq(r.YActual-r.YPred))
				}
				if !math.IsNaN(r.YPredAR4) {
					errsAR = append(errsAR, sq(r.YActual-r.YPredAR4))
				}
			}
		}
		if rec == nil {
			continue
		}
		if rec.HasActual() {
			out.YActual = rec.YActual
		}
		if !math.IsNaN(rec.YPred) {
			preds = append(preds, rec.YPred)
			prior = append(prior, meanOrNaN(errs))
		}
		if !math.IsNaN(rec.YPredAR4) {
			predsAR = append(predsAR, rec.YPredAR4)
			priorAR = append(priorAR, meanOrNaN(errsAR))
		}
	}
	if w == domain.WeightingMSE {
		out.YPred = weighted(preds, Weights(prior))
		out.YPredAR4 = weighted(predsAR, Weights(priorAR))
	} else {
		out.YPred = weighted(preds, nil)
		out.YPredAR4 = weighted(predsAR, nil)
	}
	return out
}

// Weights returns combination weights proportional to 1/MSE. When any MSE
// is unknown (NaN) the weights are equal; horizons with zero MSE share all
// the weight.
func Weights(mse []float64) []float64 {
	n := len(mse)
	if n == 0 {
		return nil
	}
	w := make([]float64, n)
	for _, m := range mse {
		if math.IsNaN(m) {
			for i := range w {
				w[i] = 1 / float64(n)
			}
			return w
		}
	}
	var zeros int
	for _, m := range mse {
		if m == 0 {
			zeros++
		}
	}
	for i, m := range mse {
		switch {
		case zeros > 0 && m == 0:
			w[i] = 1
		case zeros == 0:
			w[i] = 1 / m
		}
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

func weighted(x, w []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, w)
}

func meanOrNaN(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

func sq(x float64) float64 { return x * x }

func sortedQuarters(set map[domain.Quarter]bool) []domain.Quarter {
	out := make([]domain.Quarter, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// SummaryRow is the accuracy of one series over the quarters with a known
// actual
type SummaryRow struct {
	Key      domain.ResultKey
	N        int
	RMSE     float64
	RMSEAR4  float64
	Relative float64
}

// MarshalJSON encodes NaN statistics as null
func (s SummaryRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key      domain.ResultKey `json:"key"`
		N        int              `json:"n"`
		RMSE     *float64         `json:"rmse"`
		RMSEAR4  *float64         `json:"rmse_ar4"`
		Relative *float64         `json:"relative_rmse"`
	}{s.Key, s.N, domain.NullFloat(s.RMSE), domain.NullFloat(s.RMSEAR4), domain.NullFloat(s.Relative)})
}

// Summary computes per-series RMSE and RMSE relative to the AR(4) baseline
// over quarters where both forecasts and the actual exist
func Summary(t *Table) []SummaryRow {
	var out []SummaryRow
	for _, k := range t.Keys() {
		var m, mAR RunningMSE
		for _, r := range t.Series(k) {
			if math.IsNaN(r.YPred) || math.IsNaN(r.YPredAR4) {
				continue
			}
			m.Add(r.YActual, r.YPred)
			mAR.Add(r.YActual, r.YPredAR4)
		}
		row := SummaryRow{Key: k, N: m.N(), RMSE: math.Sqrt(m.Value()), RMSEAR4: math.Sqrt(mAR.Value())}
		row.Relative = row.RMSE / row.RMSEAR4
		if row.RMSEAR4 == 0 {
			row.Relative = math.NaN()
		}
		out = append(out, row)
	}
	return out
}
