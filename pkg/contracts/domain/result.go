package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Branch distinguishes forecasts built on the selected variables from those
// built on every visible variable
type Branch string

const (
	BranchSelected Branch = "selected"
	BranchAll      Branch = "all"
)

// ParseBranch validates a branch name
func ParseBranch(s string) (Branch, error) {
	switch Branch(s) {
	case BranchSelected, BranchAll:
		return Branch(s), nil
	}
	return "", fmt.Errorf("unknown branch %q", s)
}

// Criterion is the information criterion used to size the forecasting model
type Criterion string

const (
	CriterionBIC Criterion = "bic"
	CriterionAIC Criterion = "aic"
)

// ParseCriterion validates a criterion name
func ParseCriterion(s string) (Criterion, error) {
	switch Criterion(s) {
	case CriterionBIC, CriterionAIC:
		return Criterion(s), nil
	}
	return "", fmt.Errorf("unknown criterion %q", s)
}

// Weighting names how horizon forecasts were pooled
type Weighting string

const (
	WeightingNone    Weighting = "none"
	WeightingAverage Weighting = "periods_avg"
	WeightingMSE     Weighting = "periods_mseweight"
)

// ParseWeighting validates a weighting name
func ParseWeighting(s string) (Weighting, error) {
	switch Weighting(s) {
	case WeightingNone, WeightingAverage, WeightingMSE:
		return Weighting(s), nil
	}
	return "", fmt.Errorf("unknown weighting %q", s)
}

// HorizonPooled is the horizon label carried by pooled records
const HorizonPooled = "pooled"

// ResultKey is the composite key of a forecast series
type ResultKey struct {
	Branch    Branch    `json:"branch"`
	Criterion Criterion `json:"criterion"`
	Weighting Weighting `json:"weighting"`
	Horizon   string    `json:"horizon"`
}

func (k ResultKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Branch, k.Criterion, k.Weighting, k.Horizon)
}

// ResultRecord is one forecast-versus-actual observation
type ResultRecord struct {
	Quarter  Quarter   `json:"quarter"`
	Key      ResultKey `json:"key"`
	YActual  float64   `json:"y_actual"`
	YPred    float64   `json:"y_pred"`
	MSE      float64   `json:"mse"`
	YPredAR4 float64   `json:"y_pred_ar4"`
	MSEAR4   float64   `json:"mse_ar4"`
	Selected []string  `json:"selected,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
}

// HasActual reports whether the realised value is known
func (r ResultRecord) HasActual() bool {
	return !math.IsNaN(r.YActual)
}

type resultRecordJSON struct {
	Quarter  Quarter   `json:"quarter"`
	Key      ResultKey `json:"key"`
	YActual  *float64  `json:"y_actual"`
	YPred    *float64  `json:"y_pred"`
	MSE      *float64  `json:"mse"`
	YPredAR4 *float64  `json:"y_pred_ar4"`
	MSEAR4   *float64  `json:"mse_ar4"`
	Selected []string  `json:"selected,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
}

// MarshalJSON encodes NaN as null
func (r ResultRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultRecordJSON{
		Quarter:  r.Quarter,
		Key:      r.Key,
		YActual:  NullFloat(r.YActual),
		YPred:    NullFloat(r.YPred),
		MSE:      NullFloat(r.MSE),
		YPredAR4: NullFloat(r.YPredAR4),
		MSEAR4:   NullFloat(r.MSEAR4),
		Selected: r.Selected,
		Fallback: r.Fallback,
	})
}

// UnmarshalJSON decodes null as NaN
func (r *ResultRecord) UnmarshalJSON(b []byte) error {
	var raw resultRecordJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ResultRecord{
		Quarter:  raw.Quarter,
		Key:      raw.Key,
		YActual:  FromNullFloat(raw.YActual),
		YPred:    FromNullFloat(raw.YPred),
		MSE:      FromNullFloat(raw.MSE),
		YPredAR4: FromNullFloat(raw.YPredAR4),
		MSEAR4:   FromNullFloat(raw.MSEAR4),
		Selected: raw.Selected,
		Fallback: raw.Fallback,
	}
	return nil
}

// NullFloat maps NaN and infinities to nil for JSON encoding
func NullFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FromNullFloat maps nil back to NaN
func FromNullFloat(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
